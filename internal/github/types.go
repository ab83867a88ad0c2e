// Package github provides the transport and decoded data types for the
// GitHub REST and GraphQL APIs.
//
// REST calls for repositories, milestones and issues go through go-github.
// Issue updates and Projects v2 queries use a small JSON transport so that
// explicit nulls can be sent and GraphQL errors can be classified.
// Every response is decoded here into Remote* types; callers never see raw
// response maps.
package github

import (
	"strconv"
	"strings"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultGraphQLEndpoint is the GitHub GraphQL API URL.
	DefaultGraphQLEndpoint = "https://api.github.com/graphql"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of waits on a rate-limited response.
	MaxRetries = 3

	// RetryDelay is the base delay between rate-limit retries.
	RetryDelay = time.Second

	// MaxPageSize is the maximum number of items per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	MaxPages = 1000

	// APIVersion is sent as X-GitHub-Api-Version on hand-rolled requests.
	APIVersion = "2022-11-28"
)

// Project item content types.
const (
	ContentTypeIssue       = "Issue"
	ContentTypePullRequest = "PullRequest"
	ContentTypeDraftIssue  = "DraftIssue"
)

// RemoteProject is a decoded Projects v2 board.
type RemoteProject struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Closed    bool   `json:"closed,omitempty"`
	Owner     string `json:"owner,omitempty"`
	OwnerType string `json:"owner_type,omitempty"`
}

// RemoteRepository is the subset of repository metadata the sync needs.
type RemoteRepository struct {
	ID        int64
	NodeID    string
	FullName  string
	Owner     string
	OwnerID   string
	OwnerType string
	Private   bool
}

// RemoteMilestone is a decoded repository milestone.
type RemoteMilestone struct {
	ID          int64
	NodeID      string
	Number      int
	Title       string
	Description string
	State       string
	DueOn       *time.Time
}

// MilestoneRef is the milestone reference embedded in an issue.
type MilestoneRef struct {
	Number int
	Title  string
}

// RemoteIssue is a decoded issue. Milestone is nil when the issue has none.
type RemoteIssue struct {
	ID            int64
	NodeID        string
	Number        int
	Title         string
	Body          string
	State         string
	URL           string
	Repository    string
	Labels        []string
	Assignees     []string
	Milestone     *MilestoneRef
	IsPullRequest bool
	UpdatedAt     *time.Time
}

// RemoteID returns the identifier stored in mappings: the node id when
// known, otherwise the numeric database id.
func (i *RemoteIssue) RemoteID() string {
	if i.NodeID != "" {
		return i.NodeID
	}
	if i.ID != 0 {
		return strconv.FormatInt(i.ID, 10)
	}
	return ""
}

// HasLabel reports whether the issue carries the named label (case-insensitive).
func (i *RemoteIssue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(strings.TrimSpace(l), name) {
			return true
		}
	}
	return false
}

// Assignee returns the first assignee login, or "".
func (i *RemoteIssue) Assignee() string {
	if len(i.Assignees) == 0 {
		return ""
	}
	return i.Assignees[0]
}

// MilestoneNumber returns the milestone number, or 0 when unset.
func (i *RemoteIssue) MilestoneNumber() int {
	if i.Milestone == nil {
		return 0
	}
	return i.Milestone.Number
}

// RemoteProjectItem is one entry on a project board. Issue is set only for
// items whose content is an issue or pull request the token can see.
type RemoteProjectItem struct {
	ID          string
	ContentType string
	Title       string
	Issue       *RemoteIssue
}

// IssueFields are the fields sent when creating an issue.
type IssueFields struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	Milestone *int
}

// ProjectPage is one page of project items.
type ProjectPage struct {
	Items       []RemoteProjectItem
	EndCursor   string
	HasNextPage bool
}
