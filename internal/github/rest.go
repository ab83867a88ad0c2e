package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v68/github"
)

// GetRepository fetches repository metadata. It is used to verify that a
// link target exists and to learn the owner's node id for project creation.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*RemoteRepository, error) {
	var r *gh.Repository
	err := c.callREST(ctx, fmt.Sprintf("get repository %s/%s", owner, repo), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		r, resp, err = c.rest.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := &RemoteRepository{
		ID:       r.GetID(),
		NodeID:   r.GetNodeID(),
		FullName: r.GetFullName(),
		Private:  r.GetPrivate(),
	}
	if o := r.GetOwner(); o != nil {
		out.Owner = o.GetLogin()
		out.OwnerID = o.GetNodeID()
		out.OwnerType = o.GetType()
	}
	return out, nil
}

// ListMilestones returns every milestone of the repository in the given
// state ("open", "closed" or "all").
func (c *Client) ListMilestones(ctx context.Context, owner, repo, state string) ([]RemoteMilestone, error) {
	if state == "" {
		state = "all"
	}
	opts := &gh.MilestoneListOptions{
		State:       state,
		ListOptions: gh.ListOptions{PerPage: MaxPageSize},
	}

	var all []RemoteMilestone
	for page := 1; ; page++ {
		var milestones []*gh.Milestone
		var resp *gh.Response
		err := c.callREST(ctx, fmt.Sprintf("list milestones %s/%s", owner, repo), func() (*gh.Response, error) {
			var err error
			milestones, resp, err = c.rest.Issues.ListMilestones(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, m := range milestones {
			all = append(all, decodeMilestone(m))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		if page >= MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// MilestoneInput holds the fields of a milestone to create.
type MilestoneInput struct {
	Title       string
	State       string
	Description string
	DueOn       *gh.Timestamp
}

// CreateMilestone creates a repository milestone.
func (c *Client) CreateMilestone(ctx context.Context, owner, repo string, in MilestoneInput) (*RemoteMilestone, error) {
	req := &gh.Milestone{Title: gh.Ptr(in.Title)}
	if in.State != "" {
		req.State = gh.Ptr(in.State)
	}
	if in.Description != "" {
		req.Description = gh.Ptr(in.Description)
	}
	if in.DueOn != nil {
		req.DueOn = in.DueOn
	}

	var created *gh.Milestone
	err := c.callREST(ctx, fmt.Sprintf("create milestone %q", in.Title), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		created, resp, err = c.rest.Issues.CreateMilestone(ctx, owner, repo, req)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	m := decodeMilestone(created)
	return &m, nil
}

// IssueListOptions filters ListIssues. Milestone is a milestone number,
// "none" or "*"; empty means no filter.
type IssueListOptions struct {
	State     string
	Milestone string
}

// ListIssues returns repository issues, excluding pull requests.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, filter IssueListOptions) ([]RemoteIssue, error) {
	state := filter.State
	if state == "" {
		state = "all"
	}
	opts := &gh.IssueListByRepoOptions{
		State:       state,
		Milestone:   filter.Milestone,
		ListOptions: gh.ListOptions{PerPage: MaxPageSize},
	}

	var all []RemoteIssue
	for page := 1; ; page++ {
		var issues []*gh.Issue
		var resp *gh.Response
		err := c.callREST(ctx, fmt.Sprintf("list issues %s/%s", owner, repo), func() (*gh.Response, error) {
			var err error
			issues, resp, err = c.rest.Issues.ListByRepo(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, i := range issues {
			if i.IsPullRequest() {
				continue
			}
			all = append(all, decodeIssue(i, owner+"/"+repo))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		if page >= MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetIssue fetches one issue by number.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*RemoteIssue, error) {
	var issue *gh.Issue
	err := c.callREST(ctx, fmt.Sprintf("get issue #%d", number), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		issue, resp, err = c.rest.Issues.Get(ctx, owner, repo, number)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := decodeIssue(issue, owner+"/"+repo)
	return &out, nil
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, in IssueFields) (*RemoteIssue, error) {
	req := &gh.IssueRequest{
		Title: gh.Ptr(in.Title),
		Body:  gh.Ptr(in.Body),
	}
	if len(in.Labels) > 0 {
		labels := append([]string(nil), in.Labels...)
		req.Labels = &labels
	}
	if len(in.Assignees) > 0 {
		assignees := append([]string(nil), in.Assignees...)
		req.Assignees = &assignees
	}
	if in.Milestone != nil {
		req.Milestone = gh.Ptr(*in.Milestone)
	}

	var created *gh.Issue
	err := c.callREST(ctx, fmt.Sprintf("create issue %q", in.Title), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		created, resp, err = c.rest.Issues.Create(ctx, owner, repo, req)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := decodeIssue(created, owner+"/"+repo)
	return &out, nil
}

// UpdateIssue applies a partial update. It bypasses go-github because
// IssueRequest cannot express a null milestone.
func (c *Client) UpdateIssue(ctx context.Context, owner, repo string, number int, patch IssuePatch) (*RemoteIssue, error) {
	urlStr := c.buildURL("/repos/"+owner+"/"+repo+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, patch.Payload())
	if err != nil {
		return nil, fmt.Errorf("update issue #%d: %w", number, err)
	}

	var issue gh.Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	out := decodeIssue(&issue, owner+"/"+repo)
	return &out, nil
}

func decodeMilestone(m *gh.Milestone) RemoteMilestone {
	out := RemoteMilestone{
		ID:          m.GetID(),
		NodeID:      m.GetNodeID(),
		Number:      m.GetNumber(),
		Title:       m.GetTitle(),
		Description: m.GetDescription(),
		State:       m.GetState(),
	}
	if m.DueOn != nil {
		t := m.DueOn.Time
		out.DueOn = &t
	}
	return out
}

func decodeIssue(i *gh.Issue, repository string) RemoteIssue {
	out := RemoteIssue{
		ID:            i.GetID(),
		NodeID:        i.GetNodeID(),
		Number:        i.GetNumber(),
		Title:         i.GetTitle(),
		Body:          i.GetBody(),
		State:         i.GetState(),
		URL:           i.GetHTMLURL(),
		Repository:    repository,
		IsPullRequest: i.IsPullRequest(),
	}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	for _, a := range i.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	if len(out.Assignees) == 0 && i.Assignee != nil {
		out.Assignees = []string{i.Assignee.GetLogin()}
	}
	if i.Milestone != nil {
		out.Milestone = &MilestoneRef{Number: i.Milestone.GetNumber(), Title: i.Milestone.GetTitle()}
	}
	if i.UpdatedAt != nil {
		t := i.UpdatedAt.Time
		out.UpdatedAt = &t
	}
	return out
}
