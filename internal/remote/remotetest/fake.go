// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

var _ remote.API = (*Fake)(nil)

// Project scopes used by AddProject.
const (
	ScopeRepository   = "repository"
	ScopeUser         = "user"
	ScopeOrganization = "organization"
)

type projectEntry struct {
	project github.RemoteProject
	scope   string
	items   []itemEntry
}

type itemEntry struct {
	id          string
	contentType string
	title       string
	issueNumber int
}

// Fake is a recording in-memory GitHub. It serves one repository.
//
// Every method appends its name to the call log before doing anything else.
// Errors registered with Fail are returned on every call of that method;
// FailOnce errors are consumed by the next call.
type Fake struct {
	mu sync.Mutex

	Owner string
	Repo  string

	calls      []string
	fail       map[string]error
	failOnce   map[string]error
	race       map[string]bool
	projects   []*projectEntry
	milestones []github.RemoteMilestone
	issues     []github.RemoteIssue
	nextID     int64

	// PageSize bounds ProjectItemsPage results. Zero means 100.
	PageSize int
	// FailItemsPage makes the n-th ProjectItemsPage call of a drain (1-based)
	// fail with FailItemsErr.
	FailItemsPage int
	FailItemsErr  error
	itemsPageCall int
}

// New returns an empty fake for owner/repo.
func New(owner, repo string) *Fake {
	return &Fake{
		Owner:    owner,
		Repo:     repo,
		fail:     make(map[string]error),
		failOnce: make(map[string]error),
		race:     make(map[string]bool),
		nextID:   1000,
	}
}

// NotFound returns a not-found API error.
func NotFound(what string) error {
	return &github.APIError{StatusCode: http.StatusNotFound, Kind: syncerr.KindNotFound, Message: what + " not found"}
}

// Conflict returns an "already exists" API error.
func Conflict(what string) error {
	return &github.APIError{
		StatusCode: http.StatusUnprocessableEntity,
		Kind:       syncerr.KindConflict,
		Message:    "Validation Failed",
		Errors:     []github.FieldError{{Resource: what, Field: "title", Code: "already_exists"}},
	}
}

// Transient returns a server error.
func Transient() error {
	return &github.APIError{StatusCode: http.StatusBadGateway, Kind: syncerr.KindTransient, Message: "bad gateway"}
}

// Fail makes every call of method return err. A nil err clears it.
func (f *Fake) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// FailOnce makes the next call of method return err.
func (f *Fake) FailOnce(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[method] = err
}

// Race makes the next CreateMilestone or CreateProject call store the
// object, as a concurrent writer would, and then report a conflict.
func (f *Fake) Race(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.race[method] = true
}

// Calls returns a copy of the call log.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// ResetCalls empties the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.itemsPageCall = 0
}

// record logs the call and returns any injected error. Callers hold f.mu.
func (f *Fake) record(method string) error {
	f.calls = append(f.calls, method)
	if err, ok := f.failOnce[method]; ok {
		delete(f.failOnce, method)
		return err
	}
	return f.fail[method]
}

func (f *Fake) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) sameRepo(owner, repo string) bool {
	return strings.EqualFold(owner, f.Owner) && strings.EqualFold(repo, f.Repo)
}

// AddProject registers a project reachable through scope. The project's
// ID defaults to a generated node id.
func (f *Fake) AddProject(scope string, p github.RemoteProject) *github.RemoteProject {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addProjectLocked(scope, p)
}

func (f *Fake) addProjectLocked(scope string, p github.RemoteProject) *github.RemoteProject {
	if p.ID == "" {
		p.ID = fmt.Sprintf("PVT_fake%d", f.id())
	}
	if p.Number == 0 {
		p.Number = len(f.projects) + 1
	}
	if p.Owner == "" {
		p.Owner = f.Owner
	}
	e := &projectEntry{project: p, scope: scope}
	f.projects = append(f.projects, e)
	out := e.project
	return &out
}

// AddMilestone stores a milestone and returns it with its number assigned.
func (f *Fake) AddMilestone(m github.RemoteMilestone) github.RemoteMilestone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addMilestoneLocked(m)
}

func (f *Fake) addMilestoneLocked(m github.RemoteMilestone) github.RemoteMilestone {
	m.ID = f.id()
	m.NodeID = fmt.Sprintf("MI_fake%d", m.ID)
	m.Number = len(f.milestones) + 1
	if m.State == "" {
		m.State = "open"
	}
	f.milestones = append(f.milestones, m)
	return m
}

// AddIssue stores an issue. Number and ids are assigned when zero.
func (f *Fake) AddIssue(i github.RemoteIssue) github.RemoteIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addIssueLocked(i)
}

func (f *Fake) addIssueLocked(i github.RemoteIssue) github.RemoteIssue {
	i.ID = f.id()
	if i.NodeID == "" {
		i.NodeID = fmt.Sprintf("I_fake%d", i.ID)
	}
	if i.Number == 0 {
		i.Number = f.nextNumber()
	}
	if i.State == "" {
		i.State = "open"
	}
	if i.Repository == "" {
		i.Repository = f.Owner + "/" + f.Repo
	}
	now := time.Now().UTC()
	i.UpdatedAt = &now
	f.issues = append(f.issues, i)
	return cloneIssue(i)
}

func (f *Fake) nextNumber() int {
	n := 0
	for _, i := range f.issues {
		if i.Number > n {
			n = i.Number
		}
	}
	return n + 1
}

// AddProjectIssue places an existing issue on a project board.
func (f *Fake) AddProjectIssue(projectID string, number int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.projectByID(projectID)
	if e == nil {
		return
	}
	e.items = append(e.items, itemEntry{
		id:          fmt.Sprintf("PVTI_fake%d", f.id()),
		contentType: github.ContentTypeIssue,
		issueNumber: number,
	})
}

// AddProjectDraft places a draft issue on a project board.
func (f *Fake) AddProjectDraft(projectID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.projectByID(projectID)
	if e == nil {
		return
	}
	e.items = append(e.items, itemEntry{
		id:          fmt.Sprintf("PVTI_fake%d", f.id()),
		contentType: github.ContentTypeDraftIssue,
		title:       title,
	})
}

// Issue returns a stored issue by number.
func (f *Fake) Issue(number int) (github.RemoteIssue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.issueByNumber(number); i != nil {
		return cloneIssue(*i), true
	}
	return github.RemoteIssue{}, false
}

// Issues returns every stored issue.
func (f *Fake) Issues() []github.RemoteIssue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]github.RemoteIssue, len(f.issues))
	for k, i := range f.issues {
		out[k] = cloneIssue(i)
	}
	return out
}

// Milestones returns every stored milestone.
func (f *Fake) Milestones() []github.RemoteMilestone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]github.RemoteMilestone(nil), f.milestones...)
}

// SetIssue overwrites a stored issue's mutable fields, simulating an edit
// made on GitHub.
func (f *Fake) SetIssue(number int, edit func(*github.RemoteIssue)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.issueByNumber(number); i != nil {
		edit(i)
	}
}

func (f *Fake) projectByID(id string) *projectEntry {
	for _, e := range f.projects {
		if e.project.ID == id {
			return e
		}
	}
	return nil
}

func (f *Fake) projectIn(scope, owner string, number int) *projectEntry {
	for _, e := range f.projects {
		if e.scope == scope && e.project.Number == number && strings.EqualFold(e.project.Owner, owner) {
			return e
		}
	}
	return nil
}

func (f *Fake) issueByNumber(n int) *github.RemoteIssue {
	for k := range f.issues {
		if f.issues[k].Number == n {
			return &f.issues[k]
		}
	}
	return nil
}

func (f *Fake) milestoneRef(n int) (*github.MilestoneRef, error) {
	for _, m := range f.milestones {
		if m.Number == n {
			return &github.MilestoneRef{Number: m.Number, Title: m.Title}, nil
		}
	}
	return nil, &github.APIError{StatusCode: http.StatusUnprocessableEntity, Kind: syncerr.KindFatal,
		Message: "Validation Failed", Errors: []github.FieldError{{Resource: "Issue", Field: "milestone", Code: "invalid"}}}
}

func cloneIssue(i github.RemoteIssue) github.RemoteIssue {
	i.Labels = append([]string(nil), i.Labels...)
	i.Assignees = append([]string(nil), i.Assignees...)
	if i.Milestone != nil {
		m := *i.Milestone
		i.Milestone = &m
	}
	return i
}

// ProjectByNodeID implements remote.API.
func (f *Fake) ProjectByNodeID(ctx context.Context, id string) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ProjectByNodeID"); err != nil {
		return nil, err
	}
	if e := f.projectByID(id); e != nil {
		p := e.project
		return &p, nil
	}
	return nil, NotFound("project " + id)
}

// RepositoryProject implements remote.API.
func (f *Fake) RepositoryProject(ctx context.Context, owner, repo string, number int) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RepositoryProject"); err != nil {
		return nil, err
	}
	if !f.sameRepo(owner, repo) {
		return nil, NotFound("repository")
	}
	if e := f.projectIn(ScopeRepository, owner, number); e != nil {
		p := e.project
		return &p, nil
	}
	return nil, NotFound("project " + strconv.Itoa(number))
}

// UserProject implements remote.API.
func (f *Fake) UserProject(ctx context.Context, login string, number int) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UserProject"); err != nil {
		return nil, err
	}
	if e := f.projectIn(ScopeUser, login, number); e != nil {
		p := e.project
		return &p, nil
	}
	return nil, NotFound("project " + strconv.Itoa(number))
}

// OrganizationProject implements remote.API.
func (f *Fake) OrganizationProject(ctx context.Context, login string, number int) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("OrganizationProject"); err != nil {
		return nil, err
	}
	if e := f.projectIn(ScopeOrganization, login, number); e != nil {
		p := e.project
		return &p, nil
	}
	return nil, NotFound("project " + strconv.Itoa(number))
}

// GetRepository implements remote.API.
func (f *Fake) GetRepository(ctx context.Context, owner, repo string) (*github.RemoteRepository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetRepository"); err != nil {
		return nil, err
	}
	if !f.sameRepo(owner, repo) {
		return nil, NotFound("repository " + owner + "/" + repo)
	}
	return &github.RemoteRepository{
		ID:        1,
		NodeID:    "R_fake",
		FullName:  f.Owner + "/" + f.Repo,
		Owner:     f.Owner,
		OwnerID:   "U_fake",
		OwnerType: "User",
	}, nil
}

// FindProjectByTitle implements remote.API.
func (f *Fake) FindProjectByTitle(ctx context.Context, owner, repo, title string) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FindProjectByTitle"); err != nil {
		return nil, err
	}
	for _, e := range f.projects {
		if e.scope == ScopeRepository && strings.EqualFold(strings.TrimSpace(e.project.Title), strings.TrimSpace(title)) {
			p := e.project
			return &p, nil
		}
	}
	return nil, NotFound("project " + title)
}

// CreateProject implements remote.API.
func (f *Fake) CreateProject(ctx context.Context, ownerID, repositoryID, title string) (*github.RemoteProject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateProject"); err != nil {
		return nil, err
	}
	p := f.addProjectLocked(ScopeRepository, github.RemoteProject{Title: title})
	if f.race["CreateProject"] {
		delete(f.race, "CreateProject")
		return nil, Conflict("ProjectV2")
	}
	return p, nil
}

// ProjectItemsPage implements remote.API. Cursors are item offsets.
func (f *Fake) ProjectItemsPage(ctx context.Context, projectID, cursor string) (*github.ProjectPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ProjectItemsPage"); err != nil {
		return nil, err
	}
	if cursor == "" {
		f.itemsPageCall = 0
	}
	f.itemsPageCall++
	if f.FailItemsPage > 0 && f.itemsPageCall == f.FailItemsPage {
		err := f.FailItemsErr
		if err == nil {
			err = Transient()
		}
		return nil, err
	}

	e := f.projectByID(projectID)
	if e == nil {
		return nil, NotFound("project " + projectID)
	}
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, &github.APIError{Kind: syncerr.KindFatal, Message: "bad cursor " + cursor}
		}
		start = n
	}
	size := f.PageSize
	if size <= 0 {
		size = github.MaxPageSize
	}
	end := start + size
	if end > len(e.items) {
		end = len(e.items)
	}

	page := &github.ProjectPage{}
	for _, it := range e.items[start:end] {
		item := github.RemoteProjectItem{ID: it.id, ContentType: it.contentType, Title: it.title}
		if it.issueNumber != 0 {
			if i := f.issueByNumber(it.issueNumber); i != nil {
				c := cloneIssue(*i)
				item.Issue = &c
				item.Title = c.Title
			}
		}
		page.Items = append(page.Items, item)
	}
	if end < len(e.items) {
		page.HasNextPage = true
		page.EndCursor = strconv.Itoa(end)
	}
	return page, nil
}

// ListMilestones implements remote.API.
func (f *Fake) ListMilestones(ctx context.Context, owner, repo, state string) ([]github.RemoteMilestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListMilestones"); err != nil {
		return nil, err
	}
	var out []github.RemoteMilestone
	for _, m := range f.milestones {
		if state == "" || state == "all" || m.State == state {
			out = append(out, m)
		}
	}
	return out, nil
}

// CreateMilestone implements remote.API. Titles are unique per repository.
func (f *Fake) CreateMilestone(ctx context.Context, owner, repo string, in github.MilestoneInput) (*github.RemoteMilestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateMilestone"); err != nil {
		return nil, err
	}
	for _, m := range f.milestones {
		if strings.EqualFold(m.Title, in.Title) {
			return nil, Conflict("Milestone")
		}
	}
	m := github.RemoteMilestone{Title: in.Title, State: in.State, Description: in.Description}
	if in.DueOn != nil {
		due := in.DueOn.Time
		m.DueOn = &due
	}
	m = f.addMilestoneLocked(m)
	if f.race["CreateMilestone"] {
		delete(f.race, "CreateMilestone")
		return nil, Conflict("Milestone")
	}
	return &m, nil
}

// ListIssues implements remote.API.
func (f *Fake) ListIssues(ctx context.Context, owner, repo string, filter github.IssueListOptions) ([]github.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListIssues"); err != nil {
		return nil, err
	}
	var out []github.RemoteIssue
	for _, i := range f.issues {
		if filter.State != "" && filter.State != "all" && i.State != filter.State {
			continue
		}
		if filter.Milestone != "" && filter.Milestone != strconv.Itoa(i.MilestoneNumber()) {
			continue
		}
		out = append(out, cloneIssue(i))
	}
	return out, nil
}

// GetIssue implements remote.API.
func (f *Fake) GetIssue(ctx context.Context, owner, repo string, number int) (*github.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetIssue"); err != nil {
		return nil, err
	}
	i := f.issueByNumber(number)
	if i == nil {
		return nil, NotFound("issue #" + strconv.Itoa(number))
	}
	c := cloneIssue(*i)
	return &c, nil
}

// CreateIssue implements remote.API.
func (f *Fake) CreateIssue(ctx context.Context, owner, repo string, in github.IssueFields) (*github.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateIssue"); err != nil {
		return nil, err
	}
	issue := github.RemoteIssue{
		Title:     in.Title,
		Body:      in.Body,
		Labels:    append([]string(nil), in.Labels...),
		Assignees: append([]string(nil), in.Assignees...),
	}
	if in.Milestone != nil {
		ref, err := f.milestoneRef(*in.Milestone)
		if err != nil {
			return nil, err
		}
		issue.Milestone = ref
	}
	created := f.addIssueLocked(issue)
	return &created, nil
}

// UpdateIssue implements remote.API. Only fields present in the patch change.
func (f *Fake) UpdateIssue(ctx context.Context, owner, repo string, number int, patch github.IssuePatch) (*github.RemoteIssue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateIssue"); err != nil {
		return nil, err
	}
	i := f.issueByNumber(number)
	if i == nil {
		return nil, NotFound("issue #" + strconv.Itoa(number))
	}
	if patch.Milestone.IsSet() && !patch.Milestone.IsClear() {
		ref, err := f.milestoneRef(patch.Milestone.Number())
		if err != nil {
			return nil, err
		}
		i.Milestone = ref
	} else if patch.Milestone.IsClear() {
		i.Milestone = nil
	}
	if patch.Title != nil {
		i.Title = *patch.Title
	}
	if patch.Body != nil {
		i.Body = *patch.Body
	}
	if patch.State != nil {
		i.State = *patch.State
	}
	if patch.Labels != nil {
		i.Labels = append([]string(nil), (*patch.Labels)...)
	}
	if patch.Assignees != nil {
		i.Assignees = append([]string(nil), (*patch.Assignees)...)
	}
	now := time.Now().UTC()
	i.UpdatedAt = &now
	c := cloneIssue(*i)
	return &c, nil
}
