package tracker

import (
	"strconv"
	"strings"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// SyncData keys stored on mappings. The pushed_* keys hold what the last
// push sent for the fields collaborators share with us.
const (
	syncKeyURL       = "url"
	syncKeyAssignee  = "pushed_assignee"
	syncKeyLabels    = "pushed_labels"
	syncKeyMilestone = "pushed_milestone"
)

// Type labels put on issues created from epics and stories.
const (
	LabelEpic  = "epic"
	LabelStory = "story"
)

// issueItem is an epic or story in the shape pushed to a remote issue.
type issueItem struct {
	entityType  types.EntityType
	id          string
	typeLabel   string
	title       string
	body        string
	status      types.Status
	assignee    string
	labels      []string
	milestoneID string
}

func epicItem(e *types.Epic) issueItem {
	return issueItem{
		entityType:  types.EntityEpic,
		id:          e.ID,
		typeLabel:   LabelEpic,
		title:       e.Title,
		body:        e.Description,
		status:      e.Status,
		assignee:    e.Assignee,
		labels:      e.Labels,
		milestoneID: e.MilestoneID,
	}
}

func storyItem(s *types.Story) issueItem {
	return issueItem{
		entityType:  types.EntityStory,
		id:          s.ID,
		typeLabel:   LabelStory,
		title:       s.Title,
		body:        s.Description,
		status:      s.Status,
		assignee:    s.Assignee,
		labels:      s.Labels,
		milestoneID: s.MilestoneID,
	}
}

// milestoneTarget is where an item's milestone should point remotely.
// known is false when the item has a local milestone whose remote number
// could not be determined this run; the remote milestone is then left alone.
type milestoneTarget struct {
	number int
	known  bool
}

func (it issueItem) milestone(numbers map[string]int) milestoneTarget {
	if it.milestoneID == "" {
		return milestoneTarget{known: true}
	}
	n, ok := numbers[it.milestoneID]
	return milestoneTarget{number: n, known: ok}
}

// allLabels returns the type label followed by the item's own labels.
func (it issueItem) allLabels() []string {
	out := []string{it.typeLabel}
	for _, l := range it.labels {
		l = strings.TrimSpace(l)
		if l == "" || strings.EqualFold(l, it.typeLabel) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (it issueItem) assignees() []string {
	if it.assignee == "" {
		return []string{}
	}
	return []string{it.assignee}
}

// fields builds the create request for an unmapped item.
func (it issueItem) fields(ms milestoneTarget) github.IssueFields {
	f := github.IssueFields{
		Title:     it.title,
		Body:      it.body,
		Labels:    it.allLabels(),
		Assignees: it.assignees(),
	}
	if ms.known && ms.number > 0 {
		n := ms.number
		f.Milestone = &n
	}
	return f
}

// pushed is what the last push recorded for an item. A field that was never
// recorded only gets additions; nothing is removed on its behalf.
type pushed struct {
	assignee    string
	hasAssignee bool
	labels      []string
	hasLabels   bool
	milestone   int
}

func pushedFrom(m *types.EntityMapping) pushed {
	var p pushed
	if m == nil {
		return p
	}
	p.assignee, p.hasAssignee = m.SyncData[syncKeyAssignee]
	var raw string
	if raw, p.hasLabels = m.SyncData[syncKeyLabels]; raw != "" {
		p.labels = strings.Split(raw, "\n")
	}
	p.milestone, _ = strconv.Atoi(m.SyncData[syncKeyMilestone])
	return p
}

// record stores what was just pushed for it on m.
func (it issueItem) record(m *types.EntityMapping, ms milestoneTarget) {
	m.SetSyncValue(syncKeyAssignee, it.assignee)
	m.SetSyncValue(syncKeyLabels, strings.Join(it.allLabels(), "\n"))
	if ms.known {
		m.SetSyncValue(syncKeyMilestone, strconv.Itoa(ms.number))
	}
}

// patch builds the partial update for a mapped item against the issue as it
// is now. Title, body, state and an assigned milestone belong to the local
// side and are sent when the issue differs. Assignees and labels are shared:
// only what changed locally since the last push is applied, so values added
// on GitHub survive. A milestone is cleared only when the item lost the one
// it was last pushed with.
func (it issueItem) patch(ms milestoneTarget, last pushed, current *github.RemoteIssue) github.IssuePatch {
	var p github.IssuePatch
	if current.Title != it.title {
		title := it.title
		p.Title = &title
	}
	if current.Body != it.body {
		body := it.body
		p.Body = &body
	}
	if state := it.status.RemoteState(); !strings.EqualFold(current.State, state) {
		p.State = &state
	}

	switch {
	case !ms.known:
	case ms.number > 0:
		if current.MilestoneNumber() != ms.number {
			p.Milestone = github.SetMilestone(ms.number)
		}
	case last.milestone > 0 && current.MilestoneNumber() != 0:
		p.Milestone = github.ClearMilestone()
	}

	if !last.hasAssignee || last.assignee != it.assignee {
		var remove, add []string
		if last.assignee != "" {
			remove = []string{last.assignee}
		}
		if it.assignee != "" {
			add = []string{it.assignee}
		}
		if next, changed := mergeSet(current.Assignees, remove, add); changed {
			p.Assignees = &next
		}
	}

	own := it.allLabels()
	if !last.hasLabels || !sameSet(last.labels, own) {
		if next, changed := mergeSet(current.Labels, last.labels, own); changed {
			p.Labels = &next
		}
	}
	return p
}

// mergeSet removes remove from current and appends what is missing from add.
// Values in both remove and add stay. Comparison ignores case.
func mergeSet(current, remove, add []string) ([]string, bool) {
	next := make([]string, 0, len(current)+len(add))
	changed := false
	for _, v := range current {
		if containsFold(remove, v) && !containsFold(add, v) {
			changed = true
			continue
		}
		next = append(next, v)
	}
	for _, v := range add {
		if !containsFold(next, v) {
			next = append(next, v)
			changed = true
		}
	}
	return next, changed
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		if !containsFold(b, v) {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// mergeStatus applies the remote state to a local status. Closed remote
// issues close the local item. Open issues take a status label when one is
// present, reopen closed items, and otherwise keep the local open status.
func mergeStatus(local types.Status, issue *github.RemoteIssue) types.Status {
	derived := types.StatusFromRemote(issue.State, issue.Labels)
	if derived.IsClosed() {
		if local.IsClosed() {
			return local
		}
		return derived
	}
	if derived != types.StatusTodo || local.IsClosed() || local == "" {
		return derived
	}
	return local
}

// remoteFields is what pull copies from an issue onto a mapped entity.
type remoteFields struct {
	title       string
	description string
	assignee    string
}

func fieldsOf(issue *github.RemoteIssue) remoteFields {
	return remoteFields{title: issue.Title, description: issue.Body, assignee: issue.Assignee()}
}

// apply overwrites the four pulled fields and reports whether any changed.
func (f remoteFields) apply(issue *github.RemoteIssue, title, description, assignee *string, status *types.Status) bool {
	next := mergeStatus(*status, issue)
	changed := *title != f.title || *description != f.description || *assignee != f.assignee || *status != next
	*title, *description, *assignee, *status = f.title, f.description, f.assignee, next
	return changed
}

// isPureTask reports whether an unmapped issue should become a local task:
// it sits under a milestone and carries neither type label.
func isPureTask(issue *github.RemoteIssue) bool {
	if issue.Milestone == nil || strings.TrimSpace(issue.Milestone.Title) == "" {
		return false
	}
	return !issue.HasLabel(LabelEpic) && !issue.HasLabel(LabelStory)
}
