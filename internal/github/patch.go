package github

type milestoneOp int

const (
	milestoneUnchanged milestoneOp = iota
	milestoneSet
	milestoneClear
)

// MilestoneUpdate is a tri-state milestone change. The zero value leaves the
// remote milestone untouched.
type MilestoneUpdate struct {
	op     milestoneOp
	number int
}

// SetMilestone assigns the issue to milestone n.
func SetMilestone(n int) MilestoneUpdate {
	return MilestoneUpdate{op: milestoneSet, number: n}
}

// ClearMilestone removes the issue's milestone (sent as JSON null).
func ClearMilestone() MilestoneUpdate {
	return MilestoneUpdate{op: milestoneClear}
}

// IsSet reports whether the update changes the milestone at all.
func (m MilestoneUpdate) IsSet() bool { return m.op != milestoneUnchanged }

// IsClear reports whether the update removes the milestone.
func (m MilestoneUpdate) IsClear() bool { return m.op == milestoneClear }

// Number returns the target milestone number for SetMilestone updates.
func (m MilestoneUpdate) Number() int { return m.number }

// IssuePatch is a partial issue update. Nil pointer fields are not sent.
// A non-nil Assignees pointing at an empty slice clears all assignees.
type IssuePatch struct {
	Title     *string
	Body      *string
	State     *string
	Labels    *[]string
	Assignees *[]string
	Milestone MilestoneUpdate
}

// IsEmpty reports whether the patch would send no fields.
func (p IssuePatch) IsEmpty() bool {
	return p.Title == nil && p.Body == nil && p.State == nil &&
		p.Labels == nil && p.Assignees == nil && !p.Milestone.IsSet()
}

// Payload builds the PATCH body. Cleared fields are present with a null or
// empty value; untouched fields are absent.
func (p IssuePatch) Payload() map[string]interface{} {
	body := make(map[string]interface{})
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.Body != nil {
		body["body"] = *p.Body
	}
	if p.State != nil {
		body["state"] = *p.State
	}
	if p.Labels != nil {
		labels := *p.Labels
		if labels == nil {
			labels = []string{}
		}
		body["labels"] = labels
	}
	if p.Assignees != nil {
		assignees := *p.Assignees
		if assignees == nil {
			assignees = []string{}
		}
		body["assignees"] = assignees
	}
	switch p.Milestone.op {
	case milestoneSet:
		body["milestone"] = p.Milestone.number
	case milestoneClear:
		body["milestone"] = nil
	}
	return body
}
