// Package types defines the core planning entities and the local↔remote
// mapping records shared by the storage, remote and sync layers.
package types

import (
	"strings"
	"time"
)

// Roadmap is the top-level planning container.
type Roadmap struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status    `json:"status,omitempty" yaml:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Milestone is a dated grouping of work within a roadmap.
type Milestone struct {
	ID          string     `json:"id" yaml:"id"`
	RoadmapID   string     `json:"roadmap_id" yaml:"roadmap_id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status     `json:"status,omitempty" yaml:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Epic is a mid-level planning unit mirrored to a remote issue.
type Epic struct {
	ID          string    `json:"id" yaml:"id"`
	RoadmapID   string    `json:"roadmap_id" yaml:"roadmap_id"`
	MilestoneID string    `json:"milestone_id,omitempty" yaml:"milestone_id,omitempty"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status    `json:"status,omitempty" yaml:"status,omitempty"`
	Assignee    string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Story is a mid-level planning unit mirrored to a remote issue. Implicit
// stories are created on pull to hold tasks inferred from a milestone.
type Story struct {
	ID          string    `json:"id" yaml:"id"`
	RoadmapID   string    `json:"roadmap_id" yaml:"roadmap_id"`
	MilestoneID string    `json:"milestone_id,omitempty" yaml:"milestone_id,omitempty"`
	EpicID      string    `json:"epic_id,omitempty" yaml:"epic_id,omitempty"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status    `json:"status,omitempty" yaml:"status,omitempty"`
	Assignee    string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Implicit    bool      `json:"implicit,omitempty" yaml:"implicit,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Task is the smallest unit of work.
type Task struct {
	ID          string    `json:"id" yaml:"id"`
	RoadmapID   string    `json:"roadmap_id" yaml:"roadmap_id"`
	StoryID     string    `json:"story_id,omitempty" yaml:"story_id,omitempty"`
	MilestoneID string    `json:"milestone_id,omitempty" yaml:"milestone_id,omitempty"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Status      Status    `json:"status,omitempty" yaml:"status,omitempty"`
	Assignee    string    `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// ImplicitStoryTitle is the title of the story that collects tasks inferred
// from issues attached to the named milestone.
func ImplicitStoryTitle(milestoneTitle string) string {
	return milestoneTitle + " tasks"
}

// Status represents the lifecycle state of a planning entity
type Status string

// Status constants
const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusClosed     Status = "closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusClosed:
		return true
	}
	return false
}

// IsClosed reports whether the status maps to a closed remote object.
func (s Status) IsClosed() bool {
	return s == StatusDone || s == StatusClosed
}

// RemoteState returns the GitHub issue/milestone state for the status.
func (s Status) RemoteState() string {
	if s.IsClosed() {
		return "closed"
	}
	return "open"
}

// StatusFromRemote derives a local status from a remote state and its labels.
// A closed remote object becomes done; open objects honour status labels.
func StatusFromRemote(state string, labels []string) Status {
	if strings.EqualFold(state, "closed") {
		return StatusDone
	}
	for _, l := range labels {
		switch strings.ToLower(strings.TrimSpace(l)) {
		case "in-progress", "in progress", "in_progress", "status:in_progress", "status:in-progress":
			return StatusInProgress
		case "blocked", "status:blocked":
			return StatusBlocked
		}
	}
	return StatusTodo
}
