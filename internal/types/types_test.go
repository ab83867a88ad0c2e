package types

import "testing"

func TestStatusRemoteState(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusTodo, "open"},
		{StatusInProgress, "open"},
		{StatusBlocked, "open"},
		{StatusDone, "closed"},
		{StatusClosed, "closed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.RemoteState(); got != tt.want {
				t.Errorf("RemoteState() = %q, want %q", got, tt.want)
			}
			if !tt.status.IsValid() {
				t.Errorf("IsValid() = false for %q", tt.status)
			}
		})
	}

	if Status("bogus").IsValid() {
		t.Error("IsValid() = true for unknown status")
	}
}

func TestStatusFromRemote(t *testing.T) {
	tests := []struct {
		name   string
		state  string
		labels []string
		want   Status
	}{
		{"closed wins", "closed", []string{"in-progress"}, StatusDone},
		{"closed upper", "CLOSED", nil, StatusDone},
		{"open plain", "open", nil, StatusTodo},
		{"open in progress", "open", []string{"bug", "In Progress"}, StatusInProgress},
		{"open blocked", "OPEN", []string{"status:blocked"}, StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromRemote(tt.state, tt.labels); got != tt.want {
				t.Errorf("StatusFromRemote(%q, %v) = %q, want %q", tt.state, tt.labels, got, tt.want)
			}
		})
	}
}

func TestEntityMappingValidate(t *testing.T) {
	valid := EntityMapping{
		LocalEntityID:   "e1",
		LocalEntityType: EntityEpic,
		BackendType:     BackendGitHub,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(m *EntityMapping)
	}{
		{"missing local id", func(m *EntityMapping) { m.LocalEntityID = "" }},
		{"bad type", func(m *EntityMapping) { m.LocalEntityType = "bug" }},
		{"bad backend", func(m *EntityMapping) { m.BackendType = "jira" }},
		{"bad direction", func(m *EntityMapping) { m.LastSyncDirection = "sideways" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestSyncValue(t *testing.T) {
	var nilMapping *EntityMapping
	if got := nilMapping.SyncValue("k"); got != "" {
		t.Errorf("SyncValue on nil = %q, want empty", got)
	}

	m := &EntityMapping{}
	m.SetSyncValue("content_hash", "abc")
	if got := m.SyncValue("content_hash"); got != "abc" {
		t.Errorf("SyncValue = %q, want %q", got, "abc")
	}
}

func TestImplicitStoryTitle(t *testing.T) {
	if got := ImplicitStoryTitle("Sprint 1"); got != "Sprint 1 tasks" {
		t.Errorf("ImplicitStoryTitle = %q", got)
	}
}
