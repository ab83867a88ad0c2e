package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient("test-token").WithBaseURL(server.URL)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-token")

	if client.Token != "test-token" {
		t.Errorf("Token = %q, want %q", client.Token, "test-token")
	}
	if client.BaseURL != DefaultAPIEndpoint {
		t.Errorf("BaseURL = %q, want %q", client.BaseURL, DefaultAPIEndpoint)
	}
	if client.GraphQLURL != DefaultGraphQLEndpoint {
		t.Errorf("GraphQLURL = %q, want %q", client.GraphQLURL, DefaultGraphQLEndpoint)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != DefaultTimeout {
		t.Error("HTTPClient should use DefaultTimeout")
	}
}

func TestGraphQLURLFor(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{DefaultAPIEndpoint, DefaultGraphQLEndpoint},
		{"https://ghe.example.com/api/v3", "https://ghe.example.com/api/graphql"},
		{"http://127.0.0.1:4000", "http://127.0.0.1:4000/graphql"},
	}
	for _, tt := range tests {
		if got := graphQLURLFor(tt.base); got != tt.want {
			t.Errorf("graphQLURLFor(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestCreateMilestone(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/octo/widgets/milestones" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 11, "node_id": "MI_1", "number": 4, "title": "M1", "state": "open"}`)
	}))

	m, err := client.CreateMilestone(context.Background(), "octo", "widgets", MilestoneInput{Title: "M1", State: "open"})
	if err != nil {
		t.Fatalf("CreateMilestone() error = %v", err)
	}
	if m.Number != 4 || m.Title != "M1" || m.NodeID != "MI_1" {
		t.Errorf("CreateMilestone() = %+v", m)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-token")
	}
	if gotBody["title"] != "M1" {
		t.Errorf("request title = %v, want M1", gotBody["title"])
	}
}

func TestCreateMilestoneAlreadyExists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Validation Failed", "errors": [{"resource": "Milestone", "code": "already_exists", "field": "title"}]}`)
	}))

	_, err := client.CreateMilestone(context.Background(), "octo", "widgets", MilestoneInput{Title: "M1"})
	if err == nil {
		t.Fatal("CreateMilestone() error = nil, want conflict")
	}
	if !IsConflict(err) {
		t.Errorf("IsConflict(%v) = false", err)
	}
	if got := syncerr.Classify(err); got != syncerr.KindConflict {
		t.Errorf("Classify() = %v, want conflict", got)
	}
}

func TestListMilestonesPaginates(t *testing.T) {
	var serverURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/widgets/milestones", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "all" {
			t.Errorf("state = %q, want all", r.URL.Query().Get("state"))
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 2, "title": "M2", "state": "closed"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/octo/widgets/milestones?page=2>; rel="next"`, serverURL))
		fmt.Fprint(w, `[{"number": 1, "title": "M1", "state": "open"}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	serverURL = server.URL
	client := NewClient("tok").WithBaseURL(server.URL)

	got, err := client.ListMilestones(context.Background(), "octo", "widgets", "")
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	if len(got) != 2 || got[0].Title != "M1" || got[1].Title != "M2" {
		t.Errorf("ListMilestones() = %+v, want M1, M2", got)
	}
}

func TestListIssuesSkipsPullRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("milestone") != "3" {
			t.Errorf("milestone filter = %q, want 3", r.URL.Query().Get("milestone"))
		}
		fmt.Fprint(w, `[
			{"id": 1, "node_id": "I_1", "number": 10, "title": "Issue", "state": "open",
			 "labels": [{"name": "epic"}], "assignees": [{"login": "ann"}],
			 "milestone": {"number": 3, "title": "Sprint 1"}},
			{"id": 2, "number": 11, "title": "PR", "state": "open", "pull_request": {"url": "x"}}
		]`)
	}))

	issues, err := client.ListIssues(context.Background(), "octo", "widgets", IssueListOptions{Milestone: "3"})
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("ListIssues() returned %d issues, want 1", len(issues))
	}
	got := issues[0]
	if got.Number != 10 || got.RemoteID() != "I_1" || got.Assignee() != "ann" {
		t.Errorf("issue = %+v", got)
	}
	if !got.HasLabel("EPIC") {
		t.Error("HasLabel(EPIC) = false")
	}
	if got.MilestoneNumber() != 3 || got.Milestone.Title != "Sprint 1" {
		t.Errorf("milestone = %+v", got.Milestone)
	}
	if got.Repository != "octo/widgets" {
		t.Errorf("Repository = %q", got.Repository)
	}
}

func TestGetIssueNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	_, err := client.GetIssue(context.Background(), "octo", "widgets", 99)
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
}

func TestCreateIssue(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": 5, "node_id": "I_5", "number": 42, "title": "Epic", "state": "open", "milestone": {"number": 7}}`)
	}))

	n := 7
	issue, err := client.CreateIssue(context.Background(), "octo", "widgets", IssueFields{
		Title:     "Epic",
		Body:      "body",
		Labels:    []string{"epic"},
		Assignees: []string{"ann"},
		Milestone: &n,
	})
	if err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	if issue.Number != 42 || issue.MilestoneNumber() != 7 {
		t.Errorf("CreateIssue() = %+v", issue)
	}
	if got["milestone"] != float64(7) {
		t.Errorf("request milestone = %v, want 7", got["milestone"])
	}
	if labels, _ := got["labels"].([]interface{}); len(labels) != 1 || labels[0] != "epic" {
		t.Errorf("request labels = %v", got["labels"])
	}
}

func TestUpdateIssueSendsOnlyProvidedFields(t *testing.T) {
	var raw []byte
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/repos/octo/widgets/issues/42" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-GitHub-Api-Version") != APIVersion {
			t.Errorf("missing api version header")
		}
		raw, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"number": 42, "title": "Keep", "state": "closed"}`)
	}))

	closed := "closed"
	issue, err := client.UpdateIssue(context.Background(), "octo", "widgets", 42, IssuePatch{State: &closed})
	if err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}
	if issue.State != "closed" {
		t.Errorf("State = %q, want closed", issue.State)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body) != 1 || body["state"] != "closed" {
		t.Errorf("PATCH body = %s, want only state", raw)
	}
}

func TestUpdateIssueSendsExplicitClears(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"number": 42}`)
	}))

	none := []string{}
	_, err := client.UpdateIssue(context.Background(), "octo", "widgets", 42, IssuePatch{
		Assignees: &none,
		Milestone: ClearMilestone(),
	})
	if err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}

	milestone, ok := body["milestone"]
	if !ok || milestone != nil {
		t.Errorf("milestone = %v (present=%v), want explicit null", milestone, ok)
	}
	assignees, ok := body["assignees"].([]interface{})
	if !ok || len(assignees) != 0 {
		t.Errorf("assignees = %v, want []", body["assignees"])
	}
	if _, ok := body["title"]; ok {
		t.Error("title should not be sent")
	}
}

func TestDoRequestRetriesRateLimit(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message": "slow down"}`)
			return
		}
		fmt.Fprint(w, `{"number": 1}`)
	}))

	title := "t"
	if _, err := client.UpdateIssue(context.Background(), "o", "r", 1, IssuePatch{Title: &title}); err != nil {
		t.Fatalf("UpdateIssue() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDoRequestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `bad gateway`)
	}))

	title := "t"
	_, err := client.UpdateIssue(context.Background(), "o", "r", 1, IssuePatch{Title: &title})
	if got := syncerr.Classify(err); got != syncerr.KindTransient {
		t.Errorf("Classify() = %v, want transient", got)
	}
}

func TestGetRepository(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/octo/widgets" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"id": 1, "node_id": "R_1", "full_name": "octo/widgets",
			"owner": {"login": "octo", "node_id": "O_1", "type": "Organization"}}`)
	}))

	repo, err := client.GetRepository(context.Background(), "octo", "widgets")
	if err != nil {
		t.Fatalf("GetRepository() error = %v", err)
	}
	if repo.NodeID != "R_1" || repo.OwnerID != "O_1" || repo.OwnerType != "Organization" {
		t.Errorf("GetRepository() = %+v", repo)
	}
}
