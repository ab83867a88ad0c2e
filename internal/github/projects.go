package github

import (
	"context"
	"fmt"
	"strings"
)

const projectFields = `id number title url closed owner { __typename ... on User { login } ... on Organization { login } }`

const projectByNodeQuery = `query($id: ID!) {
  node(id: $id) { __typename ... on ProjectV2 { ` + projectFields + ` } }
}`

const repositoryProjectQuery = `query($owner: String!, $name: String!, $number: Int!) {
  repository(owner: $owner, name: $name) { projectV2(number: $number) { ` + projectFields + ` } }
}`

const userProjectQuery = `query($login: String!, $number: Int!) {
  user(login: $login) { projectV2(number: $number) { ` + projectFields + ` } }
}`

const organizationProjectQuery = `query($login: String!, $number: Int!) {
  organization(login: $login) { projectV2(number: $number) { ` + projectFields + ` } }
}`

const repositoryProjectsByTitleQuery = `query($owner: String!, $name: String!, $query: String!) {
  repository(owner: $owner, name: $name) {
    projectsV2(first: 20, query: $query) { nodes { ` + projectFields + ` } }
  }
  repositoryOwner(login: $owner) {
    ... on ProjectV2Owner { projectsV2(first: 20, query: $query) { nodes { ` + projectFields + ` } } }
  }
}`

const createProjectMutation = `mutation($ownerId: ID!, $title: String!, $repositoryId: ID) {
  createProjectV2(input: {ownerId: $ownerId, title: $title, repositoryId: $repositoryId}) {
    projectV2 { ` + projectFields + ` }
  }
}`

const projectItemsQuery = `query($id: ID!, $first: Int!, $cursor: String) {
  node(id: $id) {
    ... on ProjectV2 {
      items(first: $first, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes {
          id
          type
          content {
            __typename
            ... on Issue {
              id databaseId number title body state url updatedAt
              repository { nameWithOwner }
              milestone { number title }
              labels(first: 50) { nodes { name } }
              assignees(first: 10) { nodes { login } }
            }
            ... on PullRequest { id number title state url repository { nameWithOwner } }
            ... on DraftIssue { id title body }
          }
        }
      }
    }
  }
}`

type gqlOwner struct {
	Typename string `json:"__typename"`
	Login    string `json:"login"`
}

type gqlProject struct {
	Typename string    `json:"__typename"`
	ID       string    `json:"id"`
	Number   int       `json:"number"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Closed   bool      `json:"closed"`
	Owner    *gqlOwner `json:"owner"`
}

func (p *gqlProject) decode() *RemoteProject {
	if p == nil || p.ID == "" {
		return nil
	}
	out := &RemoteProject{
		ID:     p.ID,
		Number: p.Number,
		Title:  p.Title,
		URL:    p.URL,
		Closed: p.Closed,
	}
	if p.Owner != nil {
		out.Owner = p.Owner.Login
		out.OwnerType = p.Owner.Typename
	}
	return out
}

type gqlProjectList struct {
	Nodes []*gqlProject `json:"nodes"`
}

func notFound(what string) *APIError {
	return newGraphQLError([]GraphQLError{{Type: "NOT_FOUND", Message: "Could not resolve to " + what}})
}

// ProjectByNodeID fetches a project by its opaque node id.
func (c *Client) ProjectByNodeID(ctx context.Context, id string) (*RemoteProject, error) {
	var data struct {
		Node *gqlProject `json:"node"`
	}
	if err := c.graphql(ctx, projectByNodeQuery, map[string]interface{}{"id": id}, &data); err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	if data.Node == nil || data.Node.Typename != "ProjectV2" {
		return nil, notFound("a ProjectV2 with id " + id)
	}
	return data.Node.decode(), nil
}

// RepositoryProject fetches project number n linked to owner/repo.
func (c *Client) RepositoryProject(ctx context.Context, owner, repo string, number int) (*RemoteProject, error) {
	var data struct {
		Repository *struct {
			ProjectV2 *gqlProject `json:"projectV2"`
		} `json:"repository"`
	}
	vars := map[string]interface{}{"owner": owner, "name": repo, "number": number}
	if err := c.graphql(ctx, repositoryProjectQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("repository project %s/%s#%d: %w", owner, repo, number, err)
	}
	if data.Repository == nil || data.Repository.ProjectV2 == nil {
		return nil, notFound(fmt.Sprintf("a ProjectV2 with number %d in %s/%s", number, owner, repo))
	}
	return data.Repository.ProjectV2.decode(), nil
}

// UserProject fetches project number n owned by a user account.
func (c *Client) UserProject(ctx context.Context, login string, number int) (*RemoteProject, error) {
	var data struct {
		User *struct {
			ProjectV2 *gqlProject `json:"projectV2"`
		} `json:"user"`
	}
	vars := map[string]interface{}{"login": login, "number": number}
	if err := c.graphql(ctx, userProjectQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("user project %s#%d: %w", login, number, err)
	}
	if data.User == nil || data.User.ProjectV2 == nil {
		return nil, notFound(fmt.Sprintf("a ProjectV2 with number %d for user %s", number, login))
	}
	return data.User.ProjectV2.decode(), nil
}

// OrganizationProject fetches project number n owned by an organization.
func (c *Client) OrganizationProject(ctx context.Context, login string, number int) (*RemoteProject, error) {
	var data struct {
		Organization *struct {
			ProjectV2 *gqlProject `json:"projectV2"`
		} `json:"organization"`
	}
	vars := map[string]interface{}{"login": login, "number": number}
	if err := c.graphql(ctx, organizationProjectQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("organization project %s#%d: %w", login, number, err)
	}
	if data.Organization == nil || data.Organization.ProjectV2 == nil {
		return nil, notFound(fmt.Sprintf("a ProjectV2 with number %d for organization %s", number, login))
	}
	return data.Organization.ProjectV2.decode(), nil
}

// FindProjectByTitle searches projects linked to the repository and then
// the owner's projects for an exact (case-insensitive) title match.
// It returns a not-found *APIError when nothing matches.
func (c *Client) FindProjectByTitle(ctx context.Context, owner, repo, title string) (*RemoteProject, error) {
	var data struct {
		Repository *struct {
			ProjectsV2 gqlProjectList `json:"projectsV2"`
		} `json:"repository"`
		RepositoryOwner *struct {
			ProjectsV2 *gqlProjectList `json:"projectsV2"`
		} `json:"repositoryOwner"`
	}
	vars := map[string]interface{}{"owner": owner, "name": repo, "query": title}
	if err := c.graphql(ctx, repositoryProjectsByTitleQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("search projects %q: %w", title, err)
	}

	var candidates []*gqlProject
	if data.Repository != nil {
		candidates = append(candidates, data.Repository.ProjectsV2.Nodes...)
	}
	if data.RepositoryOwner != nil && data.RepositoryOwner.ProjectsV2 != nil {
		candidates = append(candidates, data.RepositoryOwner.ProjectsV2.Nodes...)
	}
	for _, p := range candidates {
		if p != nil && strings.EqualFold(strings.TrimSpace(p.Title), strings.TrimSpace(title)) {
			return p.decode(), nil
		}
	}
	return nil, notFound(fmt.Sprintf("a ProjectV2 titled %q for %s/%s", title, owner, repo))
}

// CreateProject creates a project owned by ownerID and links it to
// repositoryID when that is non-empty.
func (c *Client) CreateProject(ctx context.Context, ownerID, repositoryID, title string) (*RemoteProject, error) {
	vars := map[string]interface{}{"ownerId": ownerID, "title": title}
	if repositoryID != "" {
		vars["repositoryId"] = repositoryID
	}
	var data struct {
		CreateProjectV2 *struct {
			ProjectV2 *gqlProject `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	if err := c.graphql(ctx, createProjectMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("create project %q: %w", title, err)
	}
	if data.CreateProjectV2 == nil || data.CreateProjectV2.ProjectV2 == nil {
		return nil, fmt.Errorf("create project %q: empty response", title)
	}
	return data.CreateProjectV2.ProjectV2.decode(), nil
}

type gqlItem struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content *struct {
		Typename   string `json:"__typename"`
		ID         string `json:"id"`
		DatabaseID int64  `json:"databaseId"`
		Number     int    `json:"number"`
		Title      string `json:"title"`
		Body       string `json:"body"`
		State      string `json:"state"`
		URL        string `json:"url"`
		UpdatedAt  string `json:"updatedAt"`
		Repository *struct {
			NameWithOwner string `json:"nameWithOwner"`
		} `json:"repository"`
		Milestone *struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
		} `json:"milestone"`
		Labels *struct {
			Nodes []struct {
				Name string `json:"name"`
			} `json:"nodes"`
		} `json:"labels"`
		Assignees *struct {
			Nodes []struct {
				Login string `json:"login"`
			} `json:"nodes"`
		} `json:"assignees"`
	} `json:"content"`
}

func (it *gqlItem) decode() RemoteProjectItem {
	out := RemoteProjectItem{ID: it.ID}
	c := it.Content
	if c == nil {
		// Items the token cannot see come back with null content.
		out.ContentType = "Private"
		return out
	}
	out.ContentType = c.Typename
	out.Title = c.Title
	if c.Typename != ContentTypeIssue && c.Typename != ContentTypePullRequest {
		return out
	}
	issue := &RemoteIssue{
		ID:            c.DatabaseID,
		NodeID:        c.ID,
		Number:        c.Number,
		Title:         c.Title,
		Body:          c.Body,
		State:         strings.ToLower(c.State),
		URL:           c.URL,
		IsPullRequest: c.Typename == ContentTypePullRequest,
	}
	if c.Repository != nil {
		issue.Repository = c.Repository.NameWithOwner
	}
	if c.Milestone != nil {
		issue.Milestone = &MilestoneRef{Number: c.Milestone.Number, Title: c.Milestone.Title}
	}
	if c.Labels != nil {
		for _, l := range c.Labels.Nodes {
			issue.Labels = append(issue.Labels, l.Name)
		}
	}
	if c.Assignees != nil {
		for _, a := range c.Assignees.Nodes {
			issue.Assignees = append(issue.Assignees, a.Login)
		}
	}
	if t, ok := parseTime(c.UpdatedAt); ok {
		issue.UpdatedAt = &t
	}
	out.Issue = issue
	return out
}

// ProjectItemsPage fetches one page of items after cursor ("" for the first page).
func (c *Client) ProjectItemsPage(ctx context.Context, projectID, cursor string) (*ProjectPage, error) {
	vars := map[string]interface{}{"id": projectID, "first": MaxPageSize}
	if cursor != "" {
		vars["cursor"] = cursor
	}
	var data struct {
		Node *struct {
			Items *struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []gqlItem `json:"nodes"`
			} `json:"items"`
		} `json:"node"`
	}
	if err := c.graphql(ctx, projectItemsQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("project items %s: %w", projectID, err)
	}
	if data.Node == nil || data.Node.Items == nil {
		return nil, notFound("a ProjectV2 with id " + projectID)
	}
	page := &ProjectPage{
		EndCursor:   data.Node.Items.PageInfo.EndCursor,
		HasNextPage: data.Node.Items.PageInfo.HasNextPage,
	}
	for i := range data.Node.Items.Nodes {
		page.Items = append(page.Items, data.Node.Items.Nodes[i].decode())
	}
	return page, nil
}
