package remote

import (
	"strconv"
	"strings"
	"sync"

	"github.com/jacobcy/VibeCopilot-sub000/internal/github"
)

// CacheKind selects a cache partition for Invalidate.
type CacheKind int

const (
	// KindProject entries are keyed by reference, project id or owner/repo/title.
	KindProject CacheKind = iota
	// KindMilestone entries are keyed by owner/repo; the whole index is dropped.
	KindMilestone
	// KindIssue entries are keyed by owner/repo#number.
	KindIssue
)

// Cache holds lookups made during one sync run.
type Cache struct {
	mu         sync.Mutex
	projects   map[string]*github.RemoteProject
	milestones map[string]map[string]*github.RemoteMilestone
	issues     map[string]*github.RemoteIssue
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.Clear()
	return c
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = make(map[string]*github.RemoteProject)
	c.milestones = make(map[string]map[string]*github.RemoteMilestone)
	c.issues = make(map[string]*github.RemoteIssue)
}

// Invalidate drops one entry. Missing keys are ignored.
func (c *Cache) Invalidate(kind CacheKind, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case KindProject:
		delete(c.projects, key)
	case KindMilestone:
		delete(c.milestones, key)
	case KindIssue:
		delete(c.issues, key)
	}
}

// Len returns the number of cached projects, milestone indexes and issues.
func (c *Cache) Len() (projects, milestoneRepos, issues int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects), len(c.milestones), len(c.issues)
}

func (c *Cache) project(key string) (*github.RemoteProject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.projects[key]
	return p, ok
}

func (c *Cache) putProject(key string, p *github.RemoteProject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects[key] = p
}

func (c *Cache) milestoneIndex(owner, repo string) (map[string]*github.RemoteMilestone, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.milestones[repoKey(owner, repo)]
	return idx, ok
}

func (c *Cache) putMilestoneIndex(owner, repo string, idx map[string]*github.RemoteMilestone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.milestones[repoKey(owner, repo)] = idx
}

func (c *Cache) issue(owner, repo string, number int) (*github.RemoteIssue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.issues[issueKey(owner, repo, number)]
	return i, ok
}

func (c *Cache) putIssue(owner, repo string, i *github.RemoteIssue) {
	if i == nil || i.Number == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues[issueKey(owner, repo, i.Number)] = i
}

func repoKey(owner, repo string) string {
	return strings.ToLower(owner + "/" + repo)
}

func titleKey(owner, repo, title string) string {
	return repoKey(owner, repo) + "/" + normalizeTitle(title)
}

func issueKey(owner, repo string, number int) string {
	return repoKey(owner, repo) + "#" + strconv.Itoa(number)
}

// IssueKey is the Invalidate key for an issue.
func IssueKey(owner, repo string, number int) string { return issueKey(owner, repo, number) }

// RepoKey is the Invalidate key for a repository's milestone index.
func RepoKey(owner, repo string) string { return repoKey(owner, repo) }
