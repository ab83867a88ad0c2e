package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobcy/VibeCopilot-sub000/internal/config"
	"github.com/jacobcy/VibeCopilot-sub000/internal/linking"
	"github.com/jacobcy/VibeCopilot-sub000/internal/remote"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/tracker"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

// githubCmd is the root command for GitHub operations.
var githubCmd = &cobra.Command{
	Use:     "github",
	GroupID: "sync",
	Short:   "Sync roadmaps with GitHub Projects",
	Long: `Commands for linking a roadmap to a GitHub Project and syncing it.

Configuration can be set via 'vibe config set' or environment variables:
  github.owner / GITHUB_OWNER     - Repository owner (user or org)
  github.repo / GITHUB_REPO       - Repository name or remote URL
  github.token / GITHUB_TOKEN     - Token (falls back to GH_TOKEN, then 'gh auth token')`,
}

var githubLinkCmd = &cobra.Command{
	Use:   "link [roadmap] <project-ref>",
	Short: "Link a roadmap to a GitHub Project",
	Long: `Link a roadmap to a GitHub Project.

project-ref is a project node id (PVT_...) or a project number, looked up in
the repository, then the owner's user projects, then the owner's organization.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGitHubLink,
}

var githubPushCmd = &cobra.Command{
	Use:   "push [roadmap]",
	Short: "Push milestones, epics and stories to GitHub",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGitHubPush,
}

var githubPullCmd = &cobra.Command{
	Use:   "pull [roadmap]",
	Short: "Pull GitHub issues into the roadmap",
	Long: `Pull GitHub issues into the roadmap.

Mapped epics, stories and tasks take the remote title, body, state and
assignee. An unmapped issue under a milestone and without an epic or story
label becomes a task. Other unmapped issues are skipped.

With --project an unlinked roadmap is linked first. Without a roadmap the
roadmap is found or created by the project's title.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGitHubPull,
}

var githubStatusCmd = &cobra.Command{
	Use:   "status [roadmap]",
	Short: "Show GitHub link, credentials and mapping status",
	Long: `Show GitHub link, credentials and mapping status.

A mapping is stale when its local epic, story or task no longer exists.
With --prune stale mappings are deleted; their remote issues are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE:  runGitHubStatus,
}

var githubUnlinkCmd = &cobra.Command{
	Use:   "unlink [roadmap]",
	Short: "Remove a roadmap's GitHub link",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roadmapArg(rootCtx, args)
		if err != nil {
			return err
		}
		if err := localLinker().Unlink(rootCtx, r.ID); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"roadmap_id": r.ID, "status": "unlinked"})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Unlinked roadmap %s\n", green("✓"), bold(r.ID))
		return nil
	},
}

var (
	githubOwner   string
	githubRepo    string
	githubProject string
	githubYAML    bool
	githubPrune   bool
)

func init() {
	for _, c := range []*cobra.Command{githubLinkCmd, githubPushCmd, githubPullCmd, githubStatusCmd} {
		c.Flags().StringVar(&githubOwner, "owner", "", "Repository owner (default: github.owner)")
		c.Flags().StringVar(&githubRepo, "repo", "", "Repository name (default: github.repo)")
	}
	githubPullCmd.Flags().StringVar(&githubProject, "project", "", "Project reference to link before pulling")
	githubStatusCmd.Flags().BoolVar(&githubYAML, "yaml", false, "Output in YAML format")
	githubStatusCmd.Flags().BoolVar(&githubPrune, "prune", false, "Delete stale mappings")

	githubCmd.AddCommand(githubLinkCmd, githubPushCmd, githubPullCmd, githubStatusCmd, githubUnlinkCmd)
	rootCmd.AddCommand(githubCmd)
}

// credentials loads GitHub settings with --owner/--repo applied.
func credentials() config.Credentials {
	return config.LoadCredentials(nil).WithRepo(githubOwner, githubRepo)
}

// newFacade returns a facade with a fresh run cache.
func newFacade(creds config.Credentials) *remote.Facade {
	return remote.New(creds.NewClient(), remote.WithLogger(logger))
}

func newLinker(f *remote.Facade) *linking.Linker {
	return linking.New(f, store, store, linking.WithLogger(logger))
}

func engineOptions() []tracker.Option {
	return []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithLease(config.DataDir(), config.GetDuration("sync.lock_timeout")),
	}
}

func runGitHubLink(cmd *cobra.Command, args []string) error {
	ctx := rootCtx
	var (
		r   *types.Roadmap
		err error
		ref string
	)
	if len(args) == 2 {
		r, err = lookupRoadmap(ctx, args[0])
		ref = args[1]
	} else {
		r, err = roadmapArg(ctx, nil)
		ref = args[0]
	}
	if err != nil {
		return err
	}

	creds := credentials()
	if err := creds.Validate(); err != nil {
		return err
	}
	link, err := newLinker(newFacade(creds)).Link(ctx, r.ID, creds.Owner, creds.Repo, ref)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), link)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Linked roadmap %s to project %s in %s\n",
		green("✓"), bold(r.ID), cyan(link.ProjectID), link.Context())
	return nil
}

func runGitHubPush(cmd *cobra.Command, args []string) error {
	ctx := rootCtx
	r, err := roadmapArg(ctx, args)
	if err != nil {
		return err
	}
	creds := credentials()
	if err := creds.Validate(); err != nil {
		return err
	}

	res, err := tracker.NewPushEngine(newFacade(creds), store, engineOptions()...).Push(ctx, r.ID)
	return reportRun(cmd.OutOrStdout(), res, err)
}

func runGitHubPull(cmd *cobra.Command, args []string) error {
	ctx := rootCtx
	roadmapID := ""
	switch {
	case len(args) > 0:
		r, err := lookupRoadmap(ctx, args[0])
		switch {
		case err == nil:
			roadmapID = r.ID
		case githubProject != "":
			// Unknown roadmaps are created from the project.
			roadmapID = args[0]
		default:
			return err
		}
	case githubProject == "":
		id, err := currentRoadmapID(ctx)
		if err != nil {
			return err
		}
		roadmapID = id
	default:
		roadmapID, _ = storage.NewStateDocument(store).CurrentRoadmapID(ctx)
	}

	creds := credentials()
	if err := creds.Validate(); err != nil {
		return err
	}
	facade := newFacade(creds)
	engine := tracker.NewPullEngine(facade, store, newLinker(facade), engineOptions()...)
	res, err := engine.Pull(ctx, roadmapID, tracker.PullOptions{
		ProjectRef: githubProject,
		Owner:      creds.Owner,
		Repo:       creds.Repo,
	})
	return reportRun(cmd.OutOrStdout(), res, err)
}

// reportRun prints a run result and turns item failures into an error so
// the exit status reflects them.
func reportRun(w io.Writer, res *tracker.SyncResult, err error) error {
	if res != nil {
		if jsonOutput {
			if werr := writeJSON(w, res); werr != nil {
				return werr
			}
		} else if err == nil {
			renderResult(w, res)
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s finished with %d error(s)", res.Direction, res.Stats.Errors)
	}
	return nil
}

// statusReport is what 'vibe github status' shows.
type statusReport struct {
	GitHub     githubStatus             `json:"github" yaml:"github"`
	Roadmap    *types.Roadmap           `json:"roadmap,omitempty" yaml:"roadmap,omitempty"`
	Current    bool                     `json:"current" yaml:"current"`
	Link       *types.RemoteLink        `json:"link,omitempty" yaml:"link,omitempty"`
	Active     *types.ActiveLinkCache   `json:"active,omitempty" yaml:"active,omitempty"`
	Mappings   map[types.EntityType]int `json:"mappings,omitempty" yaml:"mappings,omitempty"`
	LastSynced *time.Time               `json:"last_synced,omitempty" yaml:"last_synced,omitempty"`
	Stale      []*types.EntityMapping   `json:"stale,omitempty" yaml:"stale,omitempty"`
	Pruned     int                      `json:"pruned,omitempty" yaml:"pruned,omitempty"`
	Links      map[string]string        `json:"links,omitempty" yaml:"links,omitempty"`
}

type githubStatus struct {
	Owner       string `json:"owner" yaml:"owner"`
	Repo        string `json:"repo" yaml:"repo"`
	Token       string `json:"token" yaml:"token"`
	Configured  bool   `json:"configured" yaml:"configured"`
	ConfigError string `json:"config_error,omitempty" yaml:"config_error,omitempty"`
}

func runGitHubStatus(cmd *cobra.Command, args []string) error {
	ctx := rootCtx
	creds := credentials()
	report, err := buildStatus(ctx, creds, args)
	if err != nil {
		return err
	}
	if githubPrune {
		if err := pruneStale(ctx, report); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return writeJSON(out, report)
	case githubYAML:
		return writeYAML(out, report)
	}
	renderStatus(out, report)
	return nil
}

func buildStatus(ctx context.Context, creds config.Credentials, args []string) (*statusReport, error) {
	report := &statusReport{GitHub: githubStatus{
		Owner:      creds.Owner,
		Repo:       creds.Repo,
		Token:      creds.MaskedToken(),
		Configured: true,
	}}
	if err := creds.Validate(); err != nil {
		report.GitHub.Configured = false
		report.GitHub.ConfigError = err.Error()
	}

	state := storage.NewStateDocument(store)
	current, err := state.CurrentRoadmapID(ctx)
	if err != nil {
		return nil, err
	}
	if report.Links, err = state.RemoteLinks(ctx); err != nil {
		return nil, err
	}

	var r *types.Roadmap
	switch {
	case len(args) > 0:
		if r, err = lookupRoadmap(ctx, args[0]); err != nil {
			return nil, err
		}
	case current != "":
		if r, err = store.GetRoadmap(ctx, current); err != nil {
			return nil, err
		}
	}
	if r == nil {
		return report, nil
	}
	report.Roadmap = r
	report.Current = r.ID == current

	if report.Link, err = state.RemoteLink(ctx, r.ID); err != nil {
		return nil, err
	}
	if report.Current {
		if report.GitHub.Configured {
			report.Active, err = newLinker(newFacade(creds)).ActiveLink(ctx)
		} else {
			report.Active, err = state.ActiveCache(ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	mappings, err := store.ListMappings(ctx, r.ID, types.BackendGitHub)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		report.Mappings = make(map[types.EntityType]int)
	}
	for _, m := range mappings {
		report.Mappings[m.LocalEntityType]++
		if m.LastSyncedAt != nil && (report.LastSynced == nil || m.LastSyncedAt.After(*report.LastSynced)) {
			t := *m.LastSyncedAt
			report.LastSynced = &t
		}
	}
	if report.Stale, err = tracker.StaleMappings(ctx, store, r.ID); err != nil {
		return nil, err
	}
	return report, nil
}

// pruneStale deletes the report's stale mappings and updates its counts.
func pruneStale(ctx context.Context, report *statusReport) error {
	for _, m := range report.Stale {
		if err := store.DeleteMapping(ctx, m.ID); err != nil {
			return fmt.Errorf("prune mapping %s: %w", m.ID, err)
		}
		report.Pruned++
		if n := report.Mappings[m.LocalEntityType] - 1; n > 0 {
			report.Mappings[m.LocalEntityType] = n
		} else {
			delete(report.Mappings, m.LocalEntityType)
		}
	}
	if len(report.Mappings) == 0 {
		report.Mappings = nil
	}
	report.Stale = nil
	if report.Pruned > 0 {
		logger.Info("pruned stale mappings", "roadmap", report.Roadmap.ID, "count", report.Pruned)
	}
	return nil
}

func renderStatus(w io.Writer, s *statusReport) {
	fmt.Fprintln(w, bold("GitHub Configuration"))
	fmt.Fprintf(w, "  Owner: %s\n", orNotSet(s.GitHub.Owner))
	fmt.Fprintf(w, "  Repo:  %s\n", orNotSet(s.GitHub.Repo))
	fmt.Fprintf(w, "  Token: %s\n", s.GitHub.Token)
	if s.GitHub.Configured {
		fmt.Fprintf(w, "  Status: %s Configured\n", green("✓"))
	} else {
		fmt.Fprintf(w, "  Status: %s %s\n", red("✗"), s.GitHub.ConfigError)
	}
	fmt.Fprintln(w)

	if s.Roadmap == nil {
		fmt.Fprintln(w, "No roadmap selected. Run 'vibe roadmap switch <roadmap>'.")
		return
	}
	current := ""
	if s.Current {
		current = " " + green("(current)")
	}
	fmt.Fprintf(w, "%s %s: %s%s\n", bold("Roadmap"), s.Roadmap.ID, s.Roadmap.Title, current)
	if s.Link == nil {
		fmt.Fprintf(w, "  Link: %s\n", yellow("not linked; run 'vibe github link <project-ref>'"))
	} else {
		fmt.Fprintf(w, "  Link: project %s in %s\n", cyan(s.Link.ProjectID), s.Link.Context())
	}
	if s.Active != nil && s.Active.ProjectTitle != "" {
		fmt.Fprintf(w, "  Project: %s (#%d)\n", s.Active.ProjectTitle, s.Active.ProjectNumber)
	}

	if len(s.Mappings) == 0 {
		fmt.Fprintln(w, "  Mappings: none")
	} else {
		kinds := make([]string, 0, len(s.Mappings))
		for k := range s.Mappings {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		fmt.Fprint(w, "  Mappings:")
		for _, k := range kinds {
			fmt.Fprintf(w, " %s=%d", k, s.Mappings[types.EntityType(k)])
		}
		fmt.Fprintln(w)
	}
	if s.LastSynced != nil {
		fmt.Fprintf(w, "  Last synced: %s\n", s.LastSynced.Local().Format(time.RFC3339))
	}
	if len(s.Stale) > 0 {
		fmt.Fprintf(w, "  %s %d stale mapping(s) point at deleted local entities:\n", yellow("!"), len(s.Stale))
		for _, m := range s.Stale {
			fmt.Fprintf(w, "    %s %s → #%s\n", m.LocalEntityType, m.LocalEntityID, m.RemoteEntityNumber)
		}
		fmt.Fprintln(w, "  Run 'vibe github status --prune' to delete them.")
	}
	if s.Pruned > 0 {
		fmt.Fprintf(w, "  %s Pruned %d stale mapping(s)\n", green("✓"), s.Pruned)
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
