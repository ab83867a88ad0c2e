package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacobcy/VibeCopilot-sub000/internal/linking"
	"github.com/jacobcy/VibeCopilot-sub000/internal/storage"
	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/timeparsing"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

var roadmapCmd = &cobra.Command{
	Use:     "roadmap",
	GroupID: "plan",
	Short:   "Create, list and switch roadmaps",
}

var roadmapCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a roadmap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		desc, _ := cmd.Flags().GetString("description")
		makeCurrent, _ := cmd.Flags().GetBool("switch")

		r := &types.Roadmap{Title: strings.TrimSpace(args[0]), Description: desc}
		if r.Title == "" {
			return fmt.Errorf("roadmap title is required")
		}
		if err := store.CreateRoadmap(ctx, r); err != nil {
			return err
		}

		state := storage.NewStateDocument(store)
		current, err := state.CurrentRoadmapID(ctx)
		if err != nil {
			return err
		}
		if makeCurrent || current == "" {
			if err := localLinker().SwitchRoadmap(ctx, r.ID); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, r)
		}
		fmt.Fprintf(out, "%s Created roadmap %s: %s\n", green("✓"), bold(r.ID), r.Title)
		return nil
	},
}

var roadmapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roadmaps (* marks the current one)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		roadmaps, err := store.ListRoadmaps(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, roadmaps)
		}
		if len(roadmaps) == 0 {
			fmt.Fprintln(out, "No roadmaps. Create one with 'vibe roadmap create <title>'.")
			return nil
		}
		state := storage.NewStateDocument(store)
		current, err := state.CurrentRoadmapID(ctx)
		if err != nil {
			return err
		}
		links, err := state.RemoteLinks(ctx)
		if err != nil {
			return err
		}
		for _, r := range roadmaps {
			mark := " "
			if r.ID == current {
				mark = green("*")
			}
			fmt.Fprintf(out, "%s %s  %s", mark, r.ID, r.Title)
			if p := links[r.ID]; p != "" {
				fmt.Fprintf(out, "  %s", cyan("→ "+p))
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var roadmapSwitchCmd = &cobra.Command{
	Use:   "switch <roadmap>",
	Short: "Make a roadmap current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := lookupRoadmap(rootCtx, args[0])
		if err != nil {
			return err
		}
		if err := localLinker().SwitchRoadmap(rootCtx, r.ID); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), r)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Current roadmap: %s (%s)\n", green("✓"), bold(r.Title), r.ID)
		return nil
	},
}

var milestoneCmd = &cobra.Command{
	Use:     "milestone",
	GroupID: "plan",
	Short:   "Manage milestones",
}

var milestoneAddCmd = &cobra.Command{
	Use:   "add [roadmap] <title>",
	Short: "Add a milestone",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		r, title, err := roadmapAndTitle(ctx, args)
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("description")
		due, _ := cmd.Flags().GetString("due")

		m := &types.Milestone{RoadmapID: r.ID, Title: title, Description: desc, Status: types.StatusTodo}
		if due != "" {
			t, err := timeparsing.Parse(due, time.Now())
			if err != nil {
				return err
			}
			m.DueDate = &t
		}
		if err := store.CreateMilestone(ctx, m); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added milestone %s: %s", green("✓"), bold(m.ID), m.Title)
		if m.DueDate != nil {
			fmt.Fprintf(cmd.OutOrStdout(), " (due %s)", m.DueDate.Format(timeparsing.DateLayout))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

var milestoneListCmd = &cobra.Command{
	Use:   "list [roadmap]",
	Short: "List milestones",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roadmapArg(rootCtx, args)
		if err != nil {
			return err
		}
		milestones, err := store.ListMilestones(rootCtx, r.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), milestones)
		}
		out := cmd.OutOrStdout()
		for _, m := range milestones {
			due := ""
			if m.DueDate != nil {
				due = "  due " + m.DueDate.Format(timeparsing.DateLayout)
			}
			fmt.Fprintf(out, "%s  [%s] %s%s\n", m.ID, m.Status, m.Title, due)
		}
		return nil
	},
}

var epicCmd = &cobra.Command{
	Use:     "epic",
	GroupID: "plan",
	Short:   "Manage epics",
}

var epicAddCmd = &cobra.Command{
	Use:   "add [roadmap] <title>",
	Short: "Add an epic",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		r, title, err := roadmapAndTitle(ctx, args)
		if err != nil {
			return err
		}
		f, err := readItemFlags(ctx, cmd, r.ID)
		if err != nil {
			return err
		}
		e := &types.Epic{
			RoadmapID:   r.ID,
			MilestoneID: f.milestoneID,
			Title:       title,
			Description: f.description,
			Status:      f.status,
			Assignee:    f.assignee,
			Labels:      f.labels,
		}
		if err := store.CreateEpic(ctx, e); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), e)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added epic %s: %s\n", green("✓"), bold(e.ID), e.Title)
		return nil
	},
}

var epicListCmd = &cobra.Command{
	Use:   "list [roadmap]",
	Short: "List epics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roadmapArg(rootCtx, args)
		if err != nil {
			return err
		}
		epics, err := store.ListEpics(rootCtx, r.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), epics)
		}
		for _, e := range epics {
			printItem(cmd.OutOrStdout(), e.ID, e.Status, e.Title, e.Assignee)
		}
		return nil
	},
}

var storyCmd = &cobra.Command{
	Use:     "story",
	GroupID: "plan",
	Short:   "Manage stories",
}

var storyAddCmd = &cobra.Command{
	Use:   "add [roadmap] <title>",
	Short: "Add a story",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		r, title, err := roadmapAndTitle(ctx, args)
		if err != nil {
			return err
		}
		f, err := readItemFlags(ctx, cmd, r.ID)
		if err != nil {
			return err
		}
		epicID, _ := cmd.Flags().GetString("epic")
		if epicID != "" {
			e, err := store.GetEpic(ctx, epicID)
			if err != nil {
				return err
			}
			if e == nil || e.RoadmapID != r.ID {
				return fmt.Errorf("epic %s not found in roadmap %s", epicID, r.ID)
			}
		}
		s := &types.Story{
			RoadmapID:   r.ID,
			MilestoneID: f.milestoneID,
			EpicID:      epicID,
			Title:       title,
			Description: f.description,
			Status:      f.status,
			Assignee:    f.assignee,
			Labels:      f.labels,
		}
		if err := store.CreateStory(ctx, s); err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Added story %s: %s\n", green("✓"), bold(s.ID), s.Title)
		return nil
	},
}

var storyListCmd = &cobra.Command{
	Use:   "list [roadmap]",
	Short: "List stories",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roadmapArg(rootCtx, args)
		if err != nil {
			return err
		}
		stories, err := store.ListStories(rootCtx, r.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), stories)
		}
		for _, s := range stories {
			title := s.Title
			if s.Implicit {
				title += " " + yellow("(implicit)")
			}
			printItem(cmd.OutOrStdout(), s.ID, s.Status, title, s.Assignee)
		}
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "plan",
	Short:   "Inspect tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list [roadmap]",
	Short: "List tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := roadmapArg(rootCtx, args)
		if err != nil {
			return err
		}
		tasks, err := store.ListTasks(rootCtx, r.ID)
		if err != nil {
			return err
		}
		status, _ := cmd.Flags().GetString("status")
		if status != "" {
			filtered := tasks[:0]
			for _, t := range tasks {
				if string(t.Status) == status {
					filtered = append(filtered, t)
				}
			}
			tasks = filtered
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
			return nil
		}
		for _, t := range tasks {
			printItem(cmd.OutOrStdout(), t.ID, t.Status, t.Title, t.Assignee)
		}
		return nil
	},
}

func init() {
	roadmapCreateCmd.Flags().String("description", "", "Roadmap description")
	roadmapCreateCmd.Flags().Bool("switch", false, "Make the new roadmap current")
	roadmapCmd.AddCommand(roadmapCreateCmd, roadmapListCmd, roadmapSwitchCmd)

	milestoneAddCmd.Flags().String("due", "", "Due date (YYYY-MM-DD, +2w, \"next friday\")")
	milestoneAddCmd.Flags().String("description", "", "Milestone description")
	milestoneCmd.AddCommand(milestoneAddCmd, milestoneListCmd)

	for _, c := range []*cobra.Command{epicAddCmd, storyAddCmd} {
		c.Flags().String("milestone", "", "Milestone id or title")
		c.Flags().String("description", "", "Description")
		c.Flags().String("assignee", "", "GitHub login")
		c.Flags().StringSlice("label", nil, "Label (repeatable)")
		c.Flags().String("status", string(types.StatusTodo), "Status (todo, in_progress, blocked, done, closed)")
	}
	storyAddCmd.Flags().String("epic", "", "Parent epic id")
	epicCmd.AddCommand(epicAddCmd, epicListCmd)
	storyCmd.AddCommand(storyAddCmd, storyListCmd)

	taskListCmd.Flags().String("status", "", "Only show tasks with this status")
	taskCmd.AddCommand(taskListCmd)

	rootCmd.AddCommand(roadmapCmd, milestoneCmd, epicCmd, storyCmd, taskCmd)
}

// localLinker is a linker for operations that never reach GitHub.
func localLinker() *linking.Linker {
	return linking.New(nil, store, store, linking.WithLogger(logger))
}

// lookupRoadmap finds a roadmap by id, then by title.
func lookupRoadmap(ctx context.Context, ref string) (*types.Roadmap, error) {
	r, err := store.GetRoadmap(ctx, ref)
	if err != nil {
		return nil, err
	}
	if r == nil {
		if r, err = store.FindRoadmapByTitle(ctx, ref); err != nil {
			return nil, err
		}
	}
	if r == nil {
		return nil, &syncerr.ConfigurationError{Field: "roadmap", Reason: fmt.Sprintf("roadmap %q does not exist", ref)}
	}
	return r, nil
}

// currentRoadmapID returns the current roadmap id, or a ConfigurationError
// when none is set.
func currentRoadmapID(ctx context.Context) (string, error) {
	id, err := storage.NewStateDocument(store).CurrentRoadmapID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &syncerr.ConfigurationError{Field: "roadmap", Reason: "no roadmap given and none is current; run 'vibe roadmap switch <roadmap>'"}
	}
	return id, nil
}

// roadmapArg resolves an optional roadmap argument, defaulting to the
// current roadmap.
func roadmapArg(ctx context.Context, args []string) (*types.Roadmap, error) {
	if len(args) > 0 && args[0] != "" {
		return lookupRoadmap(ctx, args[0])
	}
	id, err := currentRoadmapID(ctx)
	if err != nil {
		return nil, err
	}
	return lookupRoadmap(ctx, id)
}

// roadmapAndTitle splits "[roadmap] <title>" arguments.
func roadmapAndTitle(ctx context.Context, args []string) (*types.Roadmap, string, error) {
	var (
		r     *types.Roadmap
		err   error
		title string
	)
	if len(args) == 2 {
		r, err = lookupRoadmap(ctx, args[0])
		title = args[1]
	} else {
		r, err = roadmapArg(ctx, nil)
		title = args[0]
	}
	if err != nil {
		return nil, "", err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, "", fmt.Errorf("title is required")
	}
	return r, title, nil
}

type itemFlags struct {
	milestoneID string
	description string
	assignee    string
	labels      []string
	status      types.Status
}

func readItemFlags(ctx context.Context, cmd *cobra.Command, roadmapID string) (itemFlags, error) {
	var f itemFlags
	f.description, _ = cmd.Flags().GetString("description")
	f.assignee, _ = cmd.Flags().GetString("assignee")
	f.labels, _ = cmd.Flags().GetStringSlice("label")
	status, _ := cmd.Flags().GetString("status")
	f.status = types.Status(status)
	if !f.status.IsValid() {
		return f, fmt.Errorf("invalid status %q", status)
	}

	ref, _ := cmd.Flags().GetString("milestone")
	if ref == "" {
		return f, nil
	}
	m, err := store.GetMilestone(ctx, ref)
	if err != nil {
		return f, err
	}
	if m == nil || m.RoadmapID != roadmapID {
		if m, err = store.FindMilestoneByTitle(ctx, roadmapID, ref); err != nil {
			return f, err
		}
	}
	if m == nil {
		return f, fmt.Errorf("milestone %q not found in roadmap %s", ref, roadmapID)
	}
	f.milestoneID = m.ID
	return f, nil
}

func printItem(w io.Writer, id string, status types.Status, title, assignee string) {
	line := fmt.Sprintf("%s  [%s] %s", id, status, title)
	if assignee != "" {
		line += "  @" + assignee
	}
	fmt.Fprintln(w, line)
}
