package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
	"github.com/jacobcy/VibeCopilot-sub000/internal/tracker"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func errorPrefix() string { return red("Error:") }

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// writeJSONError writes {"error": ..., "kind": ...}.
func writeJSONError(w io.Writer, err error) {
	_ = writeJSON(w, map[string]string{
		"error": err.Error(),
		"kind":  syncerr.Classify(err).String(),
	})
}

func statusMark(ok bool) string {
	if ok {
		return green("✓")
	}
	return red("✗")
}

// renderResult prints a human summary of one push or pull.
func renderResult(w io.Writer, res *tracker.SyncResult) {
	verb, prep := "Pushed", "to"
	if res.Direction == tracker.DirectionPull {
		verb, prep = "Pulled", "from"
	}
	target := res.ProjectID
	if target == "" {
		target = "(unresolved)"
	}
	fmt.Fprintf(w, "%s %s roadmap %s %s project %s\n", statusMark(res.Success), verb, bold(res.RoadmapID), prep, cyan(target))

	s := res.Stats
	if res.Direction == tracker.DirectionPush {
		fmt.Fprintf(w, "  Milestones: %d processed, %d created\n", s.MilestonesProcessed, s.MilestonesCreated)
		fmt.Fprintf(w, "  Issues:     %d created, %d updated\n", s.IssuesCreated, s.IssuesUpdated)
	} else {
		fmt.Fprintf(w, "  Entities:   %d created (%d tasks), %d updated\n", s.EntitiesCreated, s.TasksCreated, s.EntitiesUpdated)
	}
	fmt.Fprintf(w, "  Skipped:    %d\n", s.Skipped)

	if s.Stale > 0 {
		fmt.Fprintf(w, "  %s %d stale mapping(s); run 'vibe github status' for details\n", yellow("!"), s.Stale)
	}
	for _, msg := range res.Warnings {
		fmt.Fprintf(w, "  %s %s\n", yellow("Warning:"), msg)
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "  %s %d\n", red("Errors:"), s.Errors)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "    %s %s [%s] %s\n", e.EntityType, e.EntityID, e.Kind, e.Message)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", red("Error:"), res.Error)
	}
}

// renderSettings prints settings as sorted "key = value" lines.
func renderSettings(w io.Writer, settings map[string]interface{}) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}
	for _, k := range keys {
		v := fmt.Sprint(settings[k])
		if v == "" || v == "<nil>" {
			v = "(not set)"
		}
		fmt.Fprintf(w, "%s%s = %s\n", k, strings.Repeat(" ", width-len(k)), v)
	}
}
