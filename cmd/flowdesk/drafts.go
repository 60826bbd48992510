package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/scheduler"
	"github.com/rendis/flowdesk/internal/store"
	"github.com/rendis/flowdesk/pkg/schema"
)

func newDraftsCmd(c *cli) *cobra.Command {
	draftsCmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage unsaved local editing sessions",
	}
	draftsCmd.AddCommand(
		newDraftsListCmd(c),
		newDraftsDiscardCmd(c),
		newDraftsPruneCmd(c),
		newDraftsHistoryCmd(c),
	)
	return draftsCmd
}

func newDraftsListCmd(c *cli) *cobra.Command {
	var (
		out       outputFlags
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List local drafts, most recently edited first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "table", "json", "yaml"); err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			filter := store.DraftFilter{Limit: limit}
			if olderThan > 0 {
				before := time.Now().UTC().Add(-olderThan)
				filter.UpdatedBefore = &before
			}
			drafts, err := a.store.ListDrafts(ctx, filter)
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), drafts)
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No drafts.")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "FLOW\tTITLE\tBASE STATUS\tNODES\tEVENTS\tUPDATED")
			for _, d := range drafts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					d.FlowID, d.Title, d.BaseStatus, d.NodeCount, d.Events, formatTime(d.UpdatedAt))
			}
			return tw.Flush()
		},
	}
	out.register(cmd, "table", "table", "json", "yaml")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Only drafts untouched for at least this long")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of drafts")
	return cmd
}

func newDraftsDiscardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <flow-id>",
		Short: "Throw away a flow's local draft and its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := a.store.DeleteDraft(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded draft of %s\n", args[0])
			return nil
		},
	}
}

func newDraftsPruneCmd(c *cli) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Discard drafts untouched for longer than the draft TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = a.cfg.DraftTTL.Std()
			}
			j, err := scheduler.NewJanitor(a.store, scheduler.Config{Schedule: a.cfg.JanitorSchedule, TTL: ttl}, a.logger)
			if err != nil {
				return err
			}
			pruned, err := j.RunOnce(ctx)
			if err != nil {
				return err
			}
			for _, id := range pruned {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d drafts older than %s\n", len(pruned), ttl)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Override the configured draft TTL")
	return cmd
}

func newDraftsHistoryCmd(c *cli) *cobra.Command {
	var (
		out  outputFlags
		full bool
	)
	cmd := &cobra.Command{
		Use:   "history <flow-id>",
		Short: "Summarise the local event log of a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "text", "json", "yaml"); err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			h, err := store.NewEventLog(a.store).Replay(ctx, args[0])
			if err != nil {
				return err
			}
			if !full {
				h.Events = nil
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), h)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Events:          %d\n", h.LastSeq)
			fmt.Fprintf(w, "Saves:           %d\n", h.Saves)
			fmt.Fprintf(w, "Since last save: %d\n", h.UnsavedEvents)
			fmt.Fprintf(w, "Nodes touched:   %d\n", len(h.Nodes))
			tw := newTable(w)
			for _, kind := range sortedKinds(h.Kinds) {
				fmt.Fprintf(tw, "  %s\t%d\n", kind, h.Kinds[kind])
			}
			tw.Flush()
			for _, e := range h.Events {
				fmt.Fprintf(w, "%4d %s %-20s %s\n", e.Seq, formatTime(e.Timestamp), e.Kind, e.NodeID)
			}
			return nil
		},
	}
	out.register(cmd, "text", "text", "json", "yaml")
	cmd.Flags().BoolVar(&full, "events", false, "Include every event")
	return cmd
}

func sortedKinds(kinds map[string]int) []string {
	// Event kinds in the order an editing session produces them.
	order := []string{
		schema.EventDiagramReplaced, schema.EventDiagramImported, schema.EventNodesReconciled,
		schema.EventNodeAdded, schema.EventNodeUpdated, schema.EventNodeRenamed, schema.EventNodeDeleted,
		schema.EventNodesMoved, schema.EventNodeSelected, schema.EventConnectionStarted,
		schema.EventConnectionCancel, schema.EventEdgeAdded, schema.EventFlowSaved,
		schema.EventFlowTransitioned, schema.EventDraftDiscarded,
	}
	out := make([]string, 0, len(kinds))
	for _, k := range order {
		if _, ok := kinds[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
