package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/internal/editor"
	"github.com/rendis/flowdesk/internal/expressions"
	"github.com/rendis/flowdesk/internal/forms"
	"github.com/rendis/flowdesk/internal/lifecycle"
	"github.com/rendis/flowdesk/internal/session"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

func newFlowsCmd(c *cli) *cobra.Command {
	flowsCmd := &cobra.Command{
		Use:   "flows",
		Short: "List flows",
	}

	var out outputFlags
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the flows visible to the session",
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
			flows, err := a.api.ListFlows(ctx)
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), flows)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNO\tTITLE\tSTATUS\tOWNER\tUPDATED")
			for _, f := range flows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					f.ID, f.FlowNo, f.Title, forms.StatusLabel(f.Status), f.OwnerID, formatTime(f.UpdatedAt))
			}
			return tw.Flush()
		},
	}
	out.register(listCmd, "table", "table", "json", "yaml")

	flowsCmd.AddCommand(listCmd)
	return flowsCmd
}

func newFlowCmd(c *cli) *cobra.Command {
	flowCmd := &cobra.Command{
		Use:   "flow",
		Short: "Inspect a flow and move it through review",
	}
	flowCmd.AddCommand(
		newFlowShowCmd(c),
		newFlowNodesCmd(c),
		newTransitionCmd(c, "submit", "Submit a draft flow for review", schema.FlowStatusInReview),
		newTransitionCmd(c, "publish", "Publish a flow that is in review", schema.FlowStatusEffective),
		newFlowVersionsCmd(c),
		newFlowVersionCmd(c),
	)
	return flowCmd
}

func newFlowShowCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "show <flow-id>",
		Short: "Show a flow with its nodes",
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
			detail, draft, err := a.loadFlow(ctx, args[0])
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), detail)
			}
			sess := a.currentSession(ctx)
			printFlow(cmd.OutOrStdout(), detail, session.AffordancesFor(sess, detail.Flow), draft != nil)
			return nil
		},
	}
	out.register(cmd, "text", "text", "json", "yaml")
	return cmd
}

func printFlow(w io.Writer, detail schema.FlowDetail, aff session.Affordances, hasDraft bool) {
	f := detail.Flow
	fmt.Fprintf(w, "%s  %s\n", f.FlowNo, f.Title)
	fmt.Fprintf(w, "Status:   %s\n", forms.StatusLabel(f.Status))
	fmt.Fprintf(w, "Owner:    %s (dept %s)\n", f.OwnerID, f.OwnerDeptID)
	fmt.Fprintf(w, "Updated:  %s\n", formatTime(f.UpdatedAt))
	minDays, maxDays := editor.Totals(detail.Nodes)
	fmt.Fprintf(w, "Duration: %s ~ %s days\n", formatDays(minDays), formatDays(maxDays))
	if hasDraft {
		fmt.Fprintln(w, "Local draft with unsaved changes")
	}
	var actions []string
	if aff.CanEdit {
		actions = append(actions, "edit")
	}
	if aff.CanSubmit {
		actions = append(actions, "submit")
	}
	if aff.CanPublish {
		actions = append(actions, "publish")
	}
	if len(actions) > 0 {
		fmt.Fprintf(w, "Actions:  %v\n", actions)
	}
	if f.Overview != "" {
		fmt.Fprintf(w, "\n%s\n", f.Overview)
	}
	fmt.Fprintln(w)
	printNodes(w, editor.Ordered(detail.Nodes))
}

func printNodes(w io.Writer, nodes []schema.FlowNode) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "NO\tNAME\tEXEC FORM\tDURATION\tRESPONSIBLE\tID")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			n.NodeNo, n.Name, forms.ExecFormLabel(n.ExecForm),
			forms.DurationText(n.DurationMin, n.DurationMax, n.DurationUnit),
			forms.JoinValues(n.RACI[schema.RACIResponsible]), n.ID)
	}
	tw.Flush()
}

func newFlowNodesCmd(c *cli) *cobra.Command {
	var (
		out    outputFlags
		where  string
		cel    string
		engine string
	)
	cmd := &cobra.Command{
		Use:   "nodes <flow-id>",
		Short: "List a flow's nodes in step order, optionally filtered",
		Example: `  flowdesk flow nodes f1 --where 'exec_form == "DOC_REVIEW"'
  flowdesk flow nodes f1 --cel 'node.max_days > 3.0'
  flowdesk flow nodes f1 --where '.raci.R | any(. == "Legal")' --engine jq --jq '.[].name'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "table", "json", "yaml"); err != nil {
				return err
			}
			if where != "" && cel != "" {
				return fmt.Errorf("--where and --cel are mutually exclusive")
			}
			if cel != "" {
				where, engine = cel, "cel"
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			detail, _, err := a.loadFlow(ctx, args[0])
			if err != nil {
				return err
			}
			nodes, err := filterNodes(ctx, engine, where, detail)
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), nodes)
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	}
	out.register(cmd, "table", "table", "json", "yaml")
	cmd.Flags().StringVar(&where, "where", "", "Predicate over each node")
	cmd.Flags().StringVar(&cel, "cel", "", "CEL predicate over `node` (shorthand for --where with --engine cel)")
	cmd.Flags().StringVar(&engine, "engine", "expr", "Expression language of --where: expr, cel or jq")
	return cmd
}

func filterNodes(ctx context.Context, engineName, where string, detail schema.FlowDetail) ([]schema.FlowNode, error) {
	nodes := editor.Ordered(detail.Nodes)
	if where == "" {
		return nodes, nil
	}
	engine, err := expressions.NewEngine(engineName)
	if err != nil {
		return nil, err
	}
	return expressions.FilterNodes(ctx, engine, where, &detail.Flow, nodes)
}

func newTransitionCmd(c *cli, use, short string, to schema.FlowStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <flow-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			flow, err := a.transition(ctx, cmd.ErrOrStderr(), args[0], to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", flow.Title, forms.StatusLabel(flow.Status))
			return nil
		},
	}
}

// transition moves a flow to the next lifecycle status. It refuses while a
// local draft holds unsaved edits, and checks review readiness before a
// submission. Readiness warnings are printed to warn.
func (a *app) transition(ctx context.Context, warn io.Writer, flowID string, to schema.FlowStatus) (*schema.Flow, error) {
	sess, err := a.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	detail, err := a.api.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	from := detail.Flow.Status

	fsm := lifecycle.NewFlowFSM(a.store)
	if err := fsm.Check(flowID, from, to); err != nil {
		return nil, err
	}
	aff := session.AffordancesFor(sess, detail.Flow)
	if (to == schema.FlowStatusInReview && !aff.CanSubmit) || (to == schema.FlowStatusEffective && !aff.CanPublish) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition, "only the owner of %s can move it to %s", flowID, to).
			WithDetails(map[string]any{"owner_id": detail.Flow.OwnerID, "user_id": sess.UserID})
	}
	if _, err := a.store.GetDraft(ctx, flowID); err == nil {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "flow %s has unsaved local edits; save or discard the draft first", flowID)
	} else if !schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, err
	}

	if to == schema.FlowStatusInReview {
		res := validation.ReviewReadiness(*detail)
		for _, w := range res.Warnings {
			fmt.Fprintf(warn, "warning: %s: %s\n", w.Path, w.Message)
		}
		if !res.Valid() {
			for _, e := range res.Errors {
				fmt.Fprintf(warn, "error: %s: %s\n", e.Path, e.Message)
			}
			return nil, res.ToError()
		}
	}

	var flow *schema.Flow
	if to == schema.FlowStatusInReview {
		flow, err = a.api.SubmitReview(ctx, flowID)
	} else {
		flow, err = a.api.Publish(ctx, flowID)
	}
	if err != nil {
		return nil, err
	}
	if err := fsm.Transition(ctx, flowID, from, flow.Status); err != nil {
		a.logger.WarnContext(ctx, "record transition", slog.String("flow_id", flowID), slog.String("error", err.Error()))
	}
	return flow, nil
}

func newFlowVersionsCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "versions <flow-id>",
		Short: "List published versions, from the local cache when offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "table", "json", "yaml"); err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			versions, cached, err := a.versions(ctx, args[0])
			if err != nil {
				return err
			}
			if cached {
				fmt.Fprintln(cmd.ErrOrStderr(), "backend unreachable; showing cached versions")
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), versions)
			}
			if len(versions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No published versions.")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tCREATED BY\tCREATED")
			for _, v := range versions {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.CreatedBy, formatTime(v.CreatedAt))
			}
			return tw.Flush()
		},
	}
	out.register(cmd, "table", "table", "json", "yaml")
	return cmd
}

// versions lists a flow's versions and refreshes the cache. Transport
// failures fall back to the cache; the second result reports that.
func (a *app) versions(ctx context.Context, flowID string) ([]schema.FlowVersion, bool, error) {
	versions, err := a.api.ListVersions(ctx, flowID)
	if err == nil {
		if cerr := a.store.CacheVersions(ctx, versions); cerr != nil {
			a.logger.WarnContext(ctx, "cache versions", slog.String("error", cerr.Error()))
		}
		return versions, false, nil
	}
	var tErr *client.TransportError
	if !errors.As(err, &tErr) {
		return nil, false, err
	}
	cached, cerr := a.store.ListCachedVersions(ctx, flowID)
	if cerr != nil {
		return nil, false, errors.Join(err, cerr)
	}
	return cached, true, nil
}

func newFlowVersionCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "version <flow-id> <version-id>",
		Short: "Show a published version's snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "text", "json", "yaml"); err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			v, err := a.api.GetVersion(ctx, args[0], args[1])
			if err != nil {
				var tErr *client.TransportError
				if !errors.As(err, &tErr) {
					return err
				}
				if v, err = a.store.GetCachedVersion(ctx, args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "backend unreachable; showing cached version")
			}
			snapshot, err := v.Snapshot()
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), map[string]any{"version": v, "snapshot": snapshot})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Version %s, published %s by %s\n\n", v.ID, formatTime(v.CreatedAt), v.CreatedBy)
			printFlow(w, snapshot, session.Affordances{}, false)
			return nil
		},
	}
	out.register(cmd, "text", "text", "json", "yaml")
	return cmd
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatDays(d float64) string {
	return fmt.Sprintf("%g", float64(int64(d*10+0.5))/10)
}
