package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/lifecycle"
	"github.com/rendis/flowdesk/internal/logging"
	"github.com/rendis/flowdesk/internal/panel"
	"github.com/rendis/flowdesk/internal/scheduler"
	"github.com/rendis/flowdesk/internal/streaming"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/pkg/schema"
)

func newPanelCmd(c *cli) *cobra.Command {
	panelCmd := &cobra.Command{
		Use:   "panel",
		Short: "Serve the local workbench, or follow its event stream",
	}
	panelCmd.AddCommand(newPanelServeCmd(c), newPanelTailCmd(c))
	return panelCmd
}

func newPanelServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <flow-id>",
		Short: "Open a flow in the local workbench",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			hub := streaming.NewMemoryHub()
			e, sess, err := a.openEditor(ctx, args[0], hub)
			if err != nil {
				return err
			}
			v, err := validation.NewDiagramValidator()
			if err != nil {
				return err
			}
			srv := panel.NewPanelServer(panel.PanelDeps{
				Editor:    e,
				Backend:   a.api,
				Hub:       hub,
				Validator: v,
				Lifecycle: lifecycle.NewFlowFSM(a.store),
				Session:   sess,
				Versions:  a.store,
				Logger:    a.logger,
			})

			janitor, err := scheduler.NewJanitor(a.store, scheduler.Config{
				Schedule: a.cfg.JanitorSchedule,
				TTL:      a.cfg.DraftTTL.Std(),
			}, a.logger)
			if err != nil {
				return err
			}
			if err := janitor.WithPublisher(hub).Start(ctx); err != nil {
				return err
			}
			defer janitor.Stop()

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					a.logger.Warn("panel shutdown", slog.String("error", err.Error()))
				}
			}()

			mode := "read-only"
			if e.Editable() {
				mode = "editing"
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Workbench for %q (%s) at http://%s/\n", e.State().Flow.Title, mode, addr)
			a.logger.InfoContext(logging.WithFlowID(ctx, e.FlowID()), "panel listening",
				slog.String("addr", addr), slog.Time("next_prune", janitor.Next()))

			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if e.Dirty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Unsaved changes are kept in the local draft.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from listen_addr)")
	return cmd
}

func newPanelTailCmd(c *cli) *cobra.Command {
	var (
		target string
		kinds  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the editor events of a running workbench",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if target == "" {
				target = "http://" + cfg.ListenAddr + "/sse/events"
			}
			if len(kinds) > 0 {
				u, err := url.Parse(target)
				if err != nil {
					return err
				}
				q := u.Query()
				q.Set("kinds", strings.Join(kinds, ","))
				u.RawQuery = q.Encode()
				target = u.String()
			}

			w := cmd.OutOrStdout()
			enc := json.NewEncoder(w)
			err = streaming.Tail(ctx, target, streaming.TailOptions{
				Logger: logging.New(cfg.LogLevel, cfg.LogFormat),
			}, func(ev schema.EditorEvent) error {
				if asJSON {
					return enc.Encode(ev)
				}
				_, err := fmt.Fprintf(w, "%s %-20s %s %s\n", ev.Timestamp.Local().Format("15:04:05"), ev.Kind, ev.NodeID, ev.EdgeID)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&target, "url", "", "Event stream URL (default from listen_addr)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only these event kinds (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each event as a JSON line")
	return cmd
}
