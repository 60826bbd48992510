package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/internal/validation"
	"github.com/rendis/flowdesk/internal/watch"
	"github.com/rendis/flowdesk/pkg/schema"
)

func newDiagramCmd(c *cli) *cobra.Command {
	diagramCmd := &cobra.Command{
		Use:   "diagram",
		Short: "Render, validate and live-import flow diagrams",
	}
	diagramCmd.AddCommand(newDiagramRenderCmd(c), newDiagramValidateCmd(), newDiagramWatchCmd(c))
	return diagramCmd
}

func newDiagramRenderCmd(c *cli) *cobra.Command {
	var (
		format string
		file   string
		outP   string
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "render [flow-id]",
		Short: "Render a flow's diagram as Mermaid, ASCII or PNG",
		Long: "Render the diagram of a flow (its local draft when there is one, unless --remote), " +
			"or of a diagram JSON file given with --file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(format, "mermaid", "ascii", "png"); err != nil {
				return err
			}
			if (file == "") == (len(args) == 0) {
				return fmt.Errorf("give either a flow id or --file")
			}

			var model *diagram.RenderModel
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				d, err := diagram.ParseStrict(string(raw))
				if err != nil {
					return err
				}
				model = diagram.Build(d, nil, diagram.BuildOptions{Title: file})
			} else {
				a, err := c.open(ctx)
				if err != nil {
					return err
				}
				detail, draft, err := a.loadFlow(ctx, args[0])
				if err != nil {
					return err
				}
				if draft != nil && !remote {
					detail = draft.Detail()
				}
				model = diagram.Build(diagram.Parse(detail.Flow.DiagramJSON), detail.Nodes,
					diagram.BuildOptions{Title: detail.Flow.Title})
			}

			var w io.Writer = cmd.OutOrStdout()
			if outP != "" {
				f, err := os.Create(outP)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "mermaid":
				_, err := io.WriteString(w, diagram.RenderMermaid(model))
				return err
			case "ascii":
				_, err := io.WriteString(w, diagram.RenderASCII(model))
				return err
			default:
				if outP == "" {
					return fmt.Errorf("--out is required for png")
				}
				png, err := diagram.RenderImage(ctx, model)
				if err != nil {
					return err
				}
				_, err = w.Write(png)
				return err
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format: mermaid, ascii or png")
	cmd.Flags().StringVar(&file, "file", "", "Render a diagram JSON file instead of a flow")
	cmd.Flags().StringVar(&outP, "out", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&remote, "remote", false, "Ignore the local draft")
	return cmd
}

func newDiagramValidateCmd() *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a diagram JSON file against the schema and graph rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "text", "json", "yaml"); err != nil {
				return err
			}
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			v, err := validation.NewDiagramValidator()
			if err != nil {
				return err
			}
			res := v.Validate(string(raw))
			if out.structured() {
				if err := out.write(ctx, cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printIssues(cmd.OutOrStdout(), res)
			}
			return res.ToError()
		},
	}
	out.register(cmd, "text", "text", "json", "yaml")
	return cmd
}

func printIssues(w io.Writer, res *schema.ValidationResult) {
	for _, e := range res.Errors {
		fmt.Fprintf(w, "error   %-22s %s: %s\n", e.Code, e.Path, e.Message)
	}
	for _, e := range res.Warnings {
		fmt.Fprintf(w, "warning %-22s %s: %s\n", e.Code, e.Path, e.Message)
	}
	if res.Valid() {
		fmt.Fprintf(w, "ok (%d warnings)\n", len(res.Warnings))
	}
}

func newDiagramWatchCmd(c *cli) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "watch <flow-id> <file>",
		Short: "Import a diagram JSON file into a flow every time it changes",
		Long: "Watch a diagram JSON file and import it into the flow's editing session on every write. " +
			"Imports land in the local draft; --save also sends each import to the backend.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			e, _, err := a.openEditor(ctx, args[0], nil)
			if err != nil {
				return err
			}
			if !e.Editable() {
				return schema.NewErrorf(schema.ErrCodeReadOnly, "flow %s is not editable by this session", args[0])
			}

			stderr := cmd.ErrOrStderr()
			w, err := watch.New(args[1], e, watch.Options{
				Logger: a.logger,
				OnImport: func(ierr error) {
					if ierr != nil {
						fmt.Fprintf(stderr, "import failed: %v\n", ierr)
						return
					}
					fmt.Fprintf(stderr, "imported %d nodes\n", len(e.Diagram().Nodes))
					if !save {
						return
					}
					if err := e.Save(ctx, a.api); err != nil {
						a.logger.WarnContext(ctx, "save after import", slog.String("error", err.Error()))
						return
					}
					fmt.Fprintln(stderr, "saved")
				},
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save to the backend after every successful import")
	return cmd
}
