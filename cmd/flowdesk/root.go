package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/pkg/schema"
)

// globalFlags override the loaded configuration when set.
type globalFlags struct {
	configPath string
	apiURL     string
	dbPath     string
	logLevel   string
	logFormat  string
	timeout    time.Duration
}

// cli carries the flags and the lazily opened app through the command tree.
type cli struct {
	flags globalFlags
	app   *app
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowdesk",
		Short:         "Edit, review and publish business flows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "Path to settings.json (default ~/.flowdesk/settings.json)")
	pf.StringVar(&c.flags.apiURL, "api", "", "API base URL")
	pf.StringVar(&c.flags.dbPath, "db", "", "Path to the local database")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&c.flags.logFormat, "log-format", "", "Log format: text or json")
	pf.DurationVar(&c.flags.timeout, "timeout", 0, "Per-request timeout")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newFlowsCmd(c),
		newFlowCmd(c),
		newDiagramCmd(c),
		newDraftsCmd(c),
		newPanelCmd(c),
		newMCPCmd(c),
		newVersionCmd(),
	)
	return root
}

// exitCode maps errors onto process exit codes: 2 for bad input, 3 when
// signed out, 4 for backend and transport failures, 1 otherwise.
func exitCode(err error) int {
	var fe *schema.FlowdeskError
	var apiErr *client.APIError
	var tErr *client.TransportError
	switch {
	case client.IsUnauthenticated(err):
		return 3
	case errors.As(err, &tErr), errors.As(err, &apiErr):
		return 4
	case errors.As(err, &fe):
		switch fe.Code {
		case schema.ErrCodeUnauthenticated:
			return 3
		case schema.ErrCodeValidation, schema.ErrCodeInvalidConnection, schema.ErrCodeInvalidTransition:
			return 2
		case schema.ErrCodeTransport:
			return 4
		}
	}
	return 1
}
