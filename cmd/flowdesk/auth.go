package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowdesk/internal/session"
)

func newLoginCmd(c *cli) *cobra.Command {
	var email, password, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session token in the local vault",
		Long: "Sign in with --email and a password (from --password, FLOWDESK_PASSWORD or stdin), " +
			"or adopt an existing bearer token with --token.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}

			var s *session.Session
			if token != "" {
				s, err = a.sessions.Adopt(ctx, token)
			} else {
				if email == "" {
					return fmt.Errorf("--email or --token is required")
				}
				if password == "" {
					password = os.Getenv("FLOWDESK_PASSWORD")
				}
				if password == "" {
					password, err = readSecret(cmd, "Password: ")
					if err != nil {
						return err
					}
				}
				s, err = a.sessions.Login(ctx, a.api, email, password)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", displayName(s), s.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&token, "token", "", "Adopt an existing bearer token instead of signing in")
	return cmd
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.sessions.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	var out outputFlags
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := validFormat(out.format, "text", "json", "yaml"); err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			s, err := a.sessions.Current(ctx)
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(ctx, cmd.OutOrStdout(), s)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "User:    %s\n", s.UserID)
			fmt.Fprintf(w, "Email:   %s\n", s.Email)
			fmt.Fprintf(w, "Role:    %s\n", s.Role)
			if !s.ExpiresAt.IsZero() {
				fmt.Fprintf(w, "Expires: %s\n", s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	out.register(cmd, "text", "text", "json", "yaml")
	return cmd
}

func displayName(s *session.Session) string {
	if s.Email != "" {
		return s.Email
	}
	return s.UserID
}

// readSecret reads one line from the command's input.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
