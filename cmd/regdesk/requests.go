package main

import (
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"regdesk/internal/api"
	apperrors "regdesk/internal/errors"
)

// clientFlags override the cli section of the config for one invocation
type clientFlags struct {
	server string
	token  string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "base URL of the running server (default derived from cli.server_url or server.addr)")
	cmd.Flags().StringVar(&f.token, "token", "", "admin bearer token (default cli.token)")
}

// newClient builds an admin API client. Review commands always go through the
// server so the requests file has a single writer and events reach subscribers.
func newClient(cfgFile string, f *clientFlags) (*api.Client, error) {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	server := f.server
	if server == "" {
		server = cfg.AdminServerURL()
	}
	token := f.token
	if token == "" {
		token = cfg.CLI.Token
	}
	if token == "" {
		return nil, errors.New("an admin token is required: pass --token or set cli.token")
	}

	return api.NewClient(server, token, &http.Client{Timeout: cfg.CLI.Timeout}), nil
}

func commandError(err error) error {
	var userErr *apperrors.UserError
	if errors.As(err, &userErr) {
		return fmt.Errorf("%s: %w", userErr.UserMsg, err)
	}
	return err
}

func newPendingCmd(cfgFile *string) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List registration requests awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*cfgFile, &flags)
			if err != nil {
				return err
			}

			pending, err := client.Pending(cmd.Context())
			if err != nil {
				return fmt.Errorf("list pending requests: %w", commandError(err))
			}

			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending registration requests.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tCREATED")
			for _, req := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					req.ID, req.Username, req.Email, req.CreateDate.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}

var processShort = map[string]string{
	"approve": "Approve a pending registration request and create its account",
	"reject":  "Reject a pending registration request",
}

// newProcessCmd builds the approve and reject commands.
// The processing admin is the one bound to the bearer token on the server.
func newProcessCmd(cfgFile *string, action string) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   action + " <request-id>",
		Short: processShort[action],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*cfgFile, &flags)
			if err != nil {
				return err
			}

			id := args[0]
			out := cmd.OutOrStdout()

			switch action {
			case "approve":
				accountID, err := client.Approve(cmd.Context(), id)
				if err != nil {
					return commandError(err)
				}
				fmt.Fprintf(out, "Approved %s. Account %s created.\n", id, accountID)

			case "reject":
				if err := client.Reject(cmd.Context(), id); err != nil {
					return commandError(err)
				}
				fmt.Fprintf(out, "Rejected %s.\n", id)

			default:
				return fmt.Errorf("unknown action %q", action)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
