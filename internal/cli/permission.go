package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/agent-notify/internal/permission"
)

func newPermissionCmd(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:       "permission [status|request|reset|grant|deny]",
		Short:     "Show or change the desktop notification permission",
		Long:      "Show or change whether notifications are also raised as desktop alerts. request asks interactively unless a decision was already made; reset forgets the decision.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"status", "request", "reset", "grant", "deny"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "status"
			if len(args) == 1 {
				action = args[0]
			}

			e, err := newEnv(opts, logToStderr)
			if err != nil {
				return err
			}
			defer e.Close()

			var prompter permission.Prompter = permission.TerminalPrompter{}
			if yes {
				prompter = permission.StaticPrompter(true)
			}

			out := cmd.OutOrStdout()
			warn := func(text string) { fmt.Fprintln(cmd.ErrOrStderr(), text) }

			platform, _ := e.connectDesktop()
			gate := permission.NewGate(platform, e.sqlite, prompter,
				permission.WithWarner(warn),
				permission.WithLogger(e.logger),
			)

			ctx := cmd.Context()
			switch action {
			case "request":
				if _, err := gate.Request(ctx); err != nil {
					return err
				}
			case "reset":
				if err := gate.Reset(ctx); err != nil {
					return err
				}
			case "grant":
				if err := gate.Set(ctx, permission.Granted); err != nil {
					return err
				}
			case "deny":
				if err := gate.Set(ctx, permission.Denied); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "Desktop notifications: %s\n", gate.State(ctx))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Allow without asking when a request prompts")

	return cmd
}
