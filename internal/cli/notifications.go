package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/theme"
)

// sessionFlags are the flags of commands that register and act once.
type sessionFlags struct {
	timeout time.Duration
	yes     bool
}

func (f *sessionFlags) bind(cmd *cobra.Command, confirmable bool) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", defaultRegisterTimeout, "How long to keep retrying registration")
	if confirmable {
		cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")
	}
}

func (f *sessionFlags) confirmer() notifications.Confirmer {
	if f.yes {
		return notifications.AlwaysConfirm
	}
	return notifications.ConfirmFunc(terminalConfirm)
}

// terminalConfirm asks a yes/no question on the terminal.
func terminalConfirm(ctx context.Context, question string) (bool, error) {
	var ok bool
	confirm := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	err := huh.NewForm(huh.NewGroup(confirm)).
		WithShowHelp(false).
		RunWithContext(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// withService registers, loads the current history and hands a service to
// fn. The history is loaded first so local state matches the backend and
// the snapshot written after a change is complete.
func withService(ctx context.Context, opts *globalOptions, flags *sessionFlags, fn func(*env, *notifications.Service) error) error {
	e, err := newEnv(opts, logToStderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.register(ctx, flags.timeout); err != nil {
		return err
	}
	defer e.session.Dispose()

	svc := e.service(notifications.WithConfirmer(flags.confirmer()))
	if err := svc.LoadHistory(ctx); err != nil {
		return err
	}
	return fn(e, svc)
}

func newTestCmd(opts *globalOptions) *cobra.Command {
	flags := &sessionFlags{}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Ask the backend to send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts, logToStderr)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.register(ctx, flags.timeout); err != nil {
				return err
			}
			defer e.session.Dispose()

			if err := e.service().SendTest(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification requested. It arrives with the next poll.")
			return nil
		},
	}
	flags.bind(cmd, false)

	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		flags      sessionFlags
		jsonOutput bool
		unreadOnly bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the notification history",
		Long:  "List the notification history from the backend. When the backend cannot be reached the last saved snapshot is shown instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts, logToStderr)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			svc := e.service()

			source := "backend"
			if offline {
				source = "snapshot"
			} else if err := loadRemote(ctx, e, svc, flags.timeout); err != nil {
				e.logger.Warn("falling back to snapshot", zap.Error(err))
				source = "snapshot"
			}
			if source == "snapshot" {
				if _, err := svc.RestoreSnapshot(ctx); err != nil {
					return err
				}
			}

			items := e.store.List()
			if unreadOnly {
				items = filterUnread(items)
			}

			if jsonOutput {
				return renderHistoryJSON(cmd.OutOrStdout(), items, e.store.UnreadCount(), source)
			}
			renderHistory(cmd.OutOrStdout(), items, e.store.UnreadCount(), source)
			return nil
		},
	}
	flags.bind(cmd, false)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "Only list unread notifications")
	cmd.Flags().BoolVar(&offline, "offline", false, "Show the saved snapshot without contacting the backend")

	return cmd
}

func loadRemote(ctx context.Context, e *env, svc *notifications.Service, timeout time.Duration) error {
	if err := e.register(ctx, timeout); err != nil {
		return err
	}
	defer e.session.Dispose()
	return svc.LoadHistory(ctx)
}

func newReadCmd(opts *globalOptions) *cobra.Command {
	flags := &sessionFlags{}

	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withService(cmd.Context(), opts, flags, func(e *env, svc *notifications.Service) error {
				n, ok := e.store.Get(id)
				if !ok {
					return fmt.Errorf("notification %s not found in history", id)
				}
				if n.Read {
					fmt.Fprintf(cmd.OutOrStdout(), "Notification %s is already read.\n", id)
					return nil
				}
				if err := svc.MarkRead(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read.\n", id)
				return nil
			})
		},
	}
	flags.bind(cmd, false)

	return cmd
}

func newReadAllCmd(opts *globalOptions) *cobra.Command {
	flags := &sessionFlags{}

	cmd := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, flags, func(e *env, svc *notifications.Service) error {
				if err := svc.MarkAllRead(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All notifications marked as read.")
				return nil
			})
		},
	}
	flags.bind(cmd, true)

	return cmd
}

func newClearCmd(opts *globalOptions) *cobra.Command {
	flags := &sessionFlags{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole notification history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), opts, flags, func(e *env, svc *notifications.Service) error {
				if err := svc.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Notification history cleared.")
				return nil
			})
		},
	}
	flags.bind(cmd, true)

	return cmd
}

func filterUnread(items []model.Notification) []model.Notification {
	out := items[:0:0]
	for _, n := range items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// historyJSON is the --json output of the history command.
type historyJSON struct {
	Source        string               `json:"source"`
	UnreadCount   int                  `json:"unread_count"`
	Notifications []model.Notification `json:"notifications"`
}

func renderHistoryJSON(w io.Writer, items []model.Notification, unread int, source string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(historyJSON{Source: source, UnreadCount: unread, Notifications: items})
}

func renderHistory(w io.Writer, items []model.Notification, unread int, source string) {
	header := fmt.Sprintf("%d notifications, %d unread", len(items), unread)
	if source == "snapshot" {
		header += " (offline snapshot)"
	}
	fmt.Fprintln(w, theme.HeaderStyle.Render(header))

	if len(items) == 0 {
		fmt.Fprintln(w, theme.DimmedStyle.Render("No notifications yet."))
		return
	}

	for _, n := range items {
		marker, style := " ", theme.ReadStyle
		if !n.Read {
			marker, style = "●", theme.UnreadStyle
		}
		when := ""
		if !n.CreatedAt.IsZero() {
			when = n.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %s %s  %s  %s\n",
			marker,
			n.Icon(),
			style.Render(n.Title),
			theme.DimmedStyle.Render("#"+n.ID),
			theme.DimmedStyle.Render(when),
		)
		if msg := strings.TrimSpace(n.Message); msg != "" {
			fmt.Fprintf(w, "    %s\n", firstLine(msg))
		}
		if url := n.URL(); url != "" {
			fmt.Fprintf(w, "    %s\n", theme.DimmedStyle.Render(url))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
