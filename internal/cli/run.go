package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/app"
	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/presenter"
	appsync "github.com/nhle/agent-notify/internal/sync"
	"github.com/nhle/agent-notify/internal/worker"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the notification page",
		Long:  "Open the interactive notification history. New notifications are polled while the page is open and handed to the background worker when one is running.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPage(cmd.Context(), opts, noWorker)
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Do not connect to the background worker")

	return cmd
}

func runPage(parent context.Context, opts *globalOptions, noWorker bool) error {
	e, err := newEnv(opts, logToFile)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	bridge := app.NewBridge()
	platform, notifier := e.connectDesktop()

	gate := permission.NewGate(platform, e.sqlite, bridge,
		permission.WithWarner(bridge.Warn),
		permission.WithLogger(e.logger),
	)

	svc := e.service(notifications.WithConfirmer(bridge))

	var alerter presenter.Alerter
	if notifier != nil {
		alerter = notifier
	}
	pres := presenter.New(presenter.Config{
		Sink:         bridge,
		Alerter:      alerter,
		Gate:         gate,
		Focuser:      bridge,
		Reader:       svc,
		Lookup:       e.store,
		AlertTimeout: e.cfg.Presenter.AlertTimeout,
		Logger:       e.logger,
	})

	channel := appsync.New(appsync.Config{
		Name:      appsync.Foreground,
		Interval:  e.cfg.Polling.ForegroundInterval,
		Fetcher:   e.client,
		Identity:  e.session,
		Store:     e.store,
		Presenter: pres,
		Logger:    e.logger,
	})
	svc.SetRefresher(channel)

	if notifier != nil {
		notifier.OnAction(func(id, action string) {
			if err := pres.Click(ctx, id, action); err != nil {
				e.logger.Warn("handling alert click", zap.String("id", id), zap.Error(err))
			}
		})
		go func() {
			if err := notifier.Listen(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("listening for alert actions", zap.Error(err))
			}
		}()
	}

	var workerClient *worker.Client
	if !noWorker {
		workerClient, err = worker.Dial(e.cfg.Worker.URL(), e.cfg.Worker.RequestTimeout, e.logger)
		if err != nil {
			e.logger.Info("background worker not reachable", zap.Error(err))
			workerClient = nil
		} else {
			defer workerClient.Close()
		}
	}

	page := app.New(&app.Deps{
		Config:     e.cfg,
		ConfigPath: opts.configPath,
		Ctx:        ctx,
		Cancel:     cancel,
		Session:    e.session,
		Registrar:  e.registrar,
		DeviceName: e.deviceName,
		DeviceID:   e.deviceID,
		Channel:    channel,
		Store:      e.store,
		Service:    svc,
		Presenter:  pres,
		Gate:       gate,
		Worker:     workerClient,
		Bridge:     bridge,
		Logger:     e.logger,
	})

	p := tea.NewProgram(page, tea.WithAltScreen())
	bridge.Attach(p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running notification page: %w", err)
	}
	return nil
}
