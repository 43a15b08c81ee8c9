package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/presenter"
	appsync "github.com/nhle/agent-notify/internal/sync"
	"github.com/nhle/agent-notify/internal/worker"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func newWorkerCmd(opts *globalOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background notification worker",
		Long:  "Run the long-lived worker that keeps polling and raising desktop alerts after the page is closed. Pages control it over an embedded message bus.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, opts, httpAddr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "Override worker.http_addr; \"off\" disables the health endpoint")

	return cmd
}

func runWorker(ctx context.Context, opts *globalOptions, httpAddr string) error {
	e, err := newEnv(opts, logToJSON)
	if err != nil {
		return err
	}
	defer e.Close()

	bus, err := worker.StartBus(e.cfg.Worker.Host, e.cfg.Worker.Port)
	if err != nil {
		return err
	}
	defer bus.Shutdown()

	nc, err := nats.Connect(bus.ClientURL(), nats.Name("agentnotify-worker"))
	if err != nil {
		return fmt.Errorf("connecting to message bus: %w", err)
	}
	defer nc.Close()

	platform, notifier := e.connectDesktop()

	// The worker cannot prompt; only a decision made in a page or with
	// `agentnotify permission` applies here.
	gate := permission.NewGate(platform, e.sqlite, nil, permission.WithLogger(e.logger))

	// The worker's history is its own; only the page keeps a snapshot.
	svc := notifications.NewService(e.client, e.session, e.store, notifications.WithLogger(e.logger))

	var alerter presenter.Alerter
	if notifier != nil {
		alerter = notifier
	}
	pres := presenter.New(presenter.Config{
		Alerter:      alerter,
		Gate:         gate,
		Reader:       svc,
		Lookup:       e.store,
		AlertTimeout: e.cfg.Presenter.AlertTimeout,
		Logger:       e.logger,
	})

	channel := appsync.New(appsync.Config{
		Name:      appsync.Background,
		Interval:  e.cfg.Polling.BackgroundInterval,
		Fetcher:   e.client,
		Identity:  e.session,
		Store:     e.store,
		Presenter: pres,
		Logger:    e.logger,
	})

	metrics := worker.NewMetrics()
	server := worker.NewServer(nc, channel, e.session, metrics, e.logger)
	pres.OnAlert = server.AlertShown

	if notifier != nil {
		notifier.OnAction(func(id, action string) {
			n, _ := e.store.Get(id)
			server.Clicked(action, n)
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

	if httpAddr == "" {
		httpAddr = e.cfg.Worker.HTTPAddr
	}
	if httpAddr != "off" {
		hs := worker.NewHTTPServer(server, metrics, e.logger)
		go func() {
			if err := hs.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("http server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := hs.Shutdown(shutdownCtx); err != nil {
				e.logger.Warn("shutting down http server", zap.Error(err))
			}
		}()
	}

	e.logger.Info("worker started",
		zap.String("bus", bus.ClientURL()),
		zap.Duration("interval", channel.Interval()),
	)

	return server.Serve(ctx)
}
