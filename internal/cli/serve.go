package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/internal/app"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher and the ops HTTP server",
	Long: "Resume pending notifications from the ledger, deliver new ones and serve\n" +
		"/healthz, /readyz and /metrics until SIGINT or SIGTERM.",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Ops server address (overrides HTTP_ADDR)")
	serveCmd.Flags().Bool("log-events", false, "Log every terminal delivery event")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.HTTP.Addr, _ = cmd.Flags().GetString("addr")
	}
	logger.SetAsDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("starting notifyd: %w", err)
	}
	defer a.Close()

	n, err := a.Dispatcher.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering pending notifications: %w", err)
	}
	log.LogAttrs(ctx, slog.LevelInfo, "notifyd started",
		slog.Int("recovered", n),
		slog.Any("channels", a.Dispatcher.Channels()),
	)

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(a.Dispatcher.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, a.Router()) })
	if logEvents, _ := cmd.Flags().GetBool("log-events"); logEvents {
		g.Go(func() error { return watchEvents(ctx, a.Events, log) })
	}
	return g.Wait()
}

// watchEvents logs delivery events until ctx is done.
func watchEvents(ctx context.Context, events *notifications.BroadcastPublisher, log *slog.Logger) error {
	sub := events.Subscribe(ctx)
	defer func() { _ = sub.Close() }()

	for msg := range sub.Receive(ctx) {
		ev := msg.Data
		log.LogAttrs(ctx, slog.LevelInfo, "delivery event",
			logger.NotificationID(ev.NotificationID),
			logger.Channel(ev.Channel.String()),
			logger.State(ev.State.String()),
			logger.Reason(ev.Reason.String()),
			logger.Attempt(ev.Attempts),
		)
	}
	return nil
}
