package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmitrymomot/notifykit/internal/app"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit one notification and optionally wait for the outcome",
	Example: `  notifyd send --channel email --to user@example.com --title "Hi" --body "<p>Hello</p>"
  notifyd send --channel webhook --to https://example.com/hook --body '{"ok":true}' --priority high`,
	RunE: runSend,
}

func init() {
	addSendFlags(sendCmd.Flags())
	_ = sendCmd.MarkFlagRequired("channel")
	_ = sendCmd.MarkFlagRequired("body")
}

func addSendFlags(f *pflag.FlagSet) {
	f.String("channel", "", "Channel: email, chatbot or webhook")
	f.String("to", "", "Recipient address, chat id or URL")
	f.String("title", "", "Title or email subject")
	f.String("body", "", "Rendered message body")
	f.String("priority", "normal", "Priority: low, normal, high or urgent")
	f.String("id", "", "Notification id (generated when empty)")
	f.StringToString("meta", nil, "Metadata key=value pairs")
	f.Duration("delay", 0, "Delay the first attempt")
	f.Bool("wait", true, "Wait until the notification reaches a terminal state")
	f.Duration("timeout", 2*time.Minute, "How long to wait")
}

func runSend(cmd *cobra.Command, _ []string) error {
	req, err := requestFromFlags(cmd.Flags(), time.Now())
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Dispatcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.Dispatcher.Stop() }()

	rec, err := a.Dispatcher.Submit(ctx, req)
	if err != nil {
		return err
	}

	if wait, _ := cmd.Flags().GetBool("wait"); wait && !rec.State.Terminal() {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		rec, err = waitTerminal(ctx, a.Dispatcher, rec.ID, timeout)
		if err != nil {
			return err
		}
	}

	attempts, err := a.Dispatcher.Attempts(ctx, rec.ID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), statusView{Record: rec, Attempts: attempts})
}

func requestFromFlags(f *pflag.FlagSet, now time.Time) (notifications.Request, error) {
	name, _ := f.GetString("channel")
	kind, err := channel.ParseKind(name)
	if err != nil {
		return notifications.Request{}, err
	}
	p, _ := f.GetString("priority")
	priority, err := notifications.ParsePriority(p)
	if err != nil {
		return notifications.Request{}, err
	}

	req := notifications.Request{Channel: kind, Priority: priority}
	req.ID, _ = f.GetString("id")
	req.Recipient, _ = f.GetString("to")
	req.Title, _ = f.GetString("title")
	req.Body, _ = f.GetString("body")
	req.Metadata, _ = f.GetStringToString("meta")
	if len(req.Metadata) == 0 {
		req.Metadata = nil
	}
	if delay, _ := f.GetDuration("delay"); delay > 0 {
		req.SendAt = now.Add(delay)
	}
	return req, nil
}

var errWaitTimeout = errors.New("timed out waiting for a terminal state")

// waitTerminal polls the ledger until the record settles.
func waitTerminal(ctx context.Context, d *notifications.Dispatcher, id string, timeout time.Duration) (notifications.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		rec, err := d.GetStatus(ctx, id)
		if err != nil {
			return notifications.Record{}, err
		}
		if rec.State.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return rec, fmt.Errorf("%w: %s is %s", errWaitTimeout, id, rec.State)
		case <-tick.C:
		}
	}
}
