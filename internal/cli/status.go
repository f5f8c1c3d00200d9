package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dmitrymomot/notifykit/internal/app"
	"github.com/dmitrymomot/notifykit/pkg/channel"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var errNoLedger = errors.New("PG_CONN_URL is required to read the ledger")

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Print a notification and its attempts from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications from the ledger, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ledger counts per state and channel",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	addListFlags(listCmd.Flags())
	statsCmd.Flags().Duration("since", 7*24*time.Hour, "Only records created within this duration, 0 for all")
}

func addListFlags(f *pflag.FlagSet) {
	f.String("channel", "", "Only this channel")
	f.StringSlice("state", nil, "Only these states")
	f.Duration("since", 0, "Only records created within this duration")
	f.Int("limit", 50, "Maximum number of records")
	f.Int("offset", 0, "Records to skip")
}

type statusView struct {
	Record   notifications.Record    `json:"record"`
	Attempts []notifications.Attempt `json:"attempts"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	attempts, err := store.Attempts(cmd.Context(), rec.ID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), statusView{Record: rec, Attempts: attempts})
}

func runList(cmd *cobra.Command, _ []string) error {
	opts, err := listOptionsFromFlags(cmd.Flags(), time.Now())
	if err != nil {
		return err
	}
	store, closeStore, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	recs, err := store.List(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), recs)
}

func runStats(cmd *cobra.Command, _ []string) error {
	since, err := sinceFromFlags(cmd.Flags(), time.Now())
	if err != nil {
		return err
	}
	store, closeStore, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	st, err := notifications.ReadStats(cmd.Context(), store, since)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), st)
}

func sinceFromFlags(f *pflag.FlagSet, now time.Time) (time.Time, error) {
	d, err := f.GetDuration("since")
	switch {
	case err != nil:
		return time.Time{}, err
	case d < 0:
		return time.Time{}, fmt.Errorf("since must not be negative, got %s", d)
	case d == 0:
		return time.Time{}, nil
	}
	return now.Add(-d), nil
}

func listOptionsFromFlags(f *pflag.FlagSet, now time.Time) (notifications.ListOptions, error) {
	var opts notifications.ListOptions

	if name, _ := f.GetString("channel"); name != "" {
		kind, err := channel.ParseKind(name)
		if err != nil {
			return opts, err
		}
		opts.Channel = kind
	}
	states, _ := f.GetStringSlice("state")
	for _, s := range states {
		st := notifications.State(strings.TrimSpace(s))
		switch st {
		case notifications.StateQueued, notifications.StateSending, notifications.StateRetrying,
			notifications.StateDelivered, notifications.StateFailed, notifications.StateDuplicateSuppressed:
			opts.States = append(opts.States, st)
		default:
			return opts, fmt.Errorf("unknown state %q", s)
		}
	}
	if since, _ := f.GetDuration("since"); since > 0 {
		opts.Since = now.Add(-since)
	}
	opts.Limit, _ = f.GetInt("limit")
	opts.Offset, _ = f.GetInt("offset")
	return opts, nil
}

// openLedger opens the persistent ledger. The in-memory one would always be empty.
func openLedger(ctx context.Context) (notifications.Storage, func(), error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.PG.Enabled() {
		return nil, nil, errNoLedger
	}
	cfg.PG.AutoMigrate = false

	store, pool, err := app.OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
