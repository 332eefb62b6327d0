// Package main implements parallelctl, an operator CLI working directly on the
// parallel-notify database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/config"
	"github.com/ErnestHysa/parallel-notify/internal/logger"
	"github.com/ErnestHysa/parallel-notify/internal/scheduler"
	"github.com/ErnestHysa/parallel-notify/internal/settings"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	dbPath     string
	defaultTZ  string
	logLevel   string
	outputJSON bool
}

// env is what a command needs to act on the database.
type env struct {
	repo     *store.SQLiteRepo
	settings *settings.Store
	poller   *scheduler.Poller
	triggers *store.ScheduleIndex
	log      *zap.Logger
}

func (e *env) Close() {
	_ = e.repo.Close()
	_ = e.log.Sync()
}

func openEnv(ctx context.Context, o *options) (*env, error) {
	log, err := logger.NewConsole(o.logLevel)
	if err != nil {
		return nil, err
	}
	repo, err := store.OpenSQLite(ctx, o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", o.dbPath, err)
	}
	st := settings.New(repo, log, o.defaultTZ)
	st.Load(ctx)
	return &env{
		repo:     repo,
		settings: st,
		poller:   scheduler.NewPoller(store.NewScheduleIndex(repo, store.KeyPollerScheduled, log), st, sink.NewLogNotifier(log), repo, log, 0, nil),
		triggers: store.NewScheduleIndex(repo, store.KeyScheduled, log),
		log:      log,
	}, nil
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "parallelctl",
		Short: "Inspect and edit parallel-notify schedules and settings",
		Long: `parallelctl works directly on the parallel-notify SQLite database.

Daily schedules created here are picked up by the daemon's poller on its next
check. Settings changes are read by the daemon when it starts.

Examples:
  # Show everything that is scheduled
  parallelctl list

  # Remind about the daily intention at 08:00
  parallelctl schedule-daily daily_intention 8

  # Set quiet hours
  parallelctl quiet-hours set 22-08`,
		Version:      version,
		SilenceUsage: true,
	}
	// Flag defaults come from the same environment the daemon reads.
	cfg, cfgErr := config.Load()
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if cfgErr != nil {
			return fmt.Errorf("config: %w", cfgErr)
		}
		return nil
	}
	root.PersistentFlags().StringVar(&o.dbPath, "db", cfg.DBPath, "SQLite database path (DB_PATH)")
	root.PersistentFlags().StringVar(&o.defaultTZ, "default-tz", cfg.DefaultTZ, "Timezone used when none is saved (DEFAULT_TZ)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&o.outputJSON, "json", false, "Output results as JSON")

	root.AddCommand(
		newListCmd(o),
		newScheduleDailyCmd(o),
		newCancelCmd(o),
		newCancelCategoryCmd(o),
		newCancelAllCmd(o),
		newQuietHoursCmd(o),
		newSettingsCmd(o),
		newTimezoneCmd(o),
		newMuteCmd(o, false),
		newMuteCmd(o, true),
		newHistoryCmd(o),
	)
	return root
}

// withEnv opens the database for the duration of fn.
func withEnv(cmd *cobra.Command, o *options, fn func(ctx context.Context, e *env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := openEnv(ctx, o)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
