package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
)

// scheduleRow is one line of `list` output.
type scheduleRow struct {
	Source string `json:"source"`
	domain.ScheduledNotification
}

func newListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled notifications",
		Long: `List both trigger schedules (owned by the running daemon) and polled
daily schedules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				triggers, err := e.triggers.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to read trigger schedules: %w", err)
				}
				polled, err := e.poller.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to read polled schedules: %w", err)
				}
				rows := make([]scheduleRow, 0, len(triggers)+len(polled))
				for _, r := range triggers {
					rows = append(rows, scheduleRow{Source: "trigger", ScheduledNotification: r})
				}
				for _, r := range polled {
					rows = append(rows, scheduleRow{Source: "poll", ScheduledNotification: r})
				}

				out := cmd.OutOrStdout()
				if o.outputJSON {
					return outputJSON(out, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No notifications scheduled.")
					return nil
				}
				loc := e.settings.Location()
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSOURCE\tCATEGORY\tWHEN\tNEXT")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Source, r.Category, describeWhen(r.ScheduledNotification, loc), describeNext(r.ScheduledNotification, loc))
				}
				return w.Flush()
			})
		},
	}
}

func describeWhen(n domain.ScheduledNotification, loc *time.Location) string {
	if n.Daily() {
		return "daily " + domain.FormatClock(n.Hour, n.Minute)
	}
	if n.ScheduledFor != nil {
		return n.ScheduledFor.In(loc).Format("2006-01-02 15:04")
	}
	return "-"
}

func describeNext(n domain.ScheduledNotification, loc *time.Location) string {
	if n.NextFireAt == nil {
		return "-"
	}
	return n.NextFireAt.In(loc).Format("2006-01-02 15:04")
}

func newScheduleDailyCmd(o *options) *cobra.Command {
	var (
		storyID     string
		storyTitle  string
		partnerName string
	)
	cmd := &cobra.Command{
		Use:   "schedule-daily <category> <hour>",
		Short: "Store a daily notification for the poller",
		Long: `Store a daily notification at the given hour. The daemon's poller shows it
once a day, within the first minute it checks during that hour.

Examples:
  parallelctl schedule-daily daily_intention 8
  parallelctl schedule-daily streak_reminder 20:00`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			hour, _, err := domain.ParseClock(args[1])
			if err != nil {
				return err
			}
			params := domain.Params{StoryID: storyID, StoryTitle: storyTitle, PartnerName: partnerName}
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				if !e.settings.Get().Enabled(c) {
					return fmt.Errorf("category %s is muted; run `parallelctl unmute %s` first", c, c)
				}
				id, err := e.poller.ScheduleDaily(ctx, c, hour, params)
				if err != nil {
					return fmt.Errorf("failed to schedule: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s daily at %s (id %s)\n", c, domain.FormatClock(hour, 0), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storyID, "story-id", "", "Story the notification links to")
	cmd.Flags().StringVar(&storyTitle, "story-title", "", "Story title shown in the body")
	cmd.Flags().StringVar(&partnerName, "partner", "", "Partner name shown in the body")
	return cmd
}

func newCancelCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a polled daily schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				recs, err := e.poller.List(ctx)
				if err != nil {
					return err
				}
				found := false
				for _, r := range recs {
					if r.ID == id {
						found = true
						break
					}
				}
				if !found {
					return fmt.Errorf("no polled schedule with id %q", id)
				}
				if err := e.poller.Cancel(ctx, id); err != nil {
					return fmt.Errorf("failed to cancel: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", id)
				return nil
			})
		},
	}
}

func newCancelCategoryCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-category <category>",
		Short: "Cancel every polled schedule of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				if err := e.poller.CancelCategory(ctx, c); err != nil {
					return fmt.Errorf("failed to cancel: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", c)
				return nil
			})
		},
	}
}

func newCancelAllCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel every polled schedule",
		Long: `Cancel every polled schedule. Trigger schedules are owned by the running
daemon; use /cancel_all in Telegram for those.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				if err := e.poller.CancelAll(ctx); err != nil {
					return fmt.Errorf("failed to cancel: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All polled schedules cancelled.")
				return nil
			})
		},
	}
}

func newQuietHoursCmd(o *options) *cobra.Command {
	quiet := &cobra.Command{
		Use:   "quiet-hours",
		Short: "Show or change quiet hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showQuiet(cmd, o)
		},
	}
	quiet.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show quiet hours",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return showQuiet(cmd, o)
			},
		},
		&cobra.Command{
			Use:   "set <HH-HH>",
			Short: "Enable quiet hours for a window, e.g. 22-08",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				start, end, err := domain.ParseQuietWindow(args[0])
				if err != nil {
					return err
				}
				return saveQuiet(cmd, o, func(domain.QuietHours) domain.QuietHours {
					return domain.QuietHours{Enabled: true, StartHour: start, EndHour: end}
				})
			},
		},
		&cobra.Command{
			Use:   "off",
			Short: "Disable quiet hours, keeping the window",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return saveQuiet(cmd, o, func(q domain.QuietHours) domain.QuietHours {
					q.Enabled = false
					return q
				})
			},
		},
	)
	return quiet
}

func showQuiet(cmd *cobra.Command, o *options) error {
	return withEnv(cmd, o, func(_ context.Context, e *env) error {
		q := e.settings.QuietHours()
		if o.outputJSON {
			return outputJSON(cmd.OutOrStdout(), q)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Quiet hours: "+formatQuiet(q))
		return nil
	})
}

func saveQuiet(cmd *cobra.Command, o *options, change func(domain.QuietHours) domain.QuietHours) error {
	return withEnv(cmd, o, func(ctx context.Context, e *env) error {
		q := change(e.settings.QuietHours())
		if err := e.settings.SetQuietHours(ctx, q); err != nil {
			return fmt.Errorf("failed to save quiet hours: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Quiet hours: "+formatQuiet(q))
		return nil
	})
}

func formatQuiet(q domain.QuietHours) string {
	window := domain.FormatClock(q.StartHour, 0) + "-" + domain.FormatClock(q.EndHour, 0)
	if !q.Enabled {
		return "off (" + window + ")"
	}
	return window
}

func newSettingsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show notification settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, o, func(_ context.Context, e *env) error {
				s := e.settings.Get()
				out := cmd.OutOrStdout()
				if o.outputJSON {
					return outputJSON(out, struct {
						domain.Settings
						Timezone string `json:"timezone"`
					}{s, s.Timezone})
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Timezone:\t%s\n", s.Timezone)
				fmt.Fprintf(w, "Daily intention:\t%s\n", domain.FormatClock(s.DailyIntentionHour, 0))
				fmt.Fprintf(w, "Quiet hours:\t%s\n", formatQuiet(s.QuietHours))
				for _, c := range domain.Categories() {
					state := "on"
					if !s.Enabled(c) {
						state = "muted"
					}
					fmt.Fprintf(w, "%s:\t%s\n", c, state)
				}
				return w.Flush()
			})
		},
	}
}

func newTimezoneCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "timezone [IANA name]",
		Short: "Show or set the timezone used for daily hours",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				if len(args) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), e.settings.Get().Timezone)
					return nil
				}
				if err := e.settings.SetTimezone(ctx, args[0]); err != nil {
					return err
				}
				n, err := e.poller.Rearm(ctx)
				if err != nil {
					return fmt.Errorf("failed to re-arm daily schedules: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Timezone set to %s (%d daily schedules re-armed)\n", args[0], n)
				return nil
			})
		},
	}
}

func newMuteCmd(o *options, on bool) *cobra.Command {
	use, short := "mute", "Disable a notification category"
	if on {
		use, short = "unmute", "Enable a notification category"
	}
	return &cobra.Command{
		Use:   use + " <category>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[0])
			if err != nil {
				return err
			}
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				if err := e.settings.SetCategoryEnabled(ctx, c, on); err != nil {
					return err
				}
				if !on {
					if err := e.poller.CancelCategory(ctx, c); err != nil {
						return fmt.Errorf("failed to cancel %s schedules: %w", c, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", c, use)
				return nil
			})
		},
	}
}

func newHistoryCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delivery outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			return withEnv(cmd, o, func(ctx context.Context, e *env) error {
				rows, err := e.repo.RecentDeliveries(ctx, limit)
				if err != nil {
					return fmt.Errorf("failed to read history: %w", err)
				}
				out := cmd.OutOrStdout()
				if o.outputJSON {
					return outputJSON(out, rows)
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No deliveries yet.")
					return nil
				}
				loc := e.settings.Location()
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "AT\tCATEGORY\tOUTCOME\tDETAIL")
				for _, d := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.At.In(loc).Format("2006-01-02 15:04:05"), d.Category, d.Outcome, truncate(d.Detail, 60))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of deliveries to show")
	return cmd
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	return string(r[:maxLen-3]) + "..."
}
