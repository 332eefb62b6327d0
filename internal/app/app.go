package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ErnestHysa/parallel-notify/internal/config"
	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/metrics"
	"github.com/ErnestHysa/parallel-notify/internal/reminders"
	"github.com/ErnestHysa/parallel-notify/internal/scheduler"
	"github.com/ErnestHysa/parallel-notify/internal/settings"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
	"github.com/ErnestHysa/parallel-notify/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server

	repo     *store.SQLiteRepo
	settings *settings.Store
	timers   *sink.TimerSink
	sched    *scheduler.Scheduler
	poller   *scheduler.Poller
	svc      *reminders.Service
	router   *telegram.Router
}

// New opens storage and wires the notification stack. The Telegram bot is
// only created when a token is configured; otherwise notifications are logged.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return nil, err
		}
		bot.Debug = false
		a.bot = bot
	}

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	log.Info("sqlite ready", zap.String("path", cfg.DBPath))

	a.settings = settings.New(repo, log, cfg.DefaultTZ)
	a.settings.Load(ctx)

	a.timers = sink.NewTimerSink(sink.Journaled(a.deliver(), repo, log), log, cfg.DeliveryTimeout, a.metrics)
	a.sched = scheduler.New(a.timers, store.NewScheduleIndex(repo, store.KeyScheduled, log), a.settings, log, a.metrics)
	a.poller = scheduler.NewPoller(store.NewScheduleIndex(repo, store.KeyPollerScheduled, log), a.settings, a.deliver(), repo, log, cfg.PollInterval, a.metrics)
	a.svc = reminders.New(a.settings, a.sched, a.poller, repo, log)

	if a.bot != nil {
		a.router = telegram.NewRouter(ctx, a.bot, log, a.svc, repo, cfg.ChatID)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", a.metrics.Handler())
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

// deliver sends to the Telegram chat when a router exists, else to the log.
// The router is resolved at delivery time since it is built after the service.
func (a *App) deliver() sink.Notifier {
	fallback := sink.NewLogNotifier(a.log)
	return sink.NotifierFunc(func(ctx context.Context, t domain.Template) error {
		if a.router != nil {
			return a.router.Notify(ctx, t)
		}
		return fallback.Notify(ctx, t)
	})
}

// Service exposes the reminders façade.
func (a *App) Service() *reminders.Service { return a.svc }

// Handler returns the HTTP handler serving health and metrics.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// Run restores schedules, then serves HTTP, polls and handles bot updates
// until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting parallel-notify",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Bool("telegram", a.bot != nil),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.sched.Init(ctx); err != nil {
		a.log.Error("scheduler init failed", zap.Error(err))
		a.close()
		return err
	}
	if next := a.timers.Pending(); len(next) > 0 {
		a.log.Info("timers armed",
			zap.Int("count", len(next)),
			zap.String("next_category", string(next[0].Category)),
			zap.Time("next_fire", next[0].NextFire),
		)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		a.poller.Run(gctx)
		return nil
	})

	if a.bot != nil {
		g.Go(func() error {
			a.pollUpdates(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")

		// Create a short-lived shutdown context and cancel it immediately after use.
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.httpSrv.Shutdown(shCtx)
		cancel()
		if err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *App) pollUpdates(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updCh:
			if !ok {
				return
			}
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) close() {
	a.sched.Dispose()
	if err := a.timers.Close(); err != nil {
		a.log.Warn("timer sink close error", zap.Error(err))
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
}
