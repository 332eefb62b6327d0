package sink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

// LogNotifier writes notifications to the log. Used when no chat transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, t domain.Template) error {
	n.log.Info("notification",
		zap.String("id", t.ID),
		zap.String("category", string(t.Category)),
		zap.String("title", t.Title),
		zap.String("body", t.Body),
		zap.String("tag", t.Tag),
		zap.Bool("require_interaction", t.RequireInteraction),
	)
	return nil
}

// Journaled records every delivery attempt of next in j. Journal failures are
// logged and never fail the delivery.
func Journaled(next Notifier, j store.Journal, log *zap.Logger) Notifier {
	return NotifierFunc(func(ctx context.Context, t domain.Template) error {
		err := next.Notify(ctx, t)
		d := store.Delivery{
			Category:   string(t.Category),
			TemplateID: t.ID,
			Outcome:    store.OutcomeDelivered,
			At:         time.Now().UTC(),
		}
		if err != nil {
			d.Outcome = store.OutcomeFailed
			d.Detail = err.Error()
		}
		if jerr := j.LogDelivery(context.WithoutCancel(ctx), d); jerr != nil {
			log.Warn("journal write failed", zap.Error(jerr))
		}
		return err
	})
}
