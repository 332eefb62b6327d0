package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/metrics"
	"github.com/ErnestHysa/parallel-notify/internal/settings"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSink records schedules without arming timers.
type fakeSink struct {
	mu          sync.Mutex
	seq         int
	live        map[string]sink.Request
	cancelled   []string
	scheduleErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{live: make(map[string]sink.Request)}
}

func (f *fakeSink) Schedule(_ context.Context, req sink.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return "", f.scheduleErr
	}
	f.seq++
	id := fmt.Sprintf("n%d", f.seq)
	f.live[id] = req
	return id, nil
}

func (f *fakeSink) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[id]; !ok {
		return sink.ErrUnknownID
	}
	delete(f.live, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeSink) ListScheduled(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.live))
	for id := range f.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// forget simulates the platform losing its schedule.
func (f *fakeSink) forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = make(map[string]sink.Request)
}

type recNotifier struct {
	mu    sync.Mutex
	shown []domain.Template
}

func (r *recNotifier) Notify(_ context.Context, t domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, t)
	return nil
}

func (r *recNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

type fixture struct {
	repo     *store.SQLiteRepo
	settings *settings.Store
	sink     *fakeSink
	sched    *Scheduler
	metrics  *metrics.Metrics
	clock    time.Time
}

func newFixture(t *testing.T, clock time.Time) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	log := zap.NewNop()
	st := settings.New(repo, log, "UTC")
	st.Load(ctx)

	f := &fixture{repo: repo, settings: st, sink: newFakeSink(), metrics: metrics.New(), clock: clock}
	f.sched = New(f.sink, store.NewScheduleIndex(repo, store.KeyScheduled, log), st, log, f.metrics)
	f.sched.now = func() time.Time { return f.clock }
	return f
}

// scrape returns the fixture's metrics in text exposition format.
func (f *fixture) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func at(hour, minute int) time.Time {
	return time.Date(2025, time.June, 1, hour, minute, 0, 0, time.UTC)
}
