package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/config"
	"github.com/ErnestHysa/parallel-notify/internal/domain"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		DBPath:          filepath.Join(t.TempDir(), "parallel.db"),
		DefaultTZ:       "UTC",
		LogLevel:        "error",
		HTTPAddr:        "127.0.0.1:0",
		PollInterval:    time.Hour,
		DeliveryTimeout: time.Second,
	}
}

func TestApp_HealthAndMetrics(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.close)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestApp_MetricsPerInstance(t *testing.T) {
	ctx := context.Background()
	scrape := func(a *App) string {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}

	a, err := New(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	b, err := New(ctx, testConfig(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(b.close)

	hour := 8
	_, err = a.Service().ScheduleDailyIntention(ctx, &hour)
	require.NoError(t, err)

	const line = `parallel_notifications_scheduled_total{category="daily_intention",repeat="daily"} 1`
	assert.Contains(t, scrape(a), line)
	assert.NotContains(t, scrape(b), "parallel_notifications_scheduled_total")
}

func TestApp_RunRestoresAndStops(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	hour := 7
	_, err = first.Service().ScheduleDailyIntention(context.Background(), &hour)
	require.NoError(t, err)
	first.close()

	second, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, second.Run(ctx))

	// Run closed the repo; reopen to inspect what survived.
	third, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(third.close)
	st, err := third.Service().Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Scheduled, 1)
	assert.Equal(t, domain.CategoryDailyIntention, st.Scheduled[0].Category)
	assert.Equal(t, 7, st.Scheduled[0].Hour)
}
