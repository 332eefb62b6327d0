package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/sink"
)

func TestScheduleDaily_YourTurn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	id, err := f.sched.ScheduleDaily(ctx, domain.CategoryYourTurn, 20, 0, domain.Params{StoryID: "s1", StoryTitle: "Our Story"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, domain.CategoryYourTurn, all[0].Category)
	assert.Equal(t, 20, all[0].Hour)
	assert.Equal(t, domain.RepeatDaily, all[0].RepeatInterval)

	req := f.sink.live[id]
	assert.Equal(t, sink.TriggerDaily, req.Trigger.Kind)
	assert.Contains(t, req.Content.Body, "Our Story")
}

func TestScheduleDaily_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	first, err := f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 9, 0, domain.Params{})
	require.NoError(t, err)
	second, err := f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 9, 0, domain.Params{})
	require.NoError(t, err)

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second, all[0].ID)

	// The superseded sink entry is cancelled too, so it cannot fire twice.
	assert.Equal(t, []string{first}, f.sink.cancelled)
	ids, _ := f.sink.ListScheduled(ctx)
	assert.Equal(t, []string{second}, ids)
}

func TestCancelCategory_AfterCollapsedSchedules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	_, err := f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 9, 0, domain.Params{})
	require.NoError(t, err)
	_, err = f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 10, 0, domain.Params{})
	require.NoError(t, err)
	keep, err := f.sched.ScheduleDaily(ctx, domain.CategoryStreakReminder, 19, 0, domain.Params{})
	require.NoError(t, err)

	require.NoError(t, f.sched.CancelCategory(ctx, domain.CategoryDailyIntention))

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, keep, all[0].ID)
	ids, _ := f.sink.ListScheduled(ctx)
	assert.Equal(t, []string{keep}, ids)
}

func TestSchedule_QuietHours(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(23, 0))
	require.NoError(t, f.settings.SetQuietHours(ctx, domain.QuietHours{Enabled: true, StartHour: 22, EndHour: 8}))

	_, err := f.sched.Schedule(ctx, domain.CategoryNewChapter, Options{Trigger: sink.After(time.Minute)}, domain.Params{})
	require.ErrorIs(t, err, ErrQuietHours)
	assert.Empty(t, f.sink.live)
	assert.Contains(t, f.scrape(t), `parallel_notifications_suppressed_total{category="new_chapter",reason="quiet_hours"} 1`)

	id, err := f.sched.Schedule(ctx, domain.CategoryNewChapter, Options{Trigger: sink.After(time.Minute), IgnoreQuietHours: true}, domain.Params{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	f.clock = at(10, 0)
	_, err = f.sched.Schedule(ctx, domain.CategoryWeeklyRecap, Options{Trigger: sink.After(time.Minute)}, domain.Params{})
	require.NoError(t, err)
}

func TestSchedule_CategoryDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))
	require.NoError(t, f.settings.SetCategoryEnabled(ctx, domain.CategoryWeeklyRecap, false))

	_, err := f.sched.ScheduleDaily(ctx, domain.CategoryWeeklyRecap, 18, 0, domain.Params{})
	require.ErrorIs(t, err, ErrCategoryDisabled)
}

func TestSchedule_SinkFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))
	denied := errors.New("permission denied")
	f.sink.scheduleErr = denied

	id, err := f.sched.ScheduleDaily(ctx, domain.CategoryYourTurn, 20, 0, domain.Params{})
	require.ErrorIs(t, err, denied)
	assert.Empty(t, id)

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSchedule_OneOffRecordsDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	_, err := f.sched.Schedule(ctx, domain.CategoryAchievementUnlocked, Options{Trigger: sink.After(90 * time.Minute)}, domain.Params{AchievementName: "First Draft"})
	require.NoError(t, err)

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ScheduledFor)
	assert.True(t, at(13, 30).Equal(*all[0].ScheduledFor))
	assert.Equal(t, "", all[0].RepeatInterval)
	assert.Equal(t, "First Draft", all[0].Params.AchievementName)
}

func TestScheduleDaily_InvalidHour(t *testing.T) {
	f := newFixture(t, at(12, 0))
	_, err := f.sched.ScheduleDaily(context.Background(), domain.CategoryYourTurn, 25, 0, domain.Params{})
	require.ErrorIs(t, err, domain.ErrInvalidHour)
	_, err = f.sched.ScheduleDaily(context.Background(), domain.CategoryYourTurn, 8, 61, domain.Params{})
	require.ErrorIs(t, err, domain.ErrInvalidMinute)
}

func TestCancelAndCancelAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	a, err := f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 9, 0, domain.Params{})
	require.NoError(t, err)
	_, err = f.sched.ScheduleDaily(ctx, domain.CategoryYourTurn, 20, 0, domain.Params{})
	require.NoError(t, err)
	// A live sink entry the index does not know about.
	_, err = f.sink.Schedule(ctx, sink.Request{Trigger: sink.Immediate()})
	require.NoError(t, err)

	require.NoError(t, f.sched.Cancel(ctx, a))
	require.NoError(t, f.sched.Cancel(ctx, "does-not-exist"))
	all, _ := f.sched.GetAllScheduled(ctx)
	assert.Len(t, all, 1)

	require.NoError(t, f.sched.CancelAll(ctx))
	all, _ = f.sched.GetAllScheduled(ctx)
	assert.Empty(t, all)
	ids, _ := f.sink.ListScheduled(ctx)
	assert.Empty(t, ids)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))

	daily, err := f.sched.ScheduleDaily(ctx, domain.CategoryDailyIntention, 9, 0, domain.Params{})
	require.NoError(t, err)
	_, err = f.sched.Schedule(ctx, domain.CategoryYourTurn, Options{Trigger: sink.After(time.Hour)}, domain.Params{StoryID: "s1"})
	require.NoError(t, err)
	_, err = f.sched.Schedule(ctx, domain.CategoryNewChapter, Options{Trigger: sink.After(10 * time.Minute)}, domain.Params{})
	require.NoError(t, err)

	// Platform loses everything; by restore time the new_chapter one-off is past due.
	f.sink.forget()
	f.clock = at(12, 30)

	n, err := f.sched.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := f.sched.GetAllScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	live, _ := f.sink.ListScheduled(ctx)
	for _, rec := range all {
		assert.NotEqual(t, domain.CategoryNewChapter, rec.Category)
		assert.Contains(t, live, rec.ID)
		assert.NotEqual(t, daily, rec.ID)
	}

	// Nothing is missing now, so a second restore is a no-op.
	n, err = f.sched.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInitAndDispose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(12, 0))
	require.NoError(t, f.sched.Init(ctx))

	f.sched.Dispose()
	_, err := f.sched.ScheduleDaily(ctx, domain.CategoryYourTurn, 20, 0, domain.Params{})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, f.sched.CancelAll(ctx), ErrClosed)
}
