package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestKV_SetGetVersion(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, found, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Set(ctx, "k", []byte("one")))
	require.NoError(t, repo.Set(ctx, "k", []byte("two")))

	e, found, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "two", string(e.Value))
	assert.Equal(t, int64(2), e.Version)

	require.NoError(t, repo.Delete(ctx, "k"))
	_, found, err = repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKV_UpdateNoChangeAndError(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Set(ctx, "k", []byte("v")))

	require.NoError(t, repo.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return nil, ErrNoChange }))
	boom := errors.New("boom")
	err := repo.Update(ctx, "k", func([]byte, bool) ([]byte, error) { return []byte("x"), boom })
	require.ErrorIs(t, err, boom)

	e, _, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(e.Value))
	assert.Equal(t, int64(1), e.Version)
}

func TestMigrations_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notify.db")
	repo, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, "k", []byte("v")))
	require.NoError(t, repo.Close())

	repo, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer repo.Close()
	e, found, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(e.Value))
}

func TestScheduleIndex_RoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := NewScheduleIndex(openTestRepo(t), KeyScheduled, zap.NewNop())

	at := time.Date(2025, time.June, 1, 20, 0, 0, 0, time.UTC)
	rec := domain.ScheduledNotification{
		ID:           "n1",
		Category:     domain.CategoryYourTurn,
		ScheduledFor: &at,
		Hour:         20,
		Params:       domain.Params{StoryID: "s1", StoryTitle: "Our Story"},
		CreatedAt:    at.Add(-time.Hour),
	}
	_, err := idx.Put(ctx, rec)
	require.NoError(t, err)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)
	assert.Equal(t, rec.Category, list[0].Category)
	assert.True(t, rec.ScheduledFor.Equal(*list[0].ScheduledFor))
	assert.Equal(t, rec.Params, list[0].Params)
	assert.True(t, rec.CreatedAt.Equal(list[0].CreatedAt))
}

func TestScheduleIndex_PutSupersedesSameSlot(t *testing.T) {
	ctx := context.Background()
	idx := NewScheduleIndex(openTestRepo(t), KeyScheduled, zap.NewNop())

	first := domain.ScheduledNotification{ID: "a", Category: domain.CategoryDailyIntention, Hour: 9, RepeatInterval: domain.RepeatDaily}
	second := domain.ScheduledNotification{ID: "b", Category: domain.CategoryDailyIntention, Hour: 9, RepeatInterval: domain.RepeatDaily}
	oneOff := domain.ScheduledNotification{ID: "c", Category: domain.CategoryDailyIntention}

	_, err := idx.Put(ctx, first)
	require.NoError(t, err)
	_, err = idx.Put(ctx, oneOff)
	require.NoError(t, err)
	superseded, err := idx.Put(ctx, second)
	require.NoError(t, err)
	require.Len(t, superseded, 1)
	assert.Equal(t, "a", superseded[0].ID)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
}

func TestScheduleIndex_RemoveAndReplace(t *testing.T) {
	ctx := context.Background()
	idx := NewScheduleIndex(openTestRepo(t), KeyScheduled, zap.NewNop())

	for _, r := range []domain.ScheduledNotification{
		{ID: "a", Category: domain.CategoryDailyIntention, RepeatInterval: domain.RepeatDaily},
		{ID: "b", Category: domain.CategoryYourTurn, RepeatInterval: domain.RepeatDaily},
		{ID: "c", Category: domain.CategoryWeeklyRecap},
	} {
		_, err := idx.Put(ctx, r)
		require.NoError(t, err)
	}

	ok, err := idx.Replace(ctx, "b", domain.ScheduledNotification{ID: "b2", Category: domain.CategoryYourTurn, RepeatInterval: domain.RepeatDaily})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = idx.Replace(ctx, "missing", domain.ScheduledNotification{ID: "z"})
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := idx.Remove(ctx, "a", "nope")
	require.NoError(t, err)
	require.Len(t, removed, 1)

	removed, err = idx.RemoveCategory(ctx, domain.CategoryYourTurn)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "b2", removed[0].ID)

	cleared, err := idx.Clear(ctx)
	require.NoError(t, err)
	require.Len(t, cleared, 1)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScheduleIndex_CorruptJSON(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Set(ctx, KeyPollerScheduled, []byte("{not json")))
	idx := NewScheduleIndex(repo, KeyPollerScheduled, zap.NewNop())

	list, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = idx.Put(ctx, domain.ScheduledNotification{ID: "x", Category: domain.CategoryYourTurn})
	require.NoError(t, err)
	list, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestScheduleIndex_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	idx := NewScheduleIndex(openTestRepo(t), KeyScheduled, zap.NewNop())

	cats := domain.Categories()
	done := make(chan error, len(cats))
	for _, c := range cats {
		go func(c domain.Category) {
			_, err := idx.Put(ctx, domain.ScheduledNotification{ID: string(c), Category: c})
			done <- err
		}(c)
	}
	for range cats {
		require.NoError(t, <-done)
	}
	list, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(cats))
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	base := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.LogDelivery(ctx, Delivery{Category: "your_turn", TemplateID: "your_turn-s1", Outcome: OutcomeDelivered, At: base}))
	require.NoError(t, repo.LogDelivery(ctx, Delivery{Category: "daily_intention", TemplateID: "daily_intention", Outcome: OutcomeSuppressed, Detail: "quiet hours", At: base.Add(time.Minute)}))

	got, err := repo.RecentDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, OutcomeSuppressed, got[0].Outcome)
	assert.Equal(t, "quiet hours", got[0].Detail)
	assert.True(t, base.Equal(got[1].At))
}

func TestKV_UpdateManyAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	require.NoError(t, repo.Set(ctx, "a", []byte("a1")))

	err := repo.UpdateMany(ctx, []string{"a", "b"}, func(cur map[string][]byte) (map[string][]byte, error) {
		assert.Equal(t, "a1", string(cur["a"]))
		_, found := cur["b"]
		assert.False(t, found)
		return map[string][]byte{"a": []byte("a2"), "b": []byte("b1")}, nil
	})
	require.NoError(t, err)

	a, _, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a2", string(a.Value))
	assert.Equal(t, int64(2), a.Version)
	b, found, err := repo.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b1", string(b.Value))

	// A failing callback leaves every key untouched.
	boom := errors.New("boom")
	err = repo.UpdateMany(ctx, []string{"a", "b"}, func(map[string][]byte) (map[string][]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	a, _, _ = repo.Get(ctx, "a")
	assert.Equal(t, "a2", string(a.Value))

	// Keys left out of the result are not written.
	require.NoError(t, repo.UpdateMany(ctx, []string{"a", "b"}, func(map[string][]byte) (map[string][]byte, error) {
		return map[string][]byte{"b": []byte("b2")}, nil
	}))
	a, _, _ = repo.Get(ctx, "a")
	assert.Equal(t, int64(2), a.Version)
	b, _, _ = repo.Get(ctx, "b")
	assert.Equal(t, "b2", string(b.Value))
}

func TestScheduleIndex_Rewrite(t *testing.T) {
	ctx := context.Background()
	idx := NewScheduleIndex(openTestRepo(t), KeyPollerScheduled, zap.NewNop())
	_, err := idx.Put(ctx, domain.ScheduledNotification{ID: "a", Category: domain.CategoryDailyIntention, Hour: 9, RepeatInterval: domain.RepeatDaily})
	require.NoError(t, err)
	_, err = idx.Put(ctx, domain.ScheduledNotification{ID: "b", Category: domain.CategoryStreakReminder, Hour: 20, RepeatInterval: domain.RepeatDaily})
	require.NoError(t, err)

	out, err := idx.Rewrite(ctx, func(n domain.ScheduledNotification) domain.ScheduledNotification {
		n.Minute = 15
		return n
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	list, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, n := range list {
		assert.Equal(t, 15, n.Minute)
	}
}
