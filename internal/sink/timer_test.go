package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/ErnestHysa/parallel-notify/internal/domain"
	"github.com/ErnestHysa/parallel-notify/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type chanNotifier chan domain.Template

func (c chanNotifier) Notify(_ context.Context, t domain.Template) error {
	select {
	case c <- t:
	default:
	}
	return nil
}

type memJournal struct {
	rows []store.Delivery
}

func (j *memJournal) LogDelivery(_ context.Context, d store.Delivery) error {
	j.rows = append(j.rows, d)
	return nil
}

func (j *memJournal) RecentDeliveries(context.Context, int) ([]store.Delivery, error) {
	return j.rows, nil
}

func TestTimerSink_ImmediateFiresOnce(t *testing.T) {
	got := make(chanNotifier, 4)
	s := NewTimerSink(got, zap.NewNop(), time.Second, nil)
	defer s.Close()

	id, err := s.Schedule(context.Background(), Request{
		Content: domain.Render(domain.CategoryYourTurn, domain.Params{StoryID: "s1"}),
		Trigger: Immediate(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case tpl := <-got:
		assert.Equal(t, domain.CategoryYourTurn, tpl.Category)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	require.Eventually(t, func() bool {
		ids, _ := s.ListScheduled(context.Background())
		return len(ids) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTimerSink_DateInPast(t *testing.T) {
	s := NewTimerSink(make(chanNotifier, 1), zap.NewNop(), time.Second, nil)
	defer s.Close()

	_, err := s.Schedule(context.Background(), Request{
		Content: domain.Render(domain.CategoryWeeklyRecap, domain.Params{}),
		Trigger: At(time.Now().Add(-time.Hour)),
	})
	require.ErrorIs(t, err, ErrTriggerInPast)
}

func TestTimerSink_CancelAndList(t *testing.T) {
	got := make(chanNotifier, 1)
	s := NewTimerSink(got, zap.NewNop(), time.Second, nil)
	defer s.Close()
	ctx := context.Background()

	a, err := s.Schedule(ctx, Request{Content: domain.Render(domain.CategoryStreakReminder, domain.Params{}), Trigger: After(time.Hour)})
	require.NoError(t, err)
	b, err := s.Schedule(ctx, Request{Content: domain.Render(domain.CategoryDailyIntention, domain.Params{}), Trigger: Daily(9, 0, time.UTC)})
	require.NoError(t, err)

	ids, err := s.ListScheduled(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, ids)

	pending := s.Pending()
	require.Len(t, pending, 2)

	require.NoError(t, s.Cancel(ctx, a))
	require.ErrorIs(t, s.Cancel(ctx, a), ErrUnknownID)

	ids, err = s.ListScheduled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, ids)
}

func TestTimerSink_DailyRearms(t *testing.T) {
	got := make(chanNotifier, 8)
	s := NewTimerSink(got, zap.NewNop(), time.Second, nil)
	// A frozen clock 50ms before 09:00 makes each re-armed occurrence due almost immediately.
	frozen := time.Date(2025, time.June, 1, 8, 59, 59, int(950*time.Millisecond), time.UTC)
	s.now = func() time.Time { return frozen }

	id, err := s.Schedule(context.Background(), Request{
		Content: domain.Render(domain.CategoryDailyIntention, domain.Params{}),
		Trigger: Daily(9, 0, time.UTC),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("occurrence %d not delivered", i+1)
		}
	}
	ids, _ := s.ListScheduled(context.Background())
	assert.Contains(t, ids, id)
	require.NoError(t, s.Close())
}

func TestTimerSink_ClosedRejects(t *testing.T) {
	s := NewTimerSink(make(chanNotifier, 1), zap.NewNop(), time.Second, nil)
	require.NoError(t, s.Close())
	_, err := s.Schedule(context.Background(), Request{Trigger: Immediate()})
	require.ErrorIs(t, err, ErrClosed)
}

func TestTrigger_FirstFire(t *testing.T) {
	now := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

	at, err := Daily(9, 30, time.UTC).FirstFire(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.June, 2, 9, 30, 0, 0, time.UTC), at)

	_, err = Daily(24, 0, time.UTC).FirstFire(now)
	require.ErrorIs(t, err, domain.ErrInvalidHour)

	at, err = After(time.Minute).FirstFire(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), at)

	_, err = After(-time.Second).FirstFire(now)
	require.Error(t, err)
}

func TestJournaled(t *testing.T) {
	j := &memJournal{}
	boom := errors.New("chat gone")
	n := Journaled(NotifierFunc(func(context.Context, domain.Template) error { return boom }), j, zap.NewNop())

	err := n.Notify(context.Background(), domain.Render(domain.CategoryPartnerMessage, domain.Params{Message: "hi"}))
	require.ErrorIs(t, err, boom)
	require.Len(t, j.rows, 1)
	assert.Equal(t, "failed", j.rows[0].Outcome)
	assert.Equal(t, "chat gone", j.rows[0].Detail)
}
