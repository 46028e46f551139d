package recall

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/recall/pkg/trace"
)

func TestSchedulerValidation(t *testing.T) {
	store := newTestStore(t)
	fn := func(context.Context, []trace.Trace) (string, error) { return "", nil }

	_, err := NewScheduler(SchedulerConfig{Summarizer: fn})
	assert.Error(t, err)

	_, err = NewScheduler(SchedulerConfig{Store: store})
	assert.Error(t, err)
}

func TestRunOnceSummarizesActiveSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LogTurn(ctx, "a", trace.RoleUser, "hello from a", nil)
	require.NoError(t, err)
	_, err = store.LogTurn(ctx, "b", trace.RoleUser, "hello from b", nil)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := map[string]bool{}
	sched, err := NewScheduler(SchedulerConfig{
		Store: store,
		Summarizer: func(ctx context.Context, hist []trace.Trace) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			seen[hist[0].SessionID] = true
			return "scheduled summary", nil
		},
	})
	require.NoError(t, err)

	sched.RunOnce(ctx)

	assert.True(t, seen["a"])
	assert.True(t, seen["b"])

	info, err := store.Session(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "scheduled summary", info.Summary)
}

func TestRunOnceSkipsIdleSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LogTurn(ctx, "idle", trace.RoleUser, "old activity", nil)
	require.NoError(t, err)

	sched, err := NewScheduler(SchedulerConfig{
		Store:  store,
		Window: time.Nanosecond,
		Summarizer: func(context.Context, []trace.Trace) (string, error) {
			t.Error("idle session must not be summarized")
			return "", nil
		},
	})
	require.NoError(t, err)

	// Let the session fall outside the one-nanosecond window
	time.Sleep(10 * time.Millisecond)
	sched.RunOnce(ctx)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LogTurn(ctx, "bad", trace.RoleUser, "one", nil)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = store.LogTurn(ctx, "good", trace.RoleUser, "two", nil)
	require.NoError(t, err)

	sched, err := NewScheduler(SchedulerConfig{
		Store: store,
		Summarizer: func(ctx context.Context, hist []trace.Trace) (string, error) {
			if hist[0].SessionID == "bad" {
				return "", errors.New("provider down")
			}
			return "fine", nil
		},
	})
	require.NoError(t, err)

	sched.RunOnce(ctx)

	info, err := store.Session(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "fine", info.Summary)
}

func TestSchedulerStartStop(t *testing.T) {
	store := newTestStore(t)

	sched, err := NewScheduler(SchedulerConfig{
		Store: store,
		Summarizer: func(context.Context, []trace.Trace) (string, error) {
			return "", nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, sched.Start("@hourly"))
	sched.Stop()

	// Invalid cron specs are rejected up front
	sched2, err := NewScheduler(SchedulerConfig{
		Store: store,
		Summarizer: func(context.Context, []trace.Trace) (string, error) {
			return "", nil
		},
	})
	require.NoError(t, err)
	assert.Error(t, sched2.Start("not a schedule"))
}
