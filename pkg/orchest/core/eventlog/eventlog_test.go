package eventlog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	"github.com/tigerroll/swell/pkg/orchest/core/eventlog"
	inmemory "github.com/tigerroll/swell/pkg/orchest/infrastructure/repository/inmemory"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
)

func newTestLog(t *testing.T) (*eventlog.EventLog, *model.Run) {
	t.Helper()
	store := inmemory.NewInMemoryStore()
	run := model.NewRun("job", []string{"a"}, nil, "default", nil)
	require.NoError(t, store.SaveRun(context.Background(), run))
	return eventlog.NewEventLog(store, store), run
}

func TestAppendAssignsCursorsFromZero(t *testing.T) {
	ctx := context.Background()
	log, run := newTestLog(t)

	for want := int64(0); want < 3; want++ {
		cursor, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, fmt.Sprintf("event %d", want)))
		require.NoError(t, err)
		assert.Equal(t, want, cursor)
	}
}

func TestAppendToUnknownRunIsNotFound(t *testing.T) {
	ctx := context.Background()
	log, _ := newTestLog(t)

	_, err := log.Append(ctx, "no-such-run", model.NewEngineEvent("no-such-run", "orphan"))
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func TestReadReturnsEventsAfterCursor(t *testing.T) {
	ctx := context.Background()
	log, run := newTestLog(t)

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, fmt.Sprintf("event %d", i)))
		require.NoError(t, err)
	}

	events, err := log.Read(ctx, run.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(2), events[0].Cursor)
	assert.Equal(t, int64(4), events[2].Cursor)

	// Limit bounds the page.
	page, err := log.Read(ctx, run.ID, eventlog.TailFromStart, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(0), page[0].Cursor)
}

func TestReadUnknownRunIsNotFoundNotEmpty(t *testing.T) {
	ctx := context.Background()
	log, _ := newTestLog(t)

	_, err := log.Read(ctx, "ghost", eventlog.TailFromStart, 0)
	require.Error(t, err)
	assert.Equal(t, exception.KindNotFound, exception.KindOf(err))
}

func collectTail(t *testing.T, ch <-chan model.Event, n int) []model.Event {
	t.Helper()
	out := make([]model.Event, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "tail channel closed early")
			out = append(out, e)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestTailReplaysHistoryThenFollowsLiveAppends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log, run := newTestLog(t)

	_, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, "before"))
	require.NoError(t, err)

	ch, err := log.Tail(ctx, run.ID, eventlog.TailFromStart)
	require.NoError(t, err)

	go func() {
		for i := 0; i < 3; i++ {
			if _, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, fmt.Sprintf("live %d", i))); err != nil {
				return
			}
		}
	}()

	events := collectTail(t, ch, 4)
	for i, e := range events {
		assert.Equal(t, int64(i), e.Cursor)
	}
	assert.Equal(t, "before", events[0].Message)
}

func TestTailResumesWithoutGapsOrDuplicates(t *testing.T) {
	ctx := context.Background()
	log, run := newTestLog(t)

	for i := 0; i < 4; i++ {
		_, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, fmt.Sprintf("event %d", i)))
		require.NoError(t, err)
	}

	tailCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Resume after having seen cursor 1.
	ch, err := log.Tail(tailCtx, run.ID, 1)
	require.NoError(t, err)

	events := collectTail(t, ch, 2)
	assert.Equal(t, int64(2), events[0].Cursor)
	assert.Equal(t, int64(3), events[1].Cursor)
}

func TestTailChannelClosesOnContextDone(t *testing.T) {
	log, run := newTestLog(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := log.Tail(ctx, run.ID, eventlog.TailFromStart)
	require.NoError(t, err)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("tail channel did not close after cancellation")
		}
	}
}

func TestConcurrentAppendsNeverDuplicateCursors(t *testing.T) {
	ctx := context.Background()
	log, run := newTestLog(t)

	const writers = 8
	const perWriter = 10
	cursors := make(chan int64, writers*perWriter)
	done := make(chan struct{})
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perWriter; i++ {
				c, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, fmt.Sprintf("w%d-%d", w, i)))
				if err != nil {
					t.Errorf("append failed: %v", err)
					return
				}
				cursors <- c
			}
		}(w)
	}
	for w := 0; w < writers; w++ {
		<-done
	}
	close(cursors)

	seen := make(map[int64]bool)
	for c := range cursors {
		assert.False(t, seen[c], "cursor %d assigned twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestDropForgetsCursorStateButStoreStays(t *testing.T) {
	ctx := context.Background()
	log, run := newTestLog(t)

	_, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, "first"))
	require.NoError(t, err)

	log.Drop(run.ID)

	// The next append reloads the cursor from the store and continues.
	cursor, err := log.Append(ctx, run.ID, model.NewEngineEvent(run.ID, "second"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor)
}
