// Package eventlog implements the ordered, append-only, per-run event log with
// monotonic cursors, bounded historical reads, and resumable tailing.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	model "github.com/tigerroll/swell/pkg/orchest/core/domain/model"
	repository "github.com/tigerroll/swell/pkg/orchest/core/domain/repository"
	"github.com/tigerroll/swell/pkg/orchest/support/util/exception"
	logger "github.com/tigerroll/swell/pkg/orchest/support/util/logger"
)

// TailFromStart replays a tail from the very first event of a run.
const TailFromStart = int64(-1)

// EventLog linearizes appends per run, assigns strictly increasing cursors
// starting at 0, and notifies live tail consumers. Appends for different runs
// never block each other.
type EventLog struct {
	runs   repository.RunStore
	events repository.EventStore

	mu      sync.Mutex
	runLogs map[string]*runLog
}

// runLog is the per-run single-writer state: the next cursor to assign and the
// broadcast channel closed on every append.
type runLog struct {
	mu sync.Mutex
	// next is the next cursor to assign; negative until lazily loaded from the
	// store.
	next   int64
	notify chan struct{}
}

// NewEventLog creates an EventLog over the given stores.
func NewEventLog(runs repository.RunStore, events repository.EventStore) *EventLog {
	return &EventLog{
		runs:    runs,
		events:  events,
		runLogs: make(map[string]*runLog),
	}
}

// forRun returns the per-run state, creating it on first use.
func (l *EventLog) forRun(runID string) *runLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.runLogs[runID]
	if !ok {
		rl = &runLog{next: -1, notify: make(chan struct{})}
		l.runLogs[runID] = rl
	}
	return rl
}

// checkRunExists distinguishes "run never existed" from "no events yet".
func (l *EventLog) checkRunExists(ctx context.Context, runID string) error {
	if _, err := l.runs.FindRunByID(ctx, runID); err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return exception.NewNotFoundError("eventlog",
				fmt.Sprintf("Run '%s' does not exist", runID), repository.ErrRunNotFound)
		}
		return exception.NewInternalError("eventlog",
			fmt.Sprintf("Failed to look up run '%s'", runID), err)
	}
	return nil
}

// Append assigns the next cursor for the run atomically and persists the
// event. No two events for the same run receive the same cursor.
func (l *EventLog) Append(ctx context.Context, runID string, event model.Event) (int64, error) {
	if err := l.checkRunExists(ctx, runID); err != nil {
		return 0, err
	}

	rl := l.forRun(runID)
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.next < 0 {
		last, err := l.events.LastCursor(ctx, runID)
		if err != nil {
			return 0, exception.NewInternalError("eventlog",
				fmt.Sprintf("Failed to load last cursor for run '%s'", runID), err)
		}
		rl.next = last + 1
	}

	event.RunID = runID
	event.Cursor = rl.next
	if err := l.events.AppendEvent(ctx, event); err != nil {
		return 0, exception.NewInternalError("eventlog",
			fmt.Sprintf("Failed to append event %d for run '%s'", event.Cursor, runID), err)
	}
	rl.next++

	// Wake every tail consumer of this run.
	close(rl.notify)
	rl.notify = make(chan struct{})

	return event.Cursor, nil
}

// Read returns a bounded historical page: events with cursor strictly greater
// than afterCursor, in cursor order. Reading an unknown run yields a not-found
// condition, never an empty sequence.
func (l *EventLog) Read(ctx context.Context, runID string, afterCursor int64, limit int) ([]model.Event, error) {
	if err := l.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}
	events, err := l.events.ReadEvents(ctx, runID, afterCursor, limit)
	if err != nil {
		return nil, exception.NewInternalError("eventlog",
			fmt.Sprintf("Failed to read events for run '%s'", runID), err)
	}
	return events, nil
}

// Tail produces an unbounded, restartable sequence of the run's events with
// cursor strictly greater than afterCursor, in cursor order, with no gaps or
// duplicates. The channel closes when ctx is done. A consumer resuming with a
// previously seen cursor observes exactly the events it has not seen.
func (l *EventLog) Tail(ctx context.Context, runID string, afterCursor int64) (<-chan model.Event, error) {
	if err := l.checkRunExists(ctx, runID); err != nil {
		return nil, err
	}

	out := make(chan model.Event)
	go l.follow(ctx, runID, afterCursor, out)
	return out, nil
}

// follow drives one tail subscription: replay from the store, then block on
// the append broadcast. Reading from the store by cursor (rather than handing
// events directly from Append) is what makes resumption gap-free.
func (l *EventLog) follow(ctx context.Context, runID string, cursor int64, out chan<- model.Event) {
	defer close(out)
	rl := l.forRun(runID)

	for {
		// Snapshot the notification channel before reading so an append racing
		// with the read still wakes us.
		rl.mu.Lock()
		notify := rl.notify
		rl.mu.Unlock()

		events, err := l.events.ReadEvents(ctx, runID, cursor, 0)
		if err != nil {
			logger.Errorf("EventLog: tail read failed for run '%s': %v", runID, err)
			return
		}
		for _, e := range events {
			select {
			case out <- e:
				cursor = e.Cursor
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return
		}
	}
}

// Drop forgets the in-memory cursor state of a run. Used after explicit run
// deletion.
func (l *EventLog) Drop(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.runLogs, runID)
}
