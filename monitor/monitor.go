// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package monitor turns the polled state of a running analysis into an
// ordered stream of progress events, one subscription per consumer.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/DCSO/vxcube-go/api"

	log "github.com/sirupsen/logrus"
)

// Fetcher provides the current state of an analysis. *api.Client satisfies
// this; tests substitute scripted fakes.
type Fetcher interface {
	Analysis(ctx context.Context, analysisID string) (*api.Analysis, error)
}

// Options tunes the polling behaviour of a subscription.
type Options struct {
	// Interval between polls while state is changing. Default 2s.
	Interval time.Duration
	// MaxInterval caps the backoff applied on idle rounds. Default 30s.
	MaxInterval time.Duration
	// RetryBudget is the number of consecutive transient fetch failures
	// tolerated before the subscription fails. Default 5.
	RetryBudget int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 5
	}
	return o
}

// ProgressEvent is one observed change of a single task. Terminal events
// carry Progress 100 and a final summary line in Message.
type ProgressEvent struct {
	TaskID   int
	Platform string
	Progress int
	Message  string
	Status   api.TaskStatus
	Time     time.Time
}

// Subscription is a live, finite feed of progress events for one analysis.
// Events are emitted in poll-round order; within a round, tasks keep the
// order of the first snapshot. The channel closes once every task is
// terminal, on a fatal error, or on context cancellation; Err and Analysis
// are valid after that.
type Subscription struct {
	events   chan ProgressEvent
	err      error
	analysis *api.Analysis
}

// Events returns the event channel. Range over it until it closes, then
// check Err.
func (s *Subscription) Events() <-chan ProgressEvent {
	return s.events
}

// Err reports why the feed ended: nil when all tasks reached a terminal
// state, the fatal API error otherwise, or the context error on
// cancellation. Only valid after the Events channel has been closed.
func (s *Subscription) Err() error {
	return s.err
}

// Analysis returns the last snapshot observed, for final per-task summary
// rendering. Only valid after the Events channel has been closed.
func (s *Subscription) Analysis() *api.Analysis {
	return s.analysis
}

// taskState is the per-task snapshot a subscription compares poll rounds
// against. A sealed task is terminal and excluded from future rounds.
type taskState struct {
	id       int
	platform string
	progress int
	message  string
	status   api.TaskStatus
	sealed   bool
}

// Subscribe starts polling the analysis and returns the subscription
// feeding its progress events. The remote job is not affected in any way;
// cancelling ctx only stops the observer.
func Subscribe(ctx context.Context, f Fetcher, analysisID string, opts Options) *Subscription {
	s := &Subscription{
		events: make(chan ProgressEvent),
	}
	go s.run(ctx, f, analysisID, opts.withDefaults())
	return s
}

func (s *Subscription) run(ctx context.Context, f Fetcher, analysisID string, opts Options) {
	defer close(s.events)

	var states []*taskState
	delay := opts.Interval
	retries := 0

	for {
		a, err := f.Analysis(ctx, analysisID)
		if err != nil {
			if !api.IsTransient(err) {
				s.err = fmt.Errorf("analysis %s: %w", analysisID, err)
				return
			}
			retries++
			if retries > opts.RetryBudget {
				s.err = fmt.Errorf("analysis %s: retry budget exhausted: %w", analysisID, err)
				return
			}
			log.Warnf("poll of analysis %s failed (attempt %d/%d): %s",
				analysisID, retries, opts.RetryBudget, err)
			if !s.pause(ctx, delay) {
				return
			}
			delay = bump(delay, opts.MaxInterval)
			continue
		}
		retries = 0
		s.analysis = a

		if states == nil {
			states = initialStates(a)
		}

		changed := false
		for _, st := range states {
			if st.sealed {
				continue
			}
			t := a.Task(st.id)
			if t == nil {
				s.err = fmt.Errorf("analysis %s: task %d: %w", analysisID, st.id, api.ErrNotFound)
				return
			}
			ev, ok := st.observe(t)
			if !ok {
				continue
			}
			changed = true
			select {
			case s.events <- ev:
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}

		if allSealed(states) {
			return
		}

		if changed {
			delay = opts.Interval
		} else {
			delay = bump(delay, opts.MaxInterval)
		}
		if !s.pause(ctx, delay) {
			return
		}
	}
}

// initialStates builds the fixed task ordering from the first snapshot.
// Tasks that are already terminal are sealed silently so that subscribing
// to a finished analysis yields no events.
func initialStates(a *api.Analysis) []*taskState {
	states := make([]*taskState, 0, len(a.Tasks))
	for i := range a.Tasks {
		t := &a.Tasks[i]
		states = append(states, &taskState{
			id:       t.ID,
			platform: t.PlatformCode,
			// forces an event for the current state on the first round
			progress: -1,
			status:   t.Status,
			sealed:   t.IsFinished(),
		})
	}
	return states
}

// observe compares the freshly polled task against the recorded state and
// returns the event to emit, if any. Progress never decreases; a terminal
// transition pins progress to 100, substitutes the final summary message
// and seals the task.
func (st *taskState) observe(t *api.Task) (ProgressEvent, bool) {
	if t.IsFinished() {
		st.sealed = true
		st.progress = 100
		return ProgressEvent{
			TaskID:   st.id,
			Platform: st.platform,
			Progress: 100,
			Message:  finalMessage(t),
			Status:   t.Status,
			Time:     time.Now().UTC(),
		}, true
	}

	progress := t.Progress
	if progress < st.progress {
		// the server is the source of truth but progress is contractually
		// monotonic, so never step backwards
		progress = st.progress
	}
	if progress == st.progress && t.Message == st.message && t.Status == st.status {
		return ProgressEvent{}, false
	}
	st.progress = progress
	st.message = t.Message
	st.status = t.Status
	return ProgressEvent{
		TaskID:   st.id,
		Platform: st.platform,
		Progress: progress,
		Message:  t.Message,
		Status:   t.Status,
		Time:     time.Now().UTC(),
	}, true
}

func finalMessage(t *api.Task) string {
	if t.IsFailed() {
		if t.Message != "" {
			return t.Message
		}
		return "task failed"
	}
	return fmt.Sprintf("maliciousness: %d", t.Maliciousness)
}

func allSealed(states []*taskState) bool {
	for _, st := range states {
		if !st.sealed {
			return false
		}
	}
	return true
}

// pause sleeps for d or until the context is cancelled, recording the
// context error in the latter case.
func (s *Subscription) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.err = ctx.Err()
		return false
	case <-timer.C:
		return true
	}
}

func bump(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}
