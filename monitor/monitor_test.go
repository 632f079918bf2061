// vxcube-go
// Copyright (c) 2026, DCSO GmbH

package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DCSO/vxcube-go/api"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedFetcher serves one canned analysis snapshot per poll round and
// keeps serving the last one once the script is exhausted.
type scriptedFetcher struct {
	rounds []*api.Analysis
	errs   map[int]error // round index -> error instead of snapshot
	calls  int
}

func (f *scriptedFetcher) Analysis(ctx context.Context, analysisID string) (*api.Analysis, error) {
	i := f.calls
	f.calls++
	if err, ok := f.errs[i]; ok {
		return nil, err
	}
	if i >= len(f.rounds) {
		i = len(f.rounds) - 1
	}
	return f.rounds[i], nil
}

func analysis(tasks ...api.Task) *api.Analysis {
	return &api.Analysis{ID: "2bb1629b-a3fa-4a46-a461-bf0cbbb0e09e", Tasks: tasks}
}

func fastOpts() Options {
	return Options{Interval: time.Millisecond, MaxInterval: 4 * time.Millisecond, RetryBudget: 3}
}

func collect(t *testing.T, sub *Subscription) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("subscription did not terminate")
		}
	}
}

func TestSubscribeOrderingAndTermination(t *testing.T) {
	f := &scriptedFetcher{rounds: []*api.Analysis{
		analysis(
			api.Task{ID: 48151, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 10, Message: "unpacking"},
			api.Task{ID: 62342, PlatformCode: "win10x64", Status: api.StatusInQueue, Progress: 0},
		),
		analysis(
			api.Task{ID: 48151, PlatformCode: "win7x86", Status: api.StatusSuccessful, Maliciousness: 0},
			api.Task{ID: 62342, PlatformCode: "win10x64", Status: api.StatusProcessing, Progress: 40, Message: "running"},
		),
		analysis(
			api.Task{ID: 48151, PlatformCode: "win7x86", Status: api.StatusSuccessful, Maliciousness: 0},
			api.Task{ID: 62342, PlatformCode: "win10x64", Status: api.StatusSuccessful, Maliciousness: 25},
		),
	}}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	want := []struct {
		taskID   int
		progress int
		message  string
	}{
		{48151, 10, "unpacking"},
		{62342, 0, ""},
		{48151, 100, "maliciousness: 0"},
		{62342, 40, "running"},
		{62342, 100, "maliciousness: 25"},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, w := range want {
		if events[i].TaskID != w.taskID || events[i].Progress != w.progress || events[i].Message != w.message {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], w)
		}
	}

	// the early finisher must not appear after its terminal event
	if events[len(events)-1].TaskID != 62342 {
		t.Errorf("last event should belong to the late task, got %+v", events[len(events)-1])
	}
	if sub.Analysis() == nil || !sub.Analysis().IsFinished() {
		t.Error("final snapshot should be finished")
	}
}

func TestSubscribeMonotonicProgress(t *testing.T) {
	f := &scriptedFetcher{rounds: []*api.Analysis{
		analysis(api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 50, Message: "a"}),
		analysis(api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 30, Message: "b"}),
		analysis(api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusSuccessful, Maliciousness: 3}),
	}}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	last := -1
	for _, ev := range events {
		if ev.Progress < last {
			t.Errorf("progress decreased: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
	}
	// regressed progress is clamped, but the changed message still emits
	if len(events) != 3 || events[1].Progress != 50 || events[1].Message != "b" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestSubscribeFinishedAnalysisIsIdempotent(t *testing.T) {
	f := &scriptedFetcher{rounds: []*api.Analysis{
		analysis(
			api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusSuccessful, Maliciousness: 0},
			api.Task{ID: 2, PlatformCode: "win10x64", Status: api.StatusFailed, Message: "vm error"},
		),
	}}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for a finished analysis, got %+v", events)
	}
	if f.calls != 1 {
		t.Errorf("expected a single poll, got %d", f.calls)
	}
}

func TestSubscribeFailedTaskIsTerminal(t *testing.T) {
	f := &scriptedFetcher{rounds: []*api.Analysis{
		analysis(
			api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 5, Message: "boot"},
			api.Task{ID: 2, PlatformCode: "win10x64", Status: api.StatusProcessing, Progress: 5, Message: "boot"},
		),
		analysis(
			api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusFailed, Message: "emulator crashed"},
			api.Task{ID: 2, PlatformCode: "win10x64", Status: api.StatusProcessing, Progress: 70, Message: "dumping"},
		),
		analysis(
			api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusFailed, Message: "emulator crashed"},
			api.Task{ID: 2, PlatformCode: "win10x64", Status: api.StatusSuccessful, Maliciousness: 90},
		),
	}}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if err := sub.Err(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var failedEvents []ProgressEvent
	for _, ev := range events {
		if ev.TaskID == 1 && ev.Status == api.StatusFailed {
			failedEvents = append(failedEvents, ev)
		}
	}
	if len(failedEvents) != 1 {
		t.Fatalf("expected exactly one terminal event for the failed task, got %d", len(failedEvents))
	}
	if failedEvents[0].Message != "emulator crashed" || failedEvents[0].Progress != 100 {
		t.Errorf("unexpected terminal event: %+v", failedEvents[0])
	}
	// the failed task must not reappear after its terminal event
	seenFailed := false
	for _, ev := range events {
		if ev.TaskID == 1 {
			if seenFailed {
				t.Fatalf("event for sealed task after terminal event: %+v", ev)
			}
			if ev.Status == api.StatusFailed {
				seenFailed = true
			}
		}
	}
	if last := events[len(events)-1]; last.TaskID != 2 || last.Status != api.StatusSuccessful {
		t.Errorf("subscription should continue for the remaining task, last event %+v", last)
	}
}

func TestSubscribeFatalErrorAbortsWithoutEvents(t *testing.T) {
	authErr := &api.APIError{StatusCode: 401, Message: "bad key"}
	f := &scriptedFetcher{
		rounds: []*api.Analysis{analysis(
			api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 5},
		)},
		errs: map[int]error{0: authErr},
	}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if !errors.Is(sub.Err(), api.ErrAuth) {
		t.Fatalf("expected auth error, got %v", sub.Err())
	}
}

func TestSubscribeTransientErrorsAreRetried(t *testing.T) {
	f := &scriptedFetcher{
		rounds: []*api.Analysis{
			analysis(api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusSuccessful, Maliciousness: 1}),
		},
		errs: map[int]error{
			0: &api.APIError{StatusCode: 502, Message: "bad gateway"},
			1: errors.New("connection reset"),
		},
	}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if err := sub.Err(); err != nil {
		t.Fatalf("expected recovery after transient errors, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("finished analysis after retries should yield no events, got %+v", events)
	}
	if f.calls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", f.calls)
	}
}

func TestSubscribeRetryBudgetExhausted(t *testing.T) {
	f := &scriptedFetcher{
		rounds: []*api.Analysis{analysis()},
		errs: map[int]error{
			0: errors.New("reset"), 1: errors.New("reset"),
			2: errors.New("reset"), 3: errors.New("reset"),
		},
	}

	sub := Subscribe(context.Background(), f, "a1", fastOpts())
	events := collect(t, sub)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if sub.Err() == nil {
		t.Fatal("expected an error after exhausting the retry budget")
	}
}

func TestSubscribeCancellation(t *testing.T) {
	// a task that never finishes
	f := &scriptedFetcher{rounds: []*api.Analysis{
		analysis(api.Task{ID: 1, PlatformCode: "win7x86", Status: api.StatusProcessing, Progress: 10, Message: "stuck"}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	sub := Subscribe(ctx, f, "a1", fastOpts())

	// consume the baseline event, then walk away
	select {
	case <-sub.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no baseline event")
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				if !errors.Is(sub.Err(), context.Canceled) {
					t.Fatalf("expected context.Canceled, got %v", sub.Err())
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription did not stop after cancellation")
		}
	}
}
