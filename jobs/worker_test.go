package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitalbridge/go-healthsync/command"
	"github.com/vitalbridge/go-healthsync/core"
)

type stubReconcileCommand struct {
	executeFn func(ctx context.Context, msg command.ReconcileStreamMessage) error
}

func (s stubReconcileCommand) Execute(ctx context.Context, msg command.ReconcileStreamMessage) error {
	return s.executeFn(ctx, msg)
}

type stubRefreshCommand struct {
	executeFn func(ctx context.Context, msg command.RefreshIndexMessage) error
}

func (s stubRefreshCommand) Execute(ctx context.Context, msg command.RefreshIndexMessage) error {
	return s.executeFn(ctx, msg)
}

func TestDispatcherRoutesReconcile(t *testing.T) {
	var got string
	dispatcher := Dispatcher{
		Reconcile: stubReconcileCommand{
			executeFn: func(_ context.Context, msg command.ReconcileStreamMessage) error {
				got = msg.SourceType
				return nil
			},
		},
	}

	err := dispatcher.Dispatch(context.Background(), &core.JobExecutionMessage{
		JobID:      core.JobIDReconcileStream,
		Parameters: map[string]any{"source_type": "HKQuantityTypeIdentifierHeartRate"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != "HKQuantityTypeIdentifierHeartRate" {
		t.Fatalf("expected source type to flow through, got %q", got)
	}
}

func TestDispatcherRejectsMissingSourceType(t *testing.T) {
	dispatcher := Dispatcher{
		Reconcile: stubReconcileCommand{
			executeFn: func(context.Context, command.ReconcileStreamMessage) error {
				t.Fatalf("command must not run for invalid input")
				return nil
			},
		},
	}

	err := dispatcher.Dispatch(context.Background(), &core.JobExecutionMessage{
		JobID: core.JobIDReconcileStream,
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

type stubProvisionCommand struct {
	executeFn func(ctx context.Context, msg command.ProvisionStreamsMessage) error
}

func (s stubProvisionCommand) Execute(ctx context.Context, msg command.ProvisionStreamsMessage) error {
	return s.executeFn(ctx, msg)
}

func TestDispatcherRoutesProvision(t *testing.T) {
	var got []string
	dispatcher := Dispatcher{
		Provision: stubProvisionCommand{
			executeFn: func(_ context.Context, msg command.ProvisionStreamsMessage) error {
				got = msg.SourceTypes
				return nil
			},
		},
	}

	// Queued parameters decoded from JSON arrive as []any.
	err := dispatcher.Dispatch(context.Background(), &core.JobExecutionMessage{
		JobID: core.JobIDProvisionStreams,
		Parameters: map[string]any{
			"source_types": []any{"HKQuantityTypeIdentifierBodyMass", "HKCategoryTypeIdentifierSleepAnalysis"},
		},
	})
	if err != nil {
		t.Fatalf("expected dispatch to succeed: %v", err)
	}
	if len(got) != 2 || got[0] != "HKQuantityTypeIdentifierBodyMass" || got[1] != "HKCategoryTypeIdentifierSleepAnalysis" {
		t.Fatalf("expected source types to reach the command, got %v", got)
	}
}

func TestDispatcherRejectsUnknownJobID(t *testing.T) {
	err := Dispatcher{}.Dispatch(context.Background(), &core.JobExecutionMessage{JobID: "healthsync.job.unknown"})
	if err == nil {
		t.Fatalf("expected unknown job error")
	}
}

func TestWorkerRetriesThenGivesUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(4)
	calls := 0
	dispatcher := Dispatcher{
		Refresh: stubRefreshCommand{
			executeFn: func(context.Context, command.RefreshIndexMessage) error {
				calls++
				if calls >= 2 {
					cancel()
				}
				return errors.New("remote unavailable")
			},
		},
	}

	worker, err := NewWorker(queue, dispatcher, WithWorkerRetry(time.Millisecond, 2))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	msg := &core.JobExecutionMessage{
		JobID:          core.JobIDRefreshIndex,
		IdempotencyKey: "refresh-r1",
	}
	if err := queue.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
}

func TestWorkerAcksOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(4)
	dispatcher := Dispatcher{
		Refresh: stubRefreshCommand{
			executeFn: func(context.Context, command.RefreshIndexMessage) error {
				cancel()
				return nil
			},
		},
	}

	hook := &recordingHook{}
	worker, err := NewWorker(queue, dispatcher, WithWorkerHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	msg := &core.JobExecutionMessage{JobID: core.JobIDRefreshIndex, IdempotencyKey: "refresh-ok"}
	if err := queue.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := worker.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if hook.successes != 1 {
		t.Fatalf("expected one success event, got %d", hook.successes)
	}
	if hook.failures != 0 {
		t.Fatalf("expected no failure events, got %d", hook.failures)
	}
	if len(queue.ch) != 0 {
		t.Fatalf("expected drained queue")
	}
}

func TestSchedulerEnqueuesRefreshPerInterval(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	scheduler, err := NewScheduler(enqueuer, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	if err := scheduler.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	if len(enqueuer.messages) == 0 {
		t.Fatalf("expected at least one scheduled refresh")
	}
	for _, msg := range enqueuer.messages {
		if msg.JobID != core.JobIDRefreshIndex {
			t.Fatalf("unexpected job id %q", msg.JobID)
		}
		if msg.DedupPolicy != "drop" {
			t.Fatalf("expected drop dedup policy, got %q", msg.DedupPolicy)
		}
		if msg.IdempotencyKey == "" {
			t.Fatalf("expected idempotency key")
		}
	}
}

func TestSchedulerEnqueuesBaselineChecksForStaticStreams(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	scheduler, err := NewScheduler(enqueuer, 10*time.Millisecond,
		WithBaselineStreams([]string{"HKCharacteristicTypeIdentifierDateOfBirth"}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	if err := scheduler.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	var baselines int
	for _, msg := range enqueuer.messages {
		if msg.JobID != core.JobIDCheckBaseline {
			continue
		}
		baselines++
		if got := msg.Parameters["source_type"]; got != "HKCharacteristicTypeIdentifierDateOfBirth" {
			t.Fatalf("unexpected baseline target %v", got)
		}
	}
	if baselines == 0 {
		t.Fatalf("expected scheduled baseline checks")
	}
}

type recordingEnqueuer struct {
	messages []*core.JobExecutionMessage
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

type recordingHook struct {
	successes int
	failures  int
}

func (h *recordingHook) OnStart(context.Context, core.JobWorkerEvent) {}
func (h *recordingHook) OnSuccess(context.Context, core.JobWorkerEvent) {
	h.successes++
}
func (h *recordingHook) OnFailure(context.Context, core.JobWorkerEvent) {
	h.failures++
}
func (h *recordingHook) OnRetry(context.Context, core.JobWorkerEvent) {}
