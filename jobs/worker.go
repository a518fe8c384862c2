package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/command"
	"github.com/vitalbridge/go-healthsync/core"
)

// Dispatcher routes queued job messages to the command layer.
type Dispatcher struct {
	Reconcile gocmd.Commander[command.ReconcileStreamMessage]
	Baseline  gocmd.Commander[command.CheckBaselineMessage]
	Provision gocmd.Commander[command.ProvisionStreamsMessage]
	Refresh   gocmd.Commander[command.RefreshIndexMessage]
}

func (d Dispatcher) Dispatch(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}
	switch msg.JobID {
	case core.JobIDReconcileStream:
		if d.Reconcile == nil {
			return fmt.Errorf("jobs: reconcile command is not configured")
		}
		cmdMsg := command.ReconcileStreamMessage{SourceType: stringParam(msg.Parameters, "source_type")}
		if err := cmdMsg.Validate(); err != nil {
			return err
		}
		return d.Reconcile.Execute(ctx, cmdMsg)
	case core.JobIDCheckBaseline:
		if d.Baseline == nil {
			return fmt.Errorf("jobs: baseline command is not configured")
		}
		cmdMsg := command.CheckBaselineMessage{SourceType: stringParam(msg.Parameters, "source_type")}
		if err := cmdMsg.Validate(); err != nil {
			return err
		}
		return d.Baseline.Execute(ctx, cmdMsg)
	case core.JobIDProvisionStreams:
		if d.Provision == nil {
			return fmt.Errorf("jobs: provision command is not configured")
		}
		cmdMsg := command.ProvisionStreamsMessage{SourceTypes: stringSliceParam(msg.Parameters, "source_types")}
		if err := cmdMsg.Validate(); err != nil {
			return err
		}
		return d.Provision.Execute(ctx, cmdMsg)
	case core.JobIDRefreshIndex:
		if d.Refresh == nil {
			return fmt.Errorf("jobs: refresh command is not configured")
		}
		return d.Refresh.Execute(ctx, command.RefreshIndexMessage{})
	default:
		return fmt.Errorf("jobs: unknown job id %q", msg.JobID)
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

// stringSliceParam tolerates both []string and the []any a JSON decoder
// produces for queued parameters.
func stringSliceParam(params map[string]any, key string) []string {
	if params == nil {
		return nil
	}
	switch values := params[key].(type) {
	case []string:
		return values
	case []any:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Worker drains the queue and executes jobs through the dispatcher.
// Transient failures are requeued with a fixed backoff up to maxAttempts,
// then dropped.
type Worker struct {
	dequeuer    core.JobDequeuer
	dispatcher  Dispatcher
	hook        core.JobWorkerHook
	logger      core.Logger
	retryDelay  time.Duration
	maxAttempts int
	now         func() time.Time

	attempts map[string]int
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		if w == nil || logger == nil {
			return
		}
		w.logger = logger
	}
}

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		if w == nil || hook == nil {
			return
		}
		w.hook = hook
	}
}

func WithWorkerRetry(delay time.Duration, maxAttempts int) WorkerOption {
	return func(w *Worker) {
		if w == nil {
			return
		}
		if delay > 0 {
			w.retryDelay = delay
		}
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
	}
}

func NewWorker(dequeuer core.JobDequeuer, dispatcher Dispatcher, options ...WorkerOption) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("jobs: dequeuer is required")
	}
	worker := &Worker{
		dequeuer:    dequeuer,
		dispatcher:  dispatcher,
		retryDelay:  30 * time.Second,
		maxAttempts: 3,
		now:         time.Now,
		attempts:    map[string]int{},
	}
	for _, option := range options {
		option(worker)
	}
	if worker.logger == nil {
		_, worker.logger = glog.Resolve("healthsync.jobs.worker", nil, nil)
	}
	return worker, nil
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("dequeue failed", "error", err)
			continue
		}
		w.process(ctx, delivery)
	}
}

func (w *Worker) process(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Ack(ctx)
		return
	}

	attempt := w.nextAttempt(msg)
	started := w.now()
	w.emit(func(h core.JobWorkerHook) {
		h.OnStart(ctx, core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: started})
	})

	err := w.dispatcher.Dispatch(ctx, msg)
	duration := w.now().Sub(started)
	if err == nil {
		w.clearAttempts(msg)
		w.emit(func(h core.JobWorkerHook) {
			h.OnSuccess(ctx, core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: started, Duration: duration})
		})
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			w.logger.Warn("ack failed", "job_id", msg.JobID, "error", ackErr)
		}
		return
	}

	if attempt >= w.maxAttempts {
		w.clearAttempts(msg)
		w.logger.Error("job failed, giving up",
			"job_id", msg.JobID,
			"attempt", attempt,
			"error", err,
		)
		w.emit(func(h core.JobWorkerHook) {
			h.OnFailure(ctx, core.JobWorkerEvent{Message: msg, Attempt: attempt, Err: err, StartedAt: started, Duration: duration})
		})
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{Requeue: false, DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			w.logger.Warn("nack failed", "job_id", msg.JobID, "error", nackErr)
		}
		return
	}

	w.logger.Warn("job failed, retrying",
		"job_id", msg.JobID,
		"attempt", attempt,
		"delay", w.retryDelay.String(),
		"error", err,
	)
	w.emit(func(h core.JobWorkerHook) {
		h.OnRetry(ctx, core.JobWorkerEvent{Message: msg, Attempt: attempt, Delay: w.retryDelay, Err: err, StartedAt: started, Duration: duration})
	})
	if nackErr := delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: w.retryDelay, Reason: err.Error()}); nackErr != nil {
		w.logger.Warn("nack failed", "job_id", msg.JobID, "error", nackErr)
	}
}

func (w *Worker) emit(fn func(core.JobWorkerHook)) {
	if w.hook == nil {
		return
	}
	fn(w.hook)
}

func (w *Worker) attemptKey(msg *core.JobExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return msg.JobID
}

func (w *Worker) nextAttempt(msg *core.JobExecutionMessage) int {
	key := w.attemptKey(msg)
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) clearAttempts(msg *core.JobExecutionMessage) {
	delete(w.attempts, w.attemptKey(msg))
}
