// Package jobs provides the in-process background job runtime: a memory
// queue, a periodic scheduler, and a worker that dispatches queued
// messages to the command layer. Deployments that need a durable queue
// swap the memory queue for the go-job adapters.
package jobs

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

const defaultQueueCapacity = 256

// MemoryQueue is a channel-backed queue for single-process deployments.
// Messages with DedupPolicy "drop" and a non-empty idempotency key are
// discarded while an identical key is still pending.
type MemoryQueue struct {
	mu      gosync.Mutex
	pending map[string]struct{}
	ch      chan *core.JobExecutionMessage
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &MemoryQueue{
		pending: map[string]struct{}{},
		ch:      make(chan *core.JobExecutionMessage, capacity),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("jobs: queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" && strings.TrimSpace(msg.DedupPolicy) == "drop" {
		q.mu.Lock()
		if _, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return nil
		}
		q.pending[key] = struct{}{}
		q.mu.Unlock()
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		q.release(key)
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("jobs: queue is not configured")
	}
	select {
	case msg := <-q.ch:
		return &memoryDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *core.JobExecutionMessage
	done  gosync.Once
}

func (d *memoryDelivery) Message() *core.JobExecutionMessage {
	if d == nil {
		return nil
	}
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("jobs: delivery is not configured")
	}
	d.done.Do(func() {
		d.queue.release(strings.TrimSpace(d.msg.IdempotencyKey))
	})
	return nil
}

func (d *memoryDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("jobs: delivery is not configured")
	}
	var requeued bool
	d.done.Do(func() {
		if !opts.Requeue {
			d.queue.release(strings.TrimSpace(d.msg.IdempotencyKey))
			return
		}
		requeued = true
	})
	if !requeued {
		return nil
	}
	if opts.Delay <= 0 {
		select {
		case d.queue.ch <- d.msg:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	msg := d.msg
	queue := d.queue
	time.AfterFunc(opts.Delay, func() {
		select {
		case queue.ch <- msg:
		default:
			queue.release(strings.TrimSpace(msg.IdempotencyKey))
		}
	})
	return nil
}

var (
	_ core.JobEnqueuer = (*MemoryQueue)(nil)
	_ core.JobDequeuer = (*MemoryQueue)(nil)
	_ core.JobDelivery = (*memoryDelivery)(nil)
)
