/*
 * Copyright 2026 Halcyon Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package driver

import (
	"context"
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects the execution behaviour of a command queue.
type Mode int

const (
	// ModeDefault returns from Execute once the batch is enqueued.
	ModeDefault Mode = iota
	// ModeSynchronous makes Execute wait for the batch to retire.
	ModeSynchronous
)

// Priority is a scheduling hint. The simulated queues honor ordering within
// one queue regardless of priority.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

// QueueOptions configures a command queue.
type QueueOptions struct {
	Mode     Mode
	Priority Priority
}

// batch is one Execute submission.
type batch struct {
	lists []*CommandList
	done  chan struct{}
	err   error
	once  sync.Once
}

func (b *batch) complete(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

// CommandQueue executes closed command lists. Submissions flow through an
// unbounded queue drained by a dispatcher into a worker pool; batches retire
// in submission order per queue.
type CommandQueue struct {
	ctx  *Context
	dev  *Device
	opts QueueOptions

	subs *queue.Queue
	pool *ants.Pool

	mu        sync.Mutex
	pending   map[*batch]struct{}
	firstErr  error
	destroyed bool

	dispatchDone chan struct{}
}

// NewCommandQueue creates a command queue on dev.
func (c *Context) NewCommandQueue(dev *Device, opts QueueOptions) (*CommandQueue, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(c.drv.cfg.QueueWorkers)
	if err != nil {
		return nil, err
	}
	q := &CommandQueue{
		ctx:          c,
		dev:          dev,
		opts:         opts,
		subs:         queue.New(16),
		pool:         pool,
		pending:      make(map[*batch]struct{}),
		dispatchDone: make(chan struct{}),
	}
	c.trackQueue(q)
	go q.dispatch()
	return q, nil
}

// dispatch drains submissions until the queue is disposed. Batches are run
// one at a time to preserve submission order; the pool bounds concurrency
// across queues sharing a context.
func (q *CommandQueue) dispatch() {
	defer close(q.dispatchDone)
	for {
		items, err := q.subs.Get(1)
		if err != nil {
			// queue.ErrDisposed: Destroy is in progress.
			return
		}
		b := items[0].(*batch)
		ran := make(chan struct{})
		if err := q.pool.Submit(func() {
			defer close(ran)
			q.runBatch(b)
		}); err != nil {
			close(ran)
			q.runBatch(b)
		}
		<-ran
	}
}

func (q *CommandQueue) runBatch(b *batch) {
	ctx, span := q.ctx.drv.metrics.tracer.Start(context.Background(), "driver.runBatch",
		trace.WithAttributes(
			attribute.Int("device", q.dev.props.Ordinal),
			attribute.Int("lists", len(b.lists)),
		))
	defer span.End()

	var err error
	for _, l := range b.lists {
		if runErr := l.run(ctx); runErr != nil {
			err = runErr
			break
		}
	}
	q.ctx.drv.metrics.recordBatch(ctx)

	q.mu.Lock()
	delete(q.pending, b)
	if err != nil && q.firstErr == nil {
		q.firstErr = err
	}
	q.mu.Unlock()
	b.complete(err)
}

// Execute submits closed command lists as one batch. In synchronous mode it
// waits for the batch to retire.
func (q *CommandQueue) Execute(ctx context.Context, lists ...*CommandList) error {
	if len(lists) == 0 {
		return ErrInvalidArgument
	}
	for _, l := range lists {
		if l == nil {
			return ErrInvalidHandle
		}
		if !l.isClosed() {
			return ErrListNotClosed
		}
	}

	b := &batch{lists: lists, done: make(chan struct{})}

	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return ErrQueueDestroyed
	}
	q.pending[b] = struct{}{}
	q.mu.Unlock()

	if err := q.subs.Put(b); err != nil {
		q.mu.Lock()
		delete(q.pending, b)
		q.mu.Unlock()
		return ErrQueueDestroyed
	}

	if q.opts.Mode == ModeSynchronous {
		select {
		case <-b.done:
			return b.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Synchronize blocks until every submitted batch has retired or ctx is done,
// then reports the first execution error.
func (q *CommandQueue) Synchronize(ctx context.Context) error {
	q.mu.Lock()
	waiting := make([]*batch, 0, len(q.pending))
	for b := range q.pending {
		waiting = append(waiting, b)
	}
	q.mu.Unlock()

	for _, b := range waiting {
		select {
		case <-b.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErr
}

// Destroy stops the queue. Batches that never ran complete with
// ErrQueueDestroyed.
func (q *CommandQueue) Destroy() error {
	q.mu.Lock()
	if q.destroyed {
		q.mu.Unlock()
		return nil
	}
	q.destroyed = true
	q.mu.Unlock()

	q.subs.Dispose()
	<-q.dispatchDone
	q.pool.Release()

	q.mu.Lock()
	for b := range q.pending {
		b.complete(ErrQueueDestroyed)
		delete(q.pending, b)
	}
	q.mu.Unlock()

	q.ctx.forgetQueue(q)
	return nil
}
