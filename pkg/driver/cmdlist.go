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
	"fmt"
	"sync"
)

// CommandList records operations for later execution on a command queue.
// Lists must be closed before execution and can be reset for reuse.
type CommandList struct {
	ctx *Context
	dev *Device

	mu        sync.Mutex
	closed    bool
	destroyed bool
	ops       []copyOp
}

type copyOp struct {
	dst, src *Memory
	n        uint64
}

// NewCommandList creates an open command list for dev.
func (c *Context) NewCommandList(dev *Device) (*CommandList, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	return &CommandList{ctx: c, dev: dev}, nil
}

// AppendCopy records a copy of n bytes from src to dst.
func (l *CommandList) AppendCopy(dst, src *Memory, n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return ErrInvalidHandle
	}
	if l.closed {
		return ErrListClosed
	}
	if dst == nil || src == nil {
		return ErrInvalidHandle
	}
	if n == 0 || n > dst.size || n > src.size {
		return fmt.Errorf("%w: copy of %d bytes (dst %d, src %d)", ErrInvalidArgument, n, dst.size, src.size)
	}
	l.ops = append(l.ops, copyOp{dst: dst, src: src, n: n})
	return nil
}

// Close seals the list for execution. Closing twice is a no-op.
func (l *CommandList) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return ErrInvalidHandle
	}
	l.closed = true
	return nil
}

// Reset reopens the list and discards recorded operations.
func (l *CommandList) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.destroyed {
		return ErrInvalidHandle
	}
	l.closed = false
	l.ops = l.ops[:0]
	return nil
}

// Destroy invalidates the list.
func (l *CommandList) Destroy() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed = true
	l.ops = nil
	return nil
}

func (l *CommandList) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed && !l.destroyed
}

// run executes the recorded operations in order.
func (l *CommandList) run(ctx context.Context) error {
	l.mu.Lock()
	ops := make([]copyOp, len(l.ops))
	copy(ops, l.ops)
	l.mu.Unlock()

	for _, op := range ops {
		copy(op.dst.view()[:op.n], op.src.view()[:op.n])
	}
	l.ctx.drv.metrics.recordCopies(ctx, len(ops))
	return nil
}
