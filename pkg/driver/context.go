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
	"strconv"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// Context owns allocations, command lists and command queues. Destroying a
// context releases everything it still owns, matching driver-owned cleanup
// semantics: leaked allocations are reclaimed, with a warning.
type Context struct {
	drv *Driver

	// allocs tracks every live Memory of this context, keyed by
	// allocation id.
	allocs cmap.ConcurrentMap[string, *Memory]

	mu        sync.Mutex
	arenas    map[int]*arena // by device ordinal
	queues    map[*CommandQueue]struct{}
	destroyed bool

	nextID atomic.Uint64
}

// NewContext creates a context on the driver.
func (d *Driver) NewContext() (*Context, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	c := &Context{
		drv:    d,
		allocs: cmap.New[*Memory](),
		arenas: make(map[int]*arena),
		queues: make(map[*CommandQueue]struct{}),
	}
	d.trackContext(c)
	return c, nil
}

// Destroy releases all allocations, queues and arenas owned by the context.
func (c *Context) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	queues := make([]*CommandQueue, 0, len(c.queues))
	for q := range c.queues {
		queues = append(queues, q)
	}
	c.queues = nil
	c.mu.Unlock()

	for _, q := range queues {
		_ = q.Destroy()
	}

	if n := c.allocs.Count(); n > 0 {
		c.drv.log.Warn("context destroyed with live allocations", zap.Int("count", n))
	}
	var first error
	for item := range c.allocs.IterBuffered() {
		if err := c.releaseMemory(item.Val); err != nil && first == nil {
			first = err
		}
	}
	c.allocs.Clear()

	c.mu.Lock()
	arenas := c.arenas
	c.arenas = nil
	c.mu.Unlock()
	for _, a := range arenas {
		if err := a.destroy(); err != nil && first == nil {
			first = err
		}
	}
	c.drv.forgetContext(c)
	return first
}

func (c *Context) checkLive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrContextDestroyed
	}
	return nil
}

func (c *Context) newID() string {
	return strconv.FormatUint(c.nextID.Add(1), 10)
}

// arenaFor returns the device arena, creating it on first use.
func (c *Context) arenaFor(dev *Device) (*arena, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if a, ok := c.arenas[dev.props.Ordinal]; ok {
		return a, nil
	}
	a, err := newArena(dev, dev.props.TotalMemory)
	if err != nil {
		return nil, err
	}
	c.arenas[dev.props.Ordinal] = a
	return a, nil
}

func (c *Context) trackQueue(q *CommandQueue) {
	c.mu.Lock()
	if c.queues != nil {
		c.queues[q] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *Context) forgetQueue(q *CommandQueue) {
	c.mu.Lock()
	if c.queues != nil {
		delete(c.queues, q)
	}
	c.mu.Unlock()
}
