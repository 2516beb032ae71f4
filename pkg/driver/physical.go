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
	"fmt"

	"github.com/halcyon-compute/halcyon/internal/shm"
)

// PhysicalMem is a standalone physical reservation: its backing memfd exists
// independently of any arena, and becomes usable device memory once mapped
// into the context. Mapped reservations are IPC-exportable like arena
// allocations.
type PhysicalMem struct {
	id     string
	ctx    *Context
	dev    *Device
	size   uint64
	region *shm.Region
	mapped bool
	freed  bool
}

// Size returns the reservation size in bytes.
func (p *PhysicalMem) Size() uint64 { return p.size }

// ReservePhysical reserves size bytes of physical memory on dev.
func (c *Context) ReservePhysical(dev *Device, size uint64) (*PhysicalMem, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero size", ErrInvalidArgument)
	}
	region, err := shm.CreateMemfd(fmt.Sprintf("halcyon-dev%d-phys", dev.props.Ordinal), int(size))
	if err != nil {
		return nil, err
	}
	return &PhysicalMem{
		id:     c.newID(),
		ctx:    c,
		dev:    dev,
		size:   size,
		region: region,
	}, nil
}

// MapPhysical maps a reservation into the context as device memory.
func (c *Context) MapPhysical(p *PhysicalMem) (*Memory, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if p == nil || p.ctx != c || p.freed {
		return nil, ErrInvalidHandle
	}
	if p.mapped {
		return nil, ErrAlreadyMapped
	}
	p.mapped = true
	m := &Memory{
		id:   c.newID(),
		ctx:  c,
		kind: memDevice,
		size: p.size,
		dev:  p.dev,
		phys: p,
	}
	c.allocs.Set(m.id, m)
	c.drv.metrics.recordAlloc("physical", p.dev, p.size)
	return m, nil
}

// UnmapPhysical releases a mapping created by MapPhysical. The reservation
// itself stays valid until FreePhysical.
func (c *Context) UnmapPhysical(m *Memory) error {
	if m == nil || m.ctx != c || m.phys == nil {
		return ErrInvalidHandle
	}
	if _, ok := c.allocs.Pop(m.id); !ok {
		return ErrNotMapped
	}
	m.phys.mapped = false
	return nil
}

// FreePhysical releases the reservation. Mapped reservations must be
// unmapped first.
func (c *Context) FreePhysical(p *PhysicalMem) error {
	if p == nil || p.ctx != c || p.freed {
		return ErrInvalidHandle
	}
	if p.mapped {
		return ErrAlreadyMapped
	}
	p.freed = true
	return p.region.Unmap()
}
