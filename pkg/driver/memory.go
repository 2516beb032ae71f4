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

type memKind int

const (
	memHost memKind = iota
	memDevice
	memImported
)

func (k memKind) String() string {
	switch k {
	case memHost:
		return "host"
	case memDevice:
		return "device"
	case memImported:
		return "imported"
	}
	return "unknown"
}

// Memory is one allocation owned by a Context. Device memory is reachable
// only through command-list copies; host and imported memory are directly
// addressable via Bytes.
type Memory struct {
	id   string
	ctx  *Context
	kind memKind
	size uint64
	dev  *Device

	// device memory carved from an arena
	ar     *arena
	offset uint64
	// device memory backed by a physical reservation instead of an arena
	phys *PhysicalMem

	// host memory
	host []byte

	// imported memory
	region *shm.Region
}

// Size returns the allocation size in bytes.
func (m *Memory) Size() uint64 { return m.size }

// Device returns the owning device, or nil for host memory.
func (m *Memory) Device() *Device { return m.dev }

// Bytes exposes host-addressable memory. Device memory returns
// ErrNotAddressable.
func (m *Memory) Bytes() ([]byte, error) {
	switch m.kind {
	case memHost:
		return m.host, nil
	case memImported:
		return m.region.Data, nil
	default:
		return nil, ErrNotAddressable
	}
}

// view returns the backing bytes for command-list copies, regardless of kind.
func (m *Memory) view() []byte {
	switch m.kind {
	case memHost:
		return m.host
	case memImported:
		return m.region.Data
	default:
		if m.phys != nil {
			return m.phys.region.Data[:m.size]
		}
		return m.ar.bytes(m.offset, m.size)
	}
}

func validSizeAlign(size, alignment uint64) error {
	if size == 0 {
		return fmt.Errorf("%w: zero size", ErrInvalidArgument)
	}
	if alignment&(alignment-1) != 0 {
		return fmt.Errorf("%w: alignment %d is not a power of two", ErrInvalidArgument, alignment)
	}
	return nil
}

// AllocDevice allocates device memory on dev. Alignment of zero means byte
// aligned.
func (c *Context) AllocDevice(dev *Device, size, alignment uint64) (*Memory, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if err := validSizeAlign(size, alignment); err != nil {
		return nil, err
	}
	a, err := c.arenaFor(dev)
	if err != nil {
		return nil, err
	}
	off, err := a.alloc(size, alignment)
	if err != nil {
		return nil, err
	}
	m := &Memory{
		id:     c.newID(),
		ctx:    c,
		kind:   memDevice,
		size:   size,
		dev:    dev,
		ar:     a,
		offset: off,
	}
	c.allocs.Set(m.id, m)
	c.drv.metrics.recordAlloc("device", dev, size)
	return m, nil
}

// AllocHost allocates host-visible memory.
func (c *Context) AllocHost(size, alignment uint64) (*Memory, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if err := validSizeAlign(size, alignment); err != nil {
		return nil, err
	}
	m := &Memory{
		id:   c.newID(),
		ctx:  c,
		kind: memHost,
		size: size,
		host: make([]byte, size),
	}
	c.allocs.Set(m.id, m)
	c.drv.metrics.recordAlloc("host", nil, size)
	return m, nil
}

// Free releases a host or device allocation. Imported memory must be closed
// with CloseIPC, physically mapped memory with UnmapPhysical.
func (c *Context) Free(m *Memory) error {
	if m == nil || m.ctx != c {
		return ErrInvalidHandle
	}
	if m.kind == memImported || m.phys != nil {
		return fmt.Errorf("%w: %s memory", ErrInvalidHandle, m.kind)
	}
	if _, ok := c.allocs.Pop(m.id); !ok {
		return fmt.Errorf("%w: already freed", ErrInvalidHandle)
	}
	return c.releaseMemory(m)
}

// releaseMemory drops the backing storage without touching the registry.
func (c *Context) releaseMemory(m *Memory) error {
	switch m.kind {
	case memHost:
		m.host = nil
	case memImported:
		return m.region.Unmap()
	case memDevice:
		if m.phys == nil {
			m.ar.release(m.offset, m.size)
			c.drv.metrics.recordFree(m.dev, m.size)
		} else {
			m.phys.mapped = false
		}
	}
	return nil
}
