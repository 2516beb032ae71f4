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

// IPCHandle is an exported reference to a device allocation: a duplicated
// descriptor of the backing memfd plus the allocation's position in it.
// The descriptor only reaches another process via unix-socket ancillary
// data (see pkg/ipcx); the struct itself carries no cross-process meaning.
type IPCHandle struct {
	Fd     int
	Offset uint64
	Size   uint64
}

// ExportIPC exports device memory as an IPC handle. The caller owns the
// handle's descriptor; the allocation itself stays valid and owned by the
// exporting context.
func (c *Context) ExportIPC(m *Memory) (*IPCHandle, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if m == nil || m.ctx != c {
		return nil, ErrInvalidHandle
	}
	if _, ok := c.allocs.Get(m.id); !ok {
		return nil, fmt.Errorf("%w: freed allocation", ErrInvalidHandle)
	}
	if m.kind != memDevice {
		return nil, fmt.Errorf("%w: %s memory", ErrNotShareable, m.kind)
	}

	backingFd := m.ar.region.Fd
	offset := m.offset
	if m.phys != nil {
		backingFd = m.phys.region.Fd
		offset = 0
	}
	fd, err := shm.DupFd(backingFd)
	if err != nil {
		return nil, err
	}
	c.drv.metrics.ipcExports.Inc()
	return &IPCHandle{Fd: fd, Offset: offset, Size: m.size}, nil
}

// OpenIPC imports a handle exported by another process (or context) and maps
// it on dev. The returned memory is host addressable and usable in
// command-list copies; it takes ownership of the handle's descriptor.
func (c *Context) OpenIPC(dev *Device, h IPCHandle) (*Memory, error) {
	if err := c.checkLive(); err != nil {
		return nil, err
	}
	if h.Size == 0 {
		return nil, fmt.Errorf("%w: zero-size handle", ErrInvalidArgument)
	}
	region, err := shm.MapFd(h.Fd, int64(h.Offset), int64(h.Size))
	if err != nil {
		return nil, err
	}
	m := &Memory{
		id:     c.newID(),
		ctx:    c,
		kind:   memImported,
		size:   h.Size,
		dev:    dev,
		region: region,
	}
	c.allocs.Set(m.id, m)
	c.drv.metrics.ipcOpens.Inc()
	c.drv.metrics.recordAlloc("imported", nil, h.Size)
	return m, nil
}

// CloseIPC unmaps imported memory and closes its descriptor.
func (c *Context) CloseIPC(m *Memory) error {
	if m == nil || m.ctx != c || m.kind != memImported {
		return ErrInvalidHandle
	}
	if _, ok := c.allocs.Pop(m.id); !ok {
		return fmt.Errorf("%w: already closed", ErrInvalidHandle)
	}
	return m.region.Unmap()
}

// CloseHandle releases an exported handle's descriptor without importing it.
// Senders use it after the handle has been transmitted.
func CloseHandle(h *IPCHandle) error {
	if h == nil || h.Fd < 0 {
		return nil
	}
	err := shm.CloseFd(h.Fd)
	h.Fd = -1
	return err
}
