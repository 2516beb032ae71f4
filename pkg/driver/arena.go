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
	"sort"
	"sync"

	"github.com/halcyon-compute/halcyon/internal/shm"
)

// arena is the memfd-backed heap behind one context+device pair. Offsets
// handed out by alloc stay valid for the arena's lifetime, so an exported
// handle can name an allocation as (fd, offset, size).
type arena struct {
	region *shm.Region

	mu   sync.Mutex
	free []span // sorted by offset, coalesced
}

type span struct {
	off  uint64
	size uint64
}

func newArena(dev *Device, size uint64) (*arena, error) {
	region, err := shm.CreateMemfd(fmt.Sprintf("halcyon-dev%d-arena", dev.props.Ordinal), int(size))
	if err != nil {
		return nil, err
	}
	return &arena{
		region: region,
		free:   []span{{off: 0, size: size}},
	}, nil
}

// alloc carves size bytes, first fit. alignment of zero means byte aligned;
// otherwise it must be a power of two.
func (a *arena) alloc(size, alignment uint64) (uint64, error) {
	if alignment == 0 {
		alignment = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, s := range a.free {
		start := (s.off + alignment - 1) &^ (alignment - 1)
		pad := start - s.off
		if s.size < pad+size {
			continue
		}
		// Shrink or split the free span around the carved range.
		replaced := make([]span, 0, len(a.free)+1)
		replaced = append(replaced, a.free[:i]...)
		if pad > 0 {
			replaced = append(replaced, span{off: s.off, size: pad})
		}
		if tail := s.size - pad - size; tail > 0 {
			replaced = append(replaced, span{off: start + size, size: tail})
		}
		a.free = append(replaced, a.free[i+1:]...)
		return start, nil
	}
	return 0, fmt.Errorf("%w: %d bytes (align %d)", ErrOutOfDeviceMemory, size, alignment)
}

// release returns a range to the free list and coalesces neighbours.
func (a *arena) release(off, size uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = append(a.free, span{off: off, size: size})
	sort.Slice(a.free, func(i, j int) bool { return a.free[i].off < a.free[j].off })
	merged := a.free[:1]
	for _, s := range a.free[1:] {
		last := &merged[len(merged)-1]
		if last.off+last.size == s.off {
			last.size += s.size
			continue
		}
		merged = append(merged, s)
	}
	a.free = merged
}

func (a *arena) bytes(off, size uint64) []byte {
	return a.region.Data[off : off+size]
}

func (a *arena) destroy() error {
	return a.region.Unmap()
}
