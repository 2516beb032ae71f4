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

// Package shm provides the platform shared-memory primitives backing device
// arenas and imported allocations: anonymous memfd regions, file-backed
// regions under /dev/shm, and mappings of foreign descriptors received over
// a unix socket.
package shm

import (
	"errors"
	"fmt"
)

// Kind describes how a Region is backed.
type Kind int

const (
	// KindMemfd is an anonymous memfd-backed region. It is reachable from
	// another process only by passing its descriptor.
	KindMemfd Kind = iota
	// KindDevShm is a named file under /dev/shm, removed on Unmap.
	KindDevShm
	// KindMapped is a mapping of a descriptor this process did not create.
	KindMapped
)

// Region is a mapped shared-memory region. Data is the view requested by the
// caller; for KindMapped regions it may start inside the underlying page
// mapping when the mapped offset was not page aligned.
type Region struct {
	Data []byte
	Fd   int
	Size int
	Name string
	Kind Kind

	// base is the full mapping handed back by mmap, including any
	// alignment slack preceding Data.
	base     []byte
	unmapped bool
}

var (
	// ErrInvalidSize reports a non-positive region size.
	ErrInvalidSize = errors.New("shm: region size must be positive")
	// ErrRangeOutOfBounds reports a map request beyond the descriptor's length.
	ErrRangeOutOfBounds = errors.New("shm: mapped range exceeds descriptor length")
	// ErrNoSpaceOnDevShm reports that /dev/shm cannot hold the requested region.
	ErrNoSpaceOnDevShm = errors.New("shm: no space left on /dev/shm")
)

func checkSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidSize, size)
	}
	return nil
}
