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

//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const devShmDir = "/dev/shm"

// CreateMemfd creates an anonymous memfd of the given size and maps it
// read-write. The name is only a debugging label in /proc.
func CreateMemfd(name string, size int) (*Region, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create %q: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate %q: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %q: %w", name, err)
	}
	return &Region{Data: data, Fd: fd, Size: size, Name: name, Kind: KindMemfd, base: data}, nil
}

// CreateDevShm creates a named region under /dev/shm. The file is unlinked
// when the region is unmapped.
func CreateDevShm(name string, size int) (*Region, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	path := filepath.Join(devShmDir, name)
	if !CanCreateOnDevShm(uint64(size), path) {
		return nil, fmt.Errorf("%w: path %s size %d", ErrNoSpaceOnDevShm, path, size)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	fd, err := unix.Dup(int(f.Fd()))
	_ = f.Close()
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("shm: dup %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &Region{Data: data, Fd: fd, Size: size, Name: path, Kind: KindDevShm, base: data}, nil
}

// OpenDevShm maps an existing named region under /dev/shm at its full length.
func OpenDevShm(name string) (*Region, error) {
	path := filepath.Join(devShmDir, name)
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	size := int(info.Size())
	if err := checkSize(size); err != nil {
		_ = f.Close()
		return nil, err
	}
	fd, err := unix.Dup(int(f.Fd()))
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("shm: dup %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	// Opened regions do not own the file name.
	return &Region{Data: data, Fd: fd, Size: size, Name: path, Kind: KindMapped, base: data}, nil
}

// MapFd maps size bytes at offset of a foreign descriptor, typically one
// received over a unix socket. The offset need not be page aligned; the
// mapping is widened to the containing page boundary and the returned view
// starts at the requested offset. The region takes ownership of fd.
func MapFd(fd int, offset, size int64) (*Region, error) {
	if err := checkSize(int(size)); err != nil {
		return nil, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("shm: fstat fd %d: %w", fd, err)
	}
	if offset < 0 || offset+size > st.Size {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrRangeOutOfBounds, offset, offset+size, st.Size)
	}
	page := int64(unix.Getpagesize())
	alignedOff := offset &^ (page - 1)
	slack := offset - alignedOff
	base, err := unix.Mmap(fd, alignedOff, int(size+slack), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap fd %d: %w", fd, err)
	}
	return &Region{
		Data: base[slack : slack+size],
		Fd:   fd,
		Size: int(size),
		Name: fmt.Sprintf("fd:%d+%d", fd, offset),
		Kind: KindMapped,
		base: base,
	}, nil
}

// DupFd duplicates a descriptor with CLOEXEC set, for handing out in an
// exported handle without surrendering the original.
func DupFd(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("shm: dup fd %d: %w", fd, err)
	}
	return nfd, nil
}

// CloseFd closes a descriptor obtained from DupFd or received over a socket.
func CloseFd(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("shm: close fd %d: %w", fd, err)
	}
	return nil
}

// Unmap releases the mapping and closes the descriptor. Unmapping twice is a
// no-op. KindDevShm regions also unlink their backing file.
func (r *Region) Unmap() error {
	if r == nil || r.unmapped {
		return nil
	}
	r.unmapped = true
	var first error
	if err := unix.Munmap(r.base); err != nil {
		first = fmt.Errorf("shm: munmap %s: %w", r.Name, err)
	}
	if err := unix.Close(r.Fd); err != nil && first == nil {
		first = fmt.Errorf("shm: close %s: %w", r.Name, err)
	}
	if r.Kind == KindDevShm {
		if err := os.Remove(r.Name); err != nil && !os.IsNotExist(err) && first == nil {
			first = fmt.Errorf("shm: unlink %s: %w", r.Name, err)
		}
	}
	r.Data = nil
	r.base = nil
	return first
}

// CanCreateOnDevShm reports whether /dev/shm has room for size bytes. Paths
// outside /dev/shm are not subject to the tmpfs limit and always pass.
func CanCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(filepath.Clean(path), devShmDir) {
		return true
	}
	usage, err := disk.Usage(devShmDir)
	if err != nil {
		return true
	}
	return usage.Free >= size
}
