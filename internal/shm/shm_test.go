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
	"math"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCreateMemfd(t *testing.T) {
	r, err := CreateMemfd("halcyon-test", 4096)
	require.NoError(t, err)
	defer func() { _ = r.Unmap() }()

	assert.Equal(t, 4096, r.Size)
	assert.Len(t, r.Data, 4096)
	assert.Equal(t, KindMemfd, r.Kind)

	copy(r.Data, []byte("hello"))
	assert.Equal(t, byte('h'), r.Data[0])
}

func TestCreateMemfdInvalidSize(t *testing.T) {
	_, err := CreateMemfd("halcyon-test", 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = CreateMemfd("halcyon-test", -1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapFdSharesMemory(t *testing.T) {
	r, err := CreateMemfd("halcyon-test", 8192)
	require.NoError(t, err)
	defer func() { _ = r.Unmap() }()

	r.Data[100] = 0xAB

	fd, err := DupFd(r.Fd)
	require.NoError(t, err)
	view, err := MapFd(fd, 0, 8192)
	require.NoError(t, err)
	defer func() { _ = view.Unmap() }()

	assert.Equal(t, byte(0xAB), view.Data[100])

	// Writes through the view are visible in the original mapping.
	view.Data[200] = 0xCD
	assert.Equal(t, byte(0xCD), r.Data[200])
}

func TestMapFdUnalignedOffset(t *testing.T) {
	r, err := CreateMemfd("halcyon-test", 8192)
	require.NoError(t, err)
	defer func() { _ = r.Unmap() }()

	// An offset inside a page must still land on the right byte.
	r.Data[4100] = 0x7F

	fd, err := DupFd(r.Fd)
	require.NoError(t, err)
	view, err := MapFd(fd, 4100, 64)
	require.NoError(t, err)
	defer func() { _ = view.Unmap() }()

	require.Len(t, view.Data, 64)
	assert.Equal(t, byte(0x7F), view.Data[0])
}

func TestMapFdOutOfBounds(t *testing.T) {
	r, err := CreateMemfd("halcyon-test", 4096)
	require.NoError(t, err)
	defer func() { _ = r.Unmap() }()

	fd, err := DupFd(r.Fd)
	require.NoError(t, err)
	_, err = MapFd(fd, 4000, 1024)
	assert.ErrorIs(t, err, ErrRangeOutOfBounds)
	_ = unix.Close(fd)
}

func TestDevShmLifecycle(t *testing.T) {
	name := fmt.Sprintf("halcyon_shm_test_%d", os.Getpid())
	r, err := CreateDevShm(name, 4096)
	require.NoError(t, err)

	r.Data[0] = 0x42

	view, err := OpenDevShm(name)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), view.Data[0])
	require.NoError(t, view.Unmap())

	require.NoError(t, r.Unmap())
	_, err = os.Stat(r.Name)
	assert.True(t, os.IsNotExist(err), "backing file should be unlinked")
}

func TestUnmapTwice(t *testing.T) {
	r, err := CreateMemfd("halcyon-test", 4096)
	require.NoError(t, err)
	require.NoError(t, r.Unmap())
	require.NoError(t, r.Unmap())
}

func TestCanCreateOnDevShm(t *testing.T) {
	// Paths outside /dev/shm always pass.
	assert.True(t, CanCreateOnDevShm(math.MaxUint64, "somewhere_else"))

	stat, err := disk.Usage("/dev/shm")
	require.NoError(t, err)
	assert.True(t, CanCreateOnDevShm(stat.Free, "/dev/shm/xxx"))
	assert.False(t, CanCreateOnDevShm(stat.Free+1, "/dev/shm/yyy"))
}
