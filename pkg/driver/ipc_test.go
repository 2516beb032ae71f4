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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillDevice copies pattern bytes into device memory through a command queue.
func fillDevice(t *testing.T, ctx *Context, dev *Device, dst *Memory, data []byte) {
	t.Helper()
	src, err := ctx.AllocHost(uint64(len(data)), 0)
	require.NoError(t, err)
	buf, _ := src.Bytes()
	copy(buf, data)

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)
	require.NoError(t, list.AppendCopy(dst, src, uint64(len(data))))
	require.NoError(t, list.Close())

	q, err := ctx.NewCommandQueue(dev, QueueOptions{Mode: ModeSynchronous})
	require.NoError(t, err)
	defer q.Destroy()
	require.NoError(t, q.Execute(context.Background(), list))
	require.NoError(t, ctx.Free(src))
}

func TestExportOpenAcrossContexts(t *testing.T) {
	drv := openTestDriver(t)
	dev := drv.Devices()[0]

	exporter, err := drv.NewContext()
	require.NoError(t, err)
	importer, err := drv.NewContext()
	require.NoError(t, err)

	const size = 4096
	devMem, err := exporter.AllocDevice(dev, size, 4096)
	require.NoError(t, err)
	want := make([]byte, size)
	for i := range want {
		want[i] = byte(255 - i%256)
	}
	fillDevice(t, exporter, dev, devMem, want)

	h, err := exporter.ExportIPC(devMem)
	require.NoError(t, err)
	require.GreaterOrEqual(t, h.Fd, 0)
	assert.Equal(t, uint64(size), h.Size)

	imported, err := importer.OpenIPC(dev, *h)
	require.NoError(t, err)
	got, err := imported.Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The import is a live mapping, not a snapshot.
	fillDevice(t, exporter, dev, devMem, make([]byte, size))
	got, _ = imported.Bytes()
	assert.Equal(t, make([]byte, size), got)

	require.NoError(t, importer.CloseIPC(imported))
	assert.ErrorIs(t, importer.CloseIPC(imported), ErrInvalidHandle)
	require.NoError(t, exporter.Free(devMem))
}

func TestExportRejectsNonDeviceMemory(t *testing.T) {
	ctx, dev := newTestContext(t)

	host, err := ctx.AllocHost(64, 0)
	require.NoError(t, err)
	_, err = ctx.ExportIPC(host)
	assert.ErrorIs(t, err, ErrNotShareable)

	devMem, err := ctx.AllocDevice(dev, 64, 1)
	require.NoError(t, err)
	require.NoError(t, ctx.Free(devMem))
	_, err = ctx.ExportIPC(devMem)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestExportReservedPhysical(t *testing.T) {
	drv := openTestDriver(t)
	dev := drv.Devices()[0]

	exporter, err := drv.NewContext()
	require.NoError(t, err)
	importer, err := drv.NewContext()
	require.NoError(t, err)

	phys, err := exporter.ReservePhysical(dev, 8192)
	require.NoError(t, err)
	mapped, err := exporter.MapPhysical(phys)
	require.NoError(t, err)

	want := make([]byte, 8192)
	for i := range want {
		want[i] = byte(i * 7)
	}
	fillDevice(t, exporter, dev, mapped, want)

	h, err := exporter.ExportIPC(mapped)
	require.NoError(t, err)
	assert.Zero(t, h.Offset, "physical reservations export their own descriptor")

	imported, err := importer.OpenIPC(dev, *h)
	require.NoError(t, err)
	got, _ := imported.Bytes()
	assert.Equal(t, want, got)

	require.NoError(t, importer.CloseIPC(imported))
	require.NoError(t, exporter.UnmapPhysical(mapped))
	require.NoError(t, exporter.FreePhysical(phys))
}

func TestCloseHandle(t *testing.T) {
	ctx, dev := newTestContext(t)

	devMem, err := ctx.AllocDevice(dev, 128, 1)
	require.NoError(t, err)
	h, err := ctx.ExportIPC(devMem)
	require.NoError(t, err)

	require.NoError(t, CloseHandle(h))
	assert.Equal(t, -1, h.Fd)
	require.NoError(t, CloseHandle(h), "closing twice is a no-op")
	require.NoError(t, CloseHandle(nil))
}

func TestOpenIPCInvalidHandle(t *testing.T) {
	ctx, dev := newTestContext(t)

	_, err := ctx.OpenIPC(dev, IPCHandle{Fd: -1, Size: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
