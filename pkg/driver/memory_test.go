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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*Context, *Device) {
	t.Helper()
	drv := openTestDriver(t)
	ctx, err := drv.NewContext()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Destroy() })
	return ctx, drv.Devices()[0]
}

func TestAllocDeviceAndFree(t *testing.T) {
	ctx, dev := newTestContext(t)

	mem, err := ctx.AllocDevice(dev, 4096, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), mem.Size())
	assert.Equal(t, dev, mem.Device())

	_, err = mem.Bytes()
	assert.ErrorIs(t, err, ErrNotAddressable)

	require.NoError(t, ctx.Free(mem))
	err = ctx.Free(mem)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestAllocDeviceAlignment(t *testing.T) {
	ctx, dev := newTestContext(t)

	m, err := ctx.AllocDevice(dev, 100, 4096)
	require.NoError(t, err)
	assert.Zero(t, m.offset%4096)

	m2, err := ctx.AllocDevice(dev, 100, 4096)
	require.NoError(t, err)
	assert.Zero(t, m2.offset%4096)
	assert.NotEqual(t, m.offset, m2.offset)

	_, err = ctx.AllocDevice(dev, 100, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ctx.AllocDevice(dev, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAllocDeviceExhaustion(t *testing.T) {
	ctx, dev := newTestContext(t)

	// Arena is 1 MiB in the test config.
	_, err := ctx.AllocDevice(dev, 1<<20, 1)
	require.NoError(t, err)
	_, err = ctx.AllocDevice(dev, 1, 1)
	assert.ErrorIs(t, err, ErrOutOfDeviceMemory)
}

func TestFreeListCoalescing(t *testing.T) {
	ctx, dev := newTestContext(t)

	a, err := ctx.AllocDevice(dev, 512<<10, 1)
	require.NoError(t, err)
	b, err := ctx.AllocDevice(dev, 512<<10, 1)
	require.NoError(t, err)

	// Freeing both must make the full arena allocatable again.
	require.NoError(t, ctx.Free(a))
	require.NoError(t, ctx.Free(b))
	c, err := ctx.AllocDevice(dev, 1<<20, 1)
	require.NoError(t, err)
	require.NoError(t, ctx.Free(c))
}

func TestAllocHost(t *testing.T) {
	ctx, _ := newTestContext(t)

	mem, err := ctx.AllocHost(256, 0)
	require.NoError(t, err)
	buf, err := mem.Bytes()
	require.NoError(t, err)
	require.Len(t, buf, 256)

	buf[0] = 0xFF
	again, _ := mem.Bytes()
	assert.Equal(t, byte(0xFF), again[0])

	require.NoError(t, ctx.Free(mem))
}

func TestFreeForeignMemory(t *testing.T) {
	ctx, _ := newTestContext(t)
	other, dev := newTestContext(t)

	mem, err := other.AllocDevice(dev, 64, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Free(mem), ErrInvalidHandle)
	require.NoError(t, other.Free(mem))
}

func TestReservedPhysicalLifecycle(t *testing.T) {
	ctx, dev := newTestContext(t)

	phys, err := ctx.ReservePhysical(dev, 8192)
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), phys.Size())

	mem, err := ctx.MapPhysical(phys)
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), mem.Size())

	_, err = ctx.MapPhysical(phys)
	assert.ErrorIs(t, err, ErrAlreadyMapped)

	// A mapped reservation cannot be freed and mapped memory cannot be
	// freed like an ordinary allocation.
	assert.ErrorIs(t, ctx.FreePhysical(phys), ErrAlreadyMapped)
	assert.ErrorIs(t, ctx.Free(mem), ErrInvalidHandle)

	require.NoError(t, ctx.UnmapPhysical(mem))
	assert.ErrorIs(t, ctx.UnmapPhysical(mem), ErrNotMapped)
	require.NoError(t, ctx.FreePhysical(phys))
	assert.ErrorIs(t, ctx.FreePhysical(phys), ErrInvalidHandle)
}

func TestContextDestroyReclaimsLeaks(t *testing.T) {
	drv := openTestDriver(t)
	ctx, err := drv.NewContext()
	require.NoError(t, err)
	dev := drv.Devices()[0]

	_, err = ctx.AllocDevice(dev, 4096, 1)
	require.NoError(t, err)
	_, err = ctx.AllocHost(4096, 1)
	require.NoError(t, err)

	require.NoError(t, ctx.Destroy())
	require.NoError(t, ctx.Destroy(), "destroy is idempotent")

	_, err = ctx.AllocHost(1, 0)
	assert.ErrorIs(t, err, ErrContextDestroyed)
}
