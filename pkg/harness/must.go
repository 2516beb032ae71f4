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

package harness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halcyon-compute/halcyon/pkg/driver"
)

// Must-succeed lifecycle wrappers, so tests read as the sequence of driver
// operations they exercise instead of error plumbing.

// OpenDriver opens the driver and closes it when the test ends.
func OpenDriver(tb testing.TB, opts ...driver.Option) *driver.Driver {
	tb.Helper()
	drv, err := driver.Open(opts...)
	require.NoError(tb, err, "open driver")
	tb.Cleanup(func() { _ = drv.Close() })
	return drv
}

// NewContext creates a context destroyed at test end.
func NewContext(tb testing.TB, drv *driver.Driver) *driver.Context {
	tb.Helper()
	ctx, err := drv.NewContext()
	require.NoError(tb, err, "create context")
	tb.Cleanup(func() { _ = ctx.Destroy() })
	return ctx
}

// NewCommandList creates an open command list.
func NewCommandList(tb testing.TB, ctx *driver.Context, dev *driver.Device) *driver.CommandList {
	tb.Helper()
	list, err := ctx.NewCommandList(dev)
	require.NoError(tb, err, "create command list")
	return list
}

// NewCommandQueue creates a command queue destroyed at test end.
func NewCommandQueue(tb testing.TB, ctx *driver.Context, dev *driver.Device, opts driver.QueueOptions) *driver.CommandQueue {
	tb.Helper()
	q, err := ctx.NewCommandQueue(dev, opts)
	require.NoError(tb, err, "create command queue")
	tb.Cleanup(func() { _ = q.Destroy() })
	return q
}

// AllocDevice allocates device memory.
func AllocDevice(tb testing.TB, ctx *driver.Context, dev *driver.Device, size uint64) *driver.Memory {
	tb.Helper()
	m, err := ctx.AllocDevice(dev, size, 1)
	require.NoError(tb, err, "alloc device memory")
	return m
}

// AllocHost allocates host memory.
func AllocHost(tb testing.TB, ctx *driver.Context, size uint64) *driver.Memory {
	tb.Helper()
	m, err := ctx.AllocHost(size, 1)
	require.NoError(tb, err, "alloc host memory")
	return m
}

// RequireDevices skips the test unless at least n devices are present.
func RequireDevices(tb testing.TB, drv *driver.Driver, n int) []*driver.Device {
	tb.Helper()
	devices := drv.Devices()
	if len(devices) < n {
		tb.Skipf("need %d devices, have %d", n, len(devices))
	}
	return devices
}
