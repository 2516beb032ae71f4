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

func newTestQueue(t *testing.T, opts QueueOptions) (*Context, *Device, *CommandQueue) {
	t.Helper()
	ctx, dev := newTestContext(t)
	q, err := ctx.NewCommandQueue(dev, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Destroy() })
	return ctx, dev, q
}

func TestCopyRoundTrip(t *testing.T) {
	ctx, dev, q := newTestQueue(t, QueueOptions{})

	const size = 4096
	src, err := ctx.AllocHost(size, 0)
	require.NoError(t, err)
	devMem, err := ctx.AllocDevice(dev, size, 4096)
	require.NoError(t, err)
	dst, err := ctx.AllocHost(size, 0)
	require.NoError(t, err)

	in, _ := src.Bytes()
	for i := range in {
		in[i] = byte(i % 251)
	}

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)
	require.NoError(t, list.AppendCopy(devMem, src, size))
	require.NoError(t, list.AppendCopy(dst, devMem, size))
	require.NoError(t, list.Close())

	require.NoError(t, q.Execute(context.Background(), list))
	require.NoError(t, q.Synchronize(context.Background()))

	out, _ := dst.Bytes()
	assert.Equal(t, in, out)
}

func TestExecuteRejectsOpenList(t *testing.T) {
	ctx, dev, q := newTestQueue(t, QueueOptions{})

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)

	err = q.Execute(context.Background(), list)
	assert.ErrorIs(t, err, ErrListNotClosed)

	err = q.Execute(context.Background())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAppendCopyValidation(t *testing.T) {
	ctx, dev := newTestContext(t)

	a, err := ctx.AllocHost(16, 0)
	require.NoError(t, err)
	b, err := ctx.AllocHost(32, 0)
	require.NoError(t, err)

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)

	assert.ErrorIs(t, list.AppendCopy(a, b, 0), ErrInvalidArgument)
	assert.ErrorIs(t, list.AppendCopy(a, b, 17), ErrInvalidArgument)
	assert.ErrorIs(t, list.AppendCopy(nil, b, 8), ErrInvalidHandle)

	require.NoError(t, list.Close())
	assert.ErrorIs(t, list.AppendCopy(a, b, 8), ErrListClosed)

	require.NoError(t, list.Reset())
	require.NoError(t, list.AppendCopy(a, b, 8))

	require.NoError(t, list.Destroy())
	assert.ErrorIs(t, list.Close(), ErrInvalidHandle)
}

func TestSynchronousMode(t *testing.T) {
	ctx, dev, q := newTestQueue(t, QueueOptions{Mode: ModeSynchronous})

	src, err := ctx.AllocHost(64, 0)
	require.NoError(t, err)
	dst, err := ctx.AllocHost(64, 0)
	require.NoError(t, err)
	in, _ := src.Bytes()
	in[0] = 0xAB

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)
	require.NoError(t, list.AppendCopy(dst, src, 64))
	require.NoError(t, list.Close())

	// In synchronous mode Execute returns only after the batch retired, so
	// the copy is visible with no Synchronize.
	require.NoError(t, q.Execute(context.Background(), list))
	out, _ := dst.Bytes()
	assert.Equal(t, byte(0xAB), out[0])
}

func TestBatchOrdering(t *testing.T) {
	ctx, dev, q := newTestQueue(t, QueueOptions{})

	dst, err := ctx.AllocHost(1, 0)
	require.NoError(t, err)

	// Each batch overwrites dst[0]; submission order decides the winner.
	const rounds = 32
	var last *Memory
	for i := 0; i < rounds; i++ {
		src, err := ctx.AllocHost(1, 0)
		require.NoError(t, err)
		b, _ := src.Bytes()
		b[0] = byte(i)
		last = src

		list, err := ctx.NewCommandList(dev)
		require.NoError(t, err)
		require.NoError(t, list.AppendCopy(dst, src, 1))
		require.NoError(t, list.Close())
		require.NoError(t, q.Execute(context.Background(), list))
	}

	require.NoError(t, q.Synchronize(context.Background()))
	want, _ := last.Bytes()
	got, _ := dst.Bytes()
	assert.Equal(t, want[0], got[0])
}

func TestExecuteAfterDestroy(t *testing.T) {
	ctx, dev, q := newTestQueue(t, QueueOptions{})

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)
	require.NoError(t, list.Close())

	require.NoError(t, q.Destroy())
	require.NoError(t, q.Destroy(), "destroy is idempotent")

	err = q.Execute(context.Background(), list)
	assert.ErrorIs(t, err, ErrQueueDestroyed)
}
