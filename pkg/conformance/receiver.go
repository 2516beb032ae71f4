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

package conformance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyon-compute/halcyon/pkg/driver"
	"github.com/halcyon-compute/halcyon/pkg/harness"
	"github.com/halcyon-compute/halcyon/pkg/ipcx"
)

// Receiver runs the importing side: it obtains the handle from the exchange
// socket, opens it on the lowest-UUID device, copies the shared memory into
// a zeroed host buffer and validates the pattern.
func Receiver(cfg Config) error {
	log := cfg.logger().With(zap.String("role", "receiver"))

	drv, err := driver.Open(driver.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = drv.Close() }()

	devices := drv.Devices()
	if len(devices) < minDevices {
		return fmt.Errorf("%w (have %d)", ErrNotEnoughDevices, len(devices))
	}

	dctx, err := drv.NewContext()
	if err != nil {
		return err
	}
	defer func() { _ = dctx.Destroy() }()

	// Opposite end of the UUID order from the sender.
	dev := harness.PickDevice(devices, harness.LowestUUID)
	log.Debug("selected device",
		zap.Int("ordinal", dev.Properties().Ordinal),
		zap.String("uuid", dev.UUID().String()))

	list, err := dctx.NewCommandList(dev)
	if err != nil {
		return err
	}
	queue, err := dctx.NewCommandQueue(dev, driver.QueueOptions{Mode: driver.ModeDefault, Priority: driver.PriorityNormal})
	if err != nil {
		return err
	}
	defer func() { _ = queue.Destroy() }()

	conn, err := ipcx.Dial(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	handle, err := conn.RecvHandle()
	if err != nil {
		return err
	}

	imported, err := dctx.OpenIPC(dev, handle)
	if err != nil {
		return err
	}

	buffer, err := dctx.AllocHost(handle.Size, 1)
	if err != nil {
		return err
	}
	hostBytes, err := buffer.Bytes()
	if err != nil {
		return err
	}
	for i := range hostBytes {
		hostBytes[i] = 0
	}

	if err := list.AppendCopy(buffer, imported, handle.Size); err != nil {
		return err
	}
	if err := list.Close(); err != nil {
		return err
	}
	ctx := context.Background()
	if err := queue.Execute(ctx, list); err != nil {
		return err
	}
	if err := queue.Synchronize(ctx); err != nil {
		return err
	}

	if err := harness.ValidateDataPattern(hostBytes, pattern); err != nil {
		return err
	}

	if err := dctx.CloseIPC(imported); err != nil {
		return err
	}
	if err := dctx.Free(buffer); err != nil {
		return err
	}
	log.Debug("receiver verified pattern", zap.Uint64("bytes", handle.Size))
	return nil
}
