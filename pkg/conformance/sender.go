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

// Sender runs the exporting side: it prepares the patterned device
// allocation on the highest-UUID device, serves the exported handle on the
// exchange socket, spawns the receiver and holds the allocation alive until
// the receiver exits.
func Sender(cfg Config) error {
	log := cfg.logger().With(zap.String("role", "sender"))

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

	// Enumeration order is unspecified; both roles disambiguate by UUID
	// so they are guaranteed to land on different devices.
	dev := harness.PickDevice(devices, harness.HighestUUID)
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

	var (
		mem  *driver.Memory
		phys *driver.PhysicalMem
	)
	if cfg.Reserved {
		phys, err = dctx.ReservePhysical(dev, cfg.Size)
		if err != nil {
			return err
		}
		mem, err = dctx.MapPhysical(phys)
		if err != nil {
			return err
		}
	} else {
		mem, err = dctx.AllocDevice(dev, cfg.Size, 1)
		if err != nil {
			return err
		}
	}

	buffer, err := dctx.AllocHost(cfg.Size, 1)
	if err != nil {
		return err
	}
	hostBytes, err := buffer.Bytes()
	if err != nil {
		return err
	}
	harness.WriteDataPattern(hostBytes, pattern)

	if err := list.AppendCopy(mem, buffer, cfg.Size); err != nil {
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

	handle, err := dctx.ExportIPC(mem)
	if err != nil {
		return err
	}
	defer func() { _ = driver.CloseHandle(handle) }()

	ln, err := ipcx.Listen(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()

	recv := harness.SpawnSelf(RoleReceiver, cfg.env()...)
	if err := recv.Start(); err != nil {
		return fmt.Errorf("conformance: spawn receiver: %w", err)
	}

	conn, err := ln.Accept()
	if err != nil {
		_ = recv.Process.Kill()
		_, _ = recv.Process.Wait()
		return err
	}
	sendErr := conn.SendHandle(*handle)
	_ = conn.Close()
	if sendErr != nil {
		_ = recv.Process.Kill()
		_, _ = recv.Process.Wait()
		return sendErr
	}

	// Free device memory only once the receiver is done with it.
	waitErr := recv.Wait()
	if code := harness.ExitCode(waitErr); code != 0 {
		return fmt.Errorf("conformance: receiver failed memory verification (exit %d)", code)
	}

	if err := dctx.Free(buffer); err != nil {
		return err
	}
	if cfg.Reserved {
		if err := dctx.UnmapPhysical(mem); err != nil {
			return err
		}
		if err := dctx.FreePhysical(phys); err != nil {
			return err
		}
	} else {
		if err := dctx.Free(mem); err != nil {
			return err
		}
	}
	log.Debug("sender done")
	return nil
}
