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
	"os"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Properties describes a device. UUID is stable across processes on the same
// machine, which is what lets two cooperating processes agree on a device
// without relying on enumeration order.
type Properties struct {
	Name        string
	UUID        uuid.UUID
	Ordinal     int
	TotalMemory uint64
}

// Device is a handle to one simulated compute device. Handles are only valid
// while the owning Driver is open.
type Device struct {
	drv   *Driver
	props Properties
}

// Properties returns the device properties.
func (d *Device) Properties() Properties {
	return d.props
}

// UUID is shorthand for Properties().UUID.
func (d *Device) UUID() uuid.UUID {
	return d.props.UUID
}

// deviceUUID derives a deterministic per-device UUID from the machine
// identity and the device ordinal, so every process enumerating this machine
// sees the same UUID for the same device.
func deviceUUID(ordinal int) uuid.UUID {
	id, err := host.HostID()
	if err != nil || id == "" {
		id, _ = os.Hostname()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("halcyon/%s/device/%d", id, ordinal)))
}

func newDevice(drv *Driver, ordinal int, totalMem uint64) *Device {
	return &Device{
		drv: drv,
		props: Properties{
			Name:        fmt.Sprintf("halcyon device %d", ordinal),
			UUID:        deviceUUID(ordinal),
			Ordinal:     ordinal,
			TotalMemory: totalMem,
		},
	}
}
