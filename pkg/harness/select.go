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
	"bytes"

	"github.com/halcyon-compute/halcyon/pkg/driver"
)

// Selection names which of two devices to pick by UUID order.
type Selection int

const (
	// HighestUUID selects the device whose UUID compares greater.
	HighestUUID Selection = iota
	// LowestUUID selects the device whose UUID compares smaller.
	LowestUUID
)

// PickDevice disambiguates between the first two enumerated devices by
// comparing their UUID bytes. Device enumeration order is unspecified, so
// two cooperating processes that pick opposite ends of the UUID order are
// guaranteed distinct devices without any coordination. When both UUIDs are
// equal the first device is returned.
func PickDevice(devices []*driver.Device, sel Selection) *driver.Device {
	if len(devices) == 0 {
		return nil
	}
	if len(devices) == 1 {
		return devices[0]
	}
	d0, d1 := devices[0], devices[1]
	u0, u1 := d0.UUID(), d1.UUID()
	cmp := bytes.Compare(u0[:], u1[:])
	if cmp == 0 {
		return d0
	}
	switch sel {
	case HighestUUID:
		if cmp < 0 {
			return d1
		}
		return d0
	default:
		if cmp < 0 {
			return d0
		}
		return d1
	}
}
