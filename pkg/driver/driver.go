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

// Package driver implements a shared-memory backed, multi-device compute
// runtime: device enumeration, contexts, device and host memory, command
// lists and queues, and inter-process memory sharing through exportable
// descriptor handles. Device memory lives in memfd arenas, so an exported
// handle is an ordinary file descriptor that another process can map after
// receiving it over a unix socket.
package driver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/halcyon-compute/halcyon/internal/logging"
)

const instrumentationName = "github.com/halcyon-compute/halcyon/pkg/driver"

// Driver is the root object of the runtime. One process may hold several
// independent Drivers; each sees the same simulated device inventory.
type Driver struct {
	cfg Config
	log *zap.Logger

	// devices is keyed by UUID string. Enumeration iterates the map, so
	// the order reported by Devices is deliberately unspecified; callers
	// that need a stable pick must compare UUIDs.
	devices map[string]*Device

	metrics *metrics

	mu       sync.Mutex
	contexts map[*Context]struct{}
	closed   bool
}

// Open initializes the driver. Configuration comes from the environment
// unless WithConfig is given.
func Open(opts ...Option) (*Driver, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Config{}
	if o.cfg != nil {
		cfg = *o.cfg
	} else {
		loaded, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := o.log
	if log == nil {
		log = logging.NewDefault(cfg.LogLevel)
	}
	meter := o.meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	registerer := o.registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	m, err := newMetrics(registerer, meter, tracer)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:      cfg,
		log:      log,
		devices:  make(map[string]*Device, cfg.DeviceCount),
		metrics:  m,
		contexts: make(map[*Context]struct{}),
	}
	for i := 0; i < cfg.DeviceCount; i++ {
		dev := newDevice(d, i, cfg.DeviceMemBytes)
		d.devices[dev.props.UUID.String()] = dev
	}
	log.Debug("driver open",
		zap.Int("devices", cfg.DeviceCount),
		zap.Uint64("device_mem", cfg.DeviceMemBytes))
	return d, nil
}

// Devices returns handles to all devices. The slice order is unspecified.
func (d *Driver) Devices() []*Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Device, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, dev)
	}
	return out
}

// DeviceCount returns the number of devices without allocating.
func (d *Driver) DeviceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.devices)
}

// Close destroys all live contexts and shuts the driver down. Close is
// idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	ctxs := make([]*Context, 0, len(d.contexts))
	for c := range d.contexts {
		ctxs = append(ctxs, c)
	}
	d.contexts = nil
	d.mu.Unlock()

	var first error
	for _, c := range ctxs {
		if err := c.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	d.log.Debug("driver closed")
	return first
}

func (d *Driver) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return nil
}

func (d *Driver) trackContext(c *Context) {
	d.mu.Lock()
	if d.contexts != nil {
		d.contexts[c] = struct{}{}
	}
	d.mu.Unlock()
}

func (d *Driver) forgetContext(c *Context) {
	d.mu.Lock()
	if d.contexts != nil {
		delete(d.contexts, c)
	}
	d.mu.Unlock()
}
