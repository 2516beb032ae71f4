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

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds the runtime parameters of the simulated device inventory.
// All fields are environment tunable so conformance runs can shape the
// machine without rebuilding.
type Config struct {
	// DeviceCount is the number of devices exposed by the driver.
	DeviceCount int `envconfig:"HALCYON_DEVICES" default:"2"`
	// DeviceMemBytes is the arena size carved per context+device pair.
	DeviceMemBytes uint64 `envconfig:"HALCYON_DEVICE_MEM" default:"67108864"`
	// QueueWorkers sizes the command-queue worker pool.
	QueueWorkers int `envconfig:"HALCYON_QUEUE_WORKERS" default:"4"`
	// LogLevel sets the default driver log level.
	LogLevel string `envconfig:"HALCYON_LOG_LEVEL" default:"warn"`
}

// LoadConfig reads the driver configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("driver: load config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DeviceCount < 0 {
		return fmt.Errorf("%w: device count %d", ErrInvalidArgument, c.DeviceCount)
	}
	if c.DeviceMemBytes == 0 {
		return fmt.Errorf("%w: zero device memory", ErrInvalidArgument)
	}
	if c.QueueWorkers <= 0 {
		return fmt.Errorf("%w: queue workers %d", ErrInvalidArgument, c.QueueWorkers)
	}
	return nil
}

type options struct {
	cfg        *Config
	log        *zap.Logger
	meter      metric.Meter
	tracer     trace.Tracer
	registerer prometheus.Registerer
}

// Option customizes Open.
type Option func(*options)

// WithConfig bypasses the environment and uses the given configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger injects the driver logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMeter injects the OpenTelemetry meter used for driver instruments.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer injects the OpenTelemetry tracer used around queue execution.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithRegisterer injects the prometheus registerer for driver metrics. The
// default is a private registry so repeated Opens in one process do not
// collide.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}
