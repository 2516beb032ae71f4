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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// metrics carries both prometheus collectors and the equivalent otel
// instruments; every event is recorded on both surfaces.
type metrics struct {
	tracer trace.Tracer

	allocations *prometheus.CounterVec
	bytesInUse  *prometheus.GaugeVec
	copies      prometheus.Counter
	batches     prometheus.Counter
	ipcExports  prometheus.Counter
	ipcOpens    prometheus.Counter

	otelAllocations metric.Int64Counter
	otelCopies      metric.Int64Counter
	otelBatches     metric.Int64Counter
}

func newMetrics(reg prometheus.Registerer, meter metric.Meter, tracer trace.Tracer) (*metrics, error) {
	m := &metrics{
		tracer: tracer,
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "halcyon_allocations_total",
			Help: "Memory allocations performed, by kind.",
		}, []string{"kind"}),
		bytesInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "halcyon_device_bytes_in_use",
			Help: "Device arena bytes currently allocated, by device ordinal.",
		}, []string{"device"}),
		copies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halcyon_copies_total",
			Help: "Memory copy operations executed by command queues.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halcyon_queue_batches_total",
			Help: "Command list batches retired by command queues.",
		}),
		ipcExports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halcyon_ipc_exports_total",
			Help: "IPC handles exported.",
		}),
		ipcOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halcyon_ipc_opens_total",
			Help: "IPC handles opened.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.allocations, m.bytesInUse, m.copies, m.batches, m.ipcExports, m.ipcOpens,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	var err error
	if m.otelAllocations, err = meter.Int64Counter("halcyon.driver.allocations",
		metric.WithDescription("Memory allocations performed.")); err != nil {
		return nil, err
	}
	if m.otelCopies, err = meter.Int64Counter("halcyon.driver.copies",
		metric.WithDescription("Memory copy operations executed.")); err != nil {
		return nil, err
	}
	if m.otelBatches, err = meter.Int64Counter("halcyon.driver.batches",
		metric.WithDescription("Command list batches retired.")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordAlloc(kind string, dev *Device, size uint64) {
	m.allocations.WithLabelValues(kind).Inc()
	attrs := []attribute.KeyValue{attribute.String("kind", kind)}
	if dev != nil {
		m.bytesInUse.WithLabelValues(strconv.Itoa(dev.props.Ordinal)).Add(float64(size))
		attrs = append(attrs, attribute.Int("device", dev.props.Ordinal))
	}
	m.otelAllocations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordFree(dev *Device, size uint64) {
	if dev != nil {
		m.bytesInUse.WithLabelValues(strconv.Itoa(dev.props.Ordinal)).Sub(float64(size))
	}
}

func (m *metrics) recordCopies(ctx context.Context, n int) {
	m.copies.Add(float64(n))
	m.otelCopies.Add(ctx, int64(n))
}

func (m *metrics) recordBatch(ctx context.Context) {
	m.batches.Inc()
	m.otelBatches.Add(ctx, 1)
}
