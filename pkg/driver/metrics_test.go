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

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatherValue reads one sample from reg, matching name and, when given, a
// single label pair.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			if len(labels) == 2 && !hasLabel(m, labels[0], labels[1]) {
				continue
			}
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestMetricsTrackAllocations(t *testing.T) {
	reg := prometheus.NewRegistry()
	drv, err := Open(WithConfig(testConfig()), WithRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })

	ctx, err := drv.NewContext()
	require.NoError(t, err)
	dev := drv.Devices()[0]

	devMem, err := ctx.AllocDevice(dev, 4096, 1)
	require.NoError(t, err)
	_, err = ctx.AllocHost(64, 0)
	require.NoError(t, err)

	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_allocations_total", "kind", "device"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_allocations_total", "kind", "host"))
	assert.Equal(t, 4096.0, gatherValue(t, reg, "halcyon_device_bytes_in_use", "device", "0"))

	require.NoError(t, ctx.Free(devMem))
	assert.Equal(t, 0.0, gatherValue(t, reg, "halcyon_device_bytes_in_use", "device", "0"))
}

func TestMetricsTrackQueueAndIPC(t *testing.T) {
	reg := prometheus.NewRegistry()
	drv, err := Open(WithConfig(testConfig()), WithRegisterer(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })

	ctx, err := drv.NewContext()
	require.NoError(t, err)
	dev := drv.Devices()[0]

	src, err := ctx.AllocHost(32, 0)
	require.NoError(t, err)
	devMem, err := ctx.AllocDevice(dev, 32, 1)
	require.NoError(t, err)

	list, err := ctx.NewCommandList(dev)
	require.NoError(t, err)
	require.NoError(t, list.AppendCopy(devMem, src, 32))
	require.NoError(t, list.Close())

	q, err := ctx.NewCommandQueue(dev, QueueOptions{Mode: ModeSynchronous})
	require.NoError(t, err)
	require.NoError(t, q.Execute(context.Background(), list))

	h, err := ctx.ExportIPC(devMem)
	require.NoError(t, err)
	imported, err := ctx.OpenIPC(dev, *h)
	require.NoError(t, err)

	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_copies_total"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_queue_batches_total"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_ipc_exports_total"))
	assert.Equal(t, 1.0, gatherValue(t, reg, "halcyon_ipc_opens_total"))

	require.NoError(t, ctx.CloseIPC(imported))
	require.NoError(t, q.Destroy())
}
