// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package alloc

import (
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumented wraps an Allocator and records
// Prometheus metrics for every operation.
type Instrumented struct {
	Allocator Allocator

	ops      *prometheus.CounterVec
	failures *prometheus.CounterVec
	bytes    prometheus.Gauge
	blocks   prometheus.Gauge
}

// NewInstrumented returns an Instrumented wrapping a,
// registering its collectors with reg (which may be nil).
// Every series carries an "allocator" label set to name,
// so several allocators can share a registry.
func NewInstrumented(a Allocator, reg prometheus.Registerer, name string) *Instrumented {
	f := promauto.With(reg)
	labels := prometheus.Labels{"allocator": name}
	return &Instrumented{
		Allocator: a,
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rawvec",
			Subsystem:   "alloc",
			Name:        "operations_total",
			Help:        "Allocator calls by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rawvec",
			Subsystem:   "alloc",
			Name:        "failures_total",
			Help:        "Allocator calls that returned an error, by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		bytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rawvec",
			Subsystem:   "alloc",
			Name:        "bytes_in_use",
			Help:        "Bytes handed out and not yet released.",
			ConstLabels: labels,
		}),
		blocks: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rawvec",
			Subsystem:   "alloc",
			Name:        "blocks_in_use",
			Help:        "Blocks handed out and not yet released.",
			ConstLabels: labels,
		}),
	}
}

func (m *Instrumented) inner() Allocator {
	if m.Allocator == nil {
		return Global
	}
	return m.Allocator
}

// Request implements Allocator.Request
func (m *Instrumented) Request(l Layout) (unsafe.Pointer, error) {
	m.ops.WithLabelValues("request").Inc()
	p, err := m.inner().Request(l)
	if err != nil {
		m.failures.WithLabelValues("request").Inc()
		return nil, err
	}
	m.bytes.Add(float64(l.Size))
	m.blocks.Inc()
	return p, nil
}

// Resize implements Allocator.Resize
func (m *Instrumented) Resize(p unsafe.Pointer, from, to Layout) (unsafe.Pointer, error) {
	m.ops.WithLabelValues("resize").Inc()
	q, err := m.inner().Resize(p, from, to)
	if err != nil {
		m.failures.WithLabelValues("resize").Inc()
		return nil, err
	}
	m.bytes.Add(float64(to.Size) - float64(from.Size))
	return q, nil
}

// Release implements Allocator.Release
func (m *Instrumented) Release(p unsafe.Pointer, l Layout) {
	m.ops.WithLabelValues("release").Inc()
	m.inner().Release(p, l)
	m.bytes.Sub(float64(l.Size))
	m.blocks.Dec()
}
