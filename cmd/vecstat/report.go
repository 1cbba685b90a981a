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

package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/heap"
	"github.com/SnellerInc/rawvec/vec"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Report summarizes a finished workload.
type Report struct {
	ID        uuid.UUID
	Allocator string
	Ops       int
	Failed    int
	Elapsed   time.Duration
	Len, Cap  int
	ElemBytes int
	Stats     alloc.TrackerStats
	Limit     uint64
	Top       []uint64
	// Metrics holds the allocator series
	// keyed by name and op label.
	Metrics map[string]float64
}

// Report builds a Report of w's current state.
// Metrics are gathered from g, which may be nil.
func (w *Workload) Report(g prometheus.Gatherer) (*Report, error) {
	r := &Report{
		ID:        uuid.New(),
		Allocator: w.cfg.Allocator,
		Ops:       len(w.cfg.Ops),
		Failed:    w.failed,
		Elapsed:   w.elapsed,
		Len:       w.vec.Len(),
		Cap:       w.vec.Cap(),
		ElemBytes: 8,
		Stats:     w.tracker.Stats(),
		Limit:     w.cfg.Limit.Bytes(),
		Top:       TopN(w.vec, w.cfg.Top),
	}
	if g != nil {
		m, err := gatherMetrics(g)
		if err != nil {
			return nil, err
		}
		r.Metrics = m
	}
	return r, nil
}

func less(x, y uint64) bool { return x < y }

// TopN returns the n largest elements of v
// in descending order.
func TopN(v *vec.Vec[uint64], n int) []uint64 {
	if n <= 0 {
		return nil
	}
	h := vec.WithCapacity[uint64](min(n, v.Len()))
	defer h.Drop()
	for x := range v.Values() {
		if h.Len() < n {
			heap.Push(h, x, less)
			continue
		}
		if top := h.Index(0); x > top {
			h.Set(0, x)
			heap.Fix(h, 0, less)
		}
	}
	out := make([]uint64, 0, h.Len())
	for {
		x, ok := heap.Pop(h, less)
		if !ok {
			break
		}
		out = append(out, x)
	}
	slices.Reverse(out)
	return out
}

func commaU(x uint64) string {
	if x > math.MaxInt64 {
		return strconv.FormatUint(x, 10)
	}
	return humanize.Comma(int64(x))
}

func metricKey(name string, m *dto.Metric) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "op" {
			return name + "{op=" + lp.GetValue() + "}"
		}
	}
	return name
}

func gatherMetrics(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "rawvec_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := metricKey(mf.GetName(), m)
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] += m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

// Print writes r in a human-readable form.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "run %s (%s allocator, limit %s)\n", r.ID, r.Allocator, humanize.IBytes(r.Limit))
	fmt.Fprintf(w, "  ops:       %s (%d failed) in %s\n", humanize.Comma(int64(r.Ops)), r.Failed, r.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "  elements:  %s of %s capacity (%s)\n",
		humanize.Comma(int64(r.Len)), humanize.Comma(int64(r.Cap)), humanize.IBytes(uint64(r.Cap*r.ElemBytes)))
	fmt.Fprintf(w, "  blocks:    %d live, %d requested, %d released\n", r.Stats.Live, r.Stats.Requests, r.Stats.Releases)
	fmt.Fprintf(w, "  bytes:     %s in use, %s peak\n", humanize.IBytes(uint64(r.Stats.InUse)), humanize.IBytes(uint64(r.Stats.Peak)))
	if len(r.Top) > 0 {
		strs := make([]string, len(r.Top))
		for i, x := range r.Top {
			strs[i] = commaU(x)
		}
		fmt.Fprintf(w, "  top %d:    %s\n", len(r.Top), strings.Join(strs, " "))
	}
	if len(r.Metrics) > 0 {
		keys := make([]string, 0, len(r.Metrics))
		for k := range r.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "  metrics:")
		for _, k := range keys {
			fmt.Fprintf(w, "    %s %g\n", k, r.Metrics[k])
		}
	}
}
