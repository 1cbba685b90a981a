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
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/vec"
	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Workload is an allocator chain and a
// container built from a Config.
type Workload struct {
	cfg     *Config
	logger  log.Logger
	tracker *alloc.Tracker
	limit   *alloc.Limited
	vec     *vec.Vec[uint64]
	rand    *rand.Rand
	elapsed time.Duration
	failed  int
}

// NewWorkload builds the allocator chain for cfg:
// the base allocator, a byte limit, Prometheus
// instrumentation registered with reg, and a Tracker
// on top that checks every release.
func NewWorkload(cfg *Config, logger log.Logger, reg prometheus.Registerer) *Workload {
	var base alloc.Allocator = alloc.Heap{}
	if cfg.Allocator == "pages" {
		base = new(alloc.Pages)
	}
	lim := alloc.NewLimited(base, uintptr(cfg.Limit.Bytes()))
	inst := alloc.NewInstrumented(lim, reg, cfg.Allocator)
	tr := alloc.NewTracker(inst, logger)
	tr.Poison = cfg.Poison
	return &Workload{
		cfg:     cfg,
		logger:  logger,
		tracker: tr,
		limit:   lim,
		vec:     vec.New[uint64](vec.WithAllocator(tr)),
		rand:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Vec returns the workload's container.
func (w *Workload) Vec() *vec.Vec[uint64] { return w.vec }

// opFailures are the panics an op may
// raise without the workload being broken
var opFailures = []error{
	alloc.ErrOutOfMemory,
	alloc.ErrCapacityOverflow,
	vec.ErrOutOfRange,
}

// guard converts a panic marked with one of
// opFailures into an error; anything else
// (runtime errors, misuse of the container)
// keeps panicking
func guard(fn func()) (err error) {
	defer func() {
		e := recover()
		if e == nil {
			return
		}
		if perr, ok := e.(error); ok {
			if _, isRuntime := perr.(runtime.Error); !isRuntime && errors.IsAny(perr, opFailures...) {
				err = perr
				return
			}
		}
		panic(e)
	}()
	fn()
	return nil
}

// Run executes every op in order. Failed ops (out of
// memory, out of range) are logged and counted; they leave
// the container as it was before the op. Run returns the
// first failure if stop is set.
func (w *Workload) Run(stop bool) error {
	start := time.Now()
	defer func() { w.elapsed += time.Since(start) }()
	for i := range w.cfg.Ops {
		op := &w.cfg.Ops[i]
		err := guard(func() { w.apply(op) })
		if err == nil {
			continue
		}
		w.failed++
		level.Warn(w.logger).Log("msg", "op failed", "index", i, "op", op.Op, "len", w.vec.Len(), "err", err)
		if stop {
			return errors.Wrapf(err, "op %d (%s)", i, op.Op)
		}
	}
	level.Debug(w.logger).Log("msg", "workload done", "ops", len(w.cfg.Ops), "failed", w.failed, "len", w.vec.Len(), "cap", w.vec.Cap())
	return nil
}

func (w *Workload) apply(op *Op) {
	v := w.vec
	switch op.Op {
	case "push":
		v.Reserve(op.Count)
		for i := 0; i < op.Count; i++ {
			v.Push(w.fill(op, i))
		}
	case "pop":
		for i := 0; i < op.Count; i++ {
			if _, ok := v.Pop(); !ok {
				break
			}
		}
	case "insert":
		v.Insert(op.Index, op.Value)
	case "remove":
		v.Remove(op.Index)
	case "set":
		v.Set(op.Index, op.Value)
	case "reserve":
		v.Reserve(op.Count)
	case "shrink":
		v.ShrinkToFit()
	case "truncate":
		v.Truncate(op.Count)
	case "clear":
		v.Clear()
	default:
		panic(errors.AssertionFailedf("unvalidated op %q", op.Op))
	}
}

func (w *Workload) fill(op *Op, i int) uint64 {
	switch op.Fill {
	case "const":
		return op.Value
	case "random":
		return w.rand.Uint64()
	default:
		return op.Value + uint64(i)
	}
}

// Close drops the container and reports any
// allocator blocks that outlived it.
func (w *Workload) Close() error {
	if !w.vec.Dropped() {
		w.vec.Drop()
	}
	if err := w.tracker.Leaks(); err != nil {
		level.Error(w.logger).Log("msg", "leaked blocks", "err", err)
		return err
	}
	return nil
}
