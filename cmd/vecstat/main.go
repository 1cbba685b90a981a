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

// Command vecstat runs container workloads against
// the rawvec allocators and reports what they did.
//
//	vecstat run workload.yaml
//	vecstat snapshot -o out.rvec workload.yaml
//	vecstat verify out.rvec
//
// Workload fields may be overridden with
// VECSTAT_ALLOCATOR, VECSTAT_LIMIT, VECSTAT_TOP,
// VECSTAT_SEED, and VECSTAT_POISON.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/SnellerInc/rawvec/compr"
	"github.com/SnellerInc/rawvec/vec"
	"github.com/SnellerInc/rawvec/vecio"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRoot(os.Stdout, os.Stderr, os.Getenv).Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	stdout, stderr io.Writer
	getenv         func(string) string
	logLevel       string
	logger         log.Logger

	allocator string
	limit     string
	top       int
	stop      bool
	metrics   bool
}

func newLogger(w io.Writer, lvl string) (log.Logger, error) {
	var opt level.Option
	switch strings.ToLower(lvl) {
	case "debug":
		opt = level.AllowDebug()
	case "info", "":
		opt = level.AllowInfo()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		return nil, errors.Newf("unknown log level %q", lvl)
	}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, opt)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

func newRoot(stdout, stderr io.Writer, getenv func(string) string) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, getenv: getenv}
	root := &cobra.Command{
		Use:           "vecstat",
		Short:         "Run and inspect rawvec container workloads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl := c.logLevel
			if lvl == "" {
				lvl = getenv(envPrefix + "LOG_LEVEL")
			}
			logger, err := newLogger(stderr, lvl)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.AddCommand(c.runCmd(), c.snapshotCmd(), c.verifyCmd())
	return root
}

func (c *cli) workloadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.allocator, "allocator", "", "allocator (heap or pages); overrides the workload")
	f.StringVar(&c.limit, "limit", "", "byte limit (e.g. 256MB); overrides the workload")
	f.IntVar(&c.top, "top", 0, "number of largest values to report")
	f.BoolVar(&c.stop, "stop", false, "stop at the first failed op")
	f.BoolVar(&c.metrics, "metrics", false, "include allocator metrics in the report")
}

// load reads a workload and layers the
// environment and then flags over it
func (c *cli) load(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(c.getenv); err != nil {
		return nil, err
	}
	if c.allocator != "" {
		cfg.Allocator = c.allocator
	}
	if c.limit != "" {
		if err := cfg.Limit.UnmarshalText([]byte(c.limit)); err != nil {
			return nil, errors.Wrap(err, "--limit")
		}
	}
	if c.top != 0 {
		cfg.Top = c.top
	}
	return cfg, cfg.Validate()
}

// execute runs the workload at path and calls
// done with it before it is closed
func (c *cli) execute(path string, done func(w *Workload) error) error {
	cfg, err := c.load(path)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	w := NewWorkload(cfg, c.logger, reg)
	level.Info(c.logger).Log("msg", "running workload", "path", path, "ops", len(cfg.Ops), "allocator", cfg.Allocator, "limit", cfg.Limit.HR())
	err = w.Run(c.stop)
	if err == nil && done != nil {
		err = done(w)
	}
	if err == nil {
		var g prometheus.Gatherer
		if c.metrics {
			g = reg
		}
		var r *Report
		r, err = w.Report(g)
		if err == nil {
			r.Print(c.stdout)
		}
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		level.Error(c.logger).Log("msg", "workload failed", "err", err)
	}
	return err
}

func (c *cli) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Run a workload and print a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.execute(args[0], nil)
		},
	}
	c.workloadFlags(cmd)
	return cmd
}

func (c *cli) snapshotCmd() *cobra.Command {
	var out, codec, checksum string
	var frame int
	cmd := &cobra.Command{
		Use:   "snapshot <workload.yaml>",
		Short: "Run a workload and write its container to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := vecio.ParseChecksum(checksum)
			if err != nil {
				return err
			}
			opts := &vecio.Options{Codec: codec, Checksum: sum, FrameSize: frame}
			return c.execute(args[0], func(w *Workload) error {
				return c.writeSnapshot(out, w, opts)
			})
		},
	}
	c.workloadFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "output file (required)")
	f.StringVar(&codec, "codec", "zstd", "frame codec ("+strings.Join(compr.Names(), ", ")+")")
	f.StringVar(&checksum, "checksum", "siphash", "payload checksum (siphash or blake2b)")
	f.IntVar(&frame, "frame-size", vecio.DefaultFrameSize, "raw bytes per frame")
	cmd.MarkFlagRequired("out")
	return cmd
}

func (c *cli) writeSnapshot(path string, w *Workload, opts *vecio.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	h, err := vecio.Encode(f, w.Vec(), opts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return errors.Wrapf(err, "writing %s", path)
	}
	level.Info(c.logger).Log("msg", "wrote snapshot", "path", path, "id", h.ID, "count", h.Count, "codec", h.Codec, "checksum", h.Checksum)
	return nil
}

func (c *cli) verifyCmd() *cobra.Command {
	var top int
	var pages bool
	cmd := &cobra.Command{
		Use:   "verify <snapshot>",
		Short: "Decode a snapshot and check its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var base alloc.Allocator = alloc.Heap{}
			if pages {
				base = new(alloc.Pages)
			}
			return c.verify(args[0], alloc.NewTracker(base, c.logger), top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of largest values to print")
	cmd.Flags().BoolVar(&pages, "pages", false, "decode into page-backed storage")
	return cmd
}

func (c *cli) verify(path string, tr *alloc.Tracker, top int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	v, h, err := vecio.Decode[uint64](f, vec.WithAllocator(tr))
	if err != nil {
		return errors.Wrapf(err, "%s", path)
	}
	fmt.Fprintf(c.stdout, "snapshot %s: %s elements (%s raw, %s, %s)\n",
		h.ID, humanize.Comma(int64(h.Count)), humanize.IBytes(uint64(h.PayloadSize())), h.Codec, h.Checksum)
	if xs := TopN(v, top); len(xs) > 0 {
		strs := make([]string, len(xs))
		for i, x := range xs {
			strs[i] = commaU(x)
		}
		fmt.Fprintf(c.stdout, "  top %d: %s\n", len(xs), strings.Join(strs, " "))
	}
	v.Drop()
	return tr.Leaks()
}
