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
	"os"
	"strconv"
	"strings"

	"github.com/SnellerInc/rawvec/alloc"
	"github.com/c2h5oh/datasize"
	"github.com/cockroachdb/errors"
	"sigs.k8s.io/yaml"
)

// envPrefix prefixes the environment
// variables that override a Config
const envPrefix = "VECSTAT_"

// Config is a workload definition.
type Config struct {
	// Allocator is "heap" or "pages".
	Allocator string `json:"allocator,omitempty"`
	// Limit bounds the bytes the workload may
	// hold at once (e.g. "512MB").
	Limit datasize.ByteSize `json:"limit,omitempty"`
	// Top is the number of largest values reported.
	Top int `json:"top,omitempty"`
	// Seed seeds the "random" fill.
	Seed uint64 `json:"seed,omitempty"`
	// Poison overwrites released blocks.
	Poison bool `json:"poison,omitempty"`
	// Ops run in order against a single container.
	Ops []Op `json:"ops"`
}

// Op is one step of a workload.
type Op struct {
	// Op is one of the names in opNames.
	Op    string `json:"op"`
	Count int    `json:"count,omitempty"`
	Index int    `json:"index,omitempty"`
	Value uint64 `json:"value,omitempty"`
	// Fill is "seq" (Value, Value+1, ...), "const",
	// or "random" for push.
	Fill string `json:"fill,omitempty"`
}

var opNames = []string{
	"push", "pop", "insert", "remove", "set",
	"reserve", "shrink", "truncate", "clear",
}

// defaultLimit is a quarter of physical memory,
// or 1GiB where that is unknown
func defaultLimit() datasize.ByteSize {
	if total := alloc.MemTotal(); total > 0 {
		return datasize.ByteSize(total / 4)
	}
	return datasize.GB
}

// ParseConfig decodes a YAML (or JSON) workload
// and fills in defaults.
func ParseConfig(buf []byte) (*Config, error) {
	c := new(Config)
	if err := yaml.UnmarshalStrict(buf, c); err != nil {
		return nil, errors.Wrap(err, "parsing workload")
	}
	return c, nil
}

// LoadConfig reads a workload from path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseConfig(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

// ApplyEnv overrides fields of c from VECSTAT_*
// variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if s := getenv(envPrefix + "ALLOCATOR"); s != "" {
		c.Allocator = s
	}
	if s := getenv(envPrefix + "LIMIT"); s != "" {
		var lim datasize.ByteSize
		if err := lim.UnmarshalText([]byte(s)); err != nil {
			return errors.Wrapf(err, "%sLIMIT=%q", envPrefix, s)
		}
		c.Limit = lim
	}
	if s := getenv(envPrefix + "TOP"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.Wrapf(err, "%sTOP", envPrefix)
		}
		c.Top = n
	}
	if s := getenv(envPrefix + "SEED"); s != "" {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "%sSEED", envPrefix)
		}
		c.Seed = n
	}
	if s := getenv(envPrefix + "POISON"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.Wrapf(err, "%sPOISON", envPrefix)
		}
		c.Poison = b
	}
	return nil
}

// Validate fills in defaults and
// rejects malformed workloads.
func (c *Config) Validate() error {
	if c.Allocator == "" {
		c.Allocator = "heap"
	}
	c.Allocator = strings.ToLower(c.Allocator)
	if c.Allocator != "heap" && c.Allocator != "pages" {
		return errors.Newf("unknown allocator %q (want heap or pages)", c.Allocator)
	}
	if c.Limit == 0 {
		c.Limit = defaultLimit()
	}
	if c.Top == 0 {
		c.Top = 10
	}
	if c.Top < 0 {
		return errors.Newf("top %d is negative", c.Top)
	}
	for i := range c.Ops {
		if err := c.Ops[i].validate(); err != nil {
			return errors.Wrapf(err, "op %d", i)
		}
	}
	return nil
}

func (o *Op) validate() error {
	known := false
	for _, name := range opNames {
		if o.Op == name {
			known = true
			break
		}
	}
	if !known {
		return errors.Newf("unknown op %q", o.Op)
	}
	if o.Count < 0 || o.Index < 0 {
		return errors.Newf("%s: negative count or index", o.Op)
	}
	switch o.Op {
	case "push":
		switch o.Fill {
		case "":
			o.Fill = "seq"
		case "seq", "const", "random":
		default:
			return errors.Newf("push: unknown fill %q", o.Fill)
		}
		if o.Count == 0 {
			o.Count = 1
		}
	case "pop":
		if o.Count == 0 {
			o.Count = 1
		}
	}
	return nil
}
