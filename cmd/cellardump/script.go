// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/coalesced"
	"gopkg.in/yaml.v3"
)

// ScriptCmd implements the 'script' command.
type ScriptCmd struct {
	File string `arg:"" type:"existingfile" help:"YAML scenario file"`
}

func (c *ScriptCmd) Run(g *Global) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	sc, err := parseScenario(data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	s, err := sc.execute(g.Logger)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	return s.Dump(g.Out)
}

// scenario is a sequence of set operations. For example:
//
//	modulo: true
//	steps:
//	  - insert: ["3", "10", "17"]
//	  - erase: ["10"]
//	  - contains: {"3": true, "10": false}
type scenario struct {
	TableConfig `yaml:",inline"`

	Steps []step `yaml:"steps"`
}

// step performs exactly one kind of operation on a list of keys. Contains
// maps each key to whether it is expected to be present.
type step struct {
	Insert   []string        `yaml:"insert"`
	Erase    []string        `yaml:"erase"`
	Contains map[string]bool `yaml:"contains"`
}

func parseScenario(data []byte) (*scenario, error) {
	sc := &scenario{TableConfig: defaultTableConfig()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	for i, st := range sc.Steps {
		var kinds int
		if st.Insert != nil {
			kinds++
		}
		if st.Erase != nil {
			kinds++
		}
		if st.Contains != nil {
			kinds++
		}
		if kinds != 1 {
			return nil, fmt.Errorf("step %d: expected exactly one of insert, erase or contains", i)
		}
	}
	return sc, nil
}

// errUnexpectedMembership is returned when a contains step fails.
var errUnexpectedMembership = errors.New("unexpected membership")

func (sc *scenario) execute(logger *slog.Logger) (*coalesced.Set[string], error) {
	s, err := sc.newSet()
	if err != nil {
		return nil, err
	}
	for i, st := range sc.Steps {
		for _, k := range st.Insert {
			_, inserted := s.Insert(k)
			logger.Debug("insert", "step", i, "key", k, "inserted", inserted, "len", s.Len())
		}
		for _, k := range st.Erase {
			n := s.Erase(k)
			logger.Debug("erase", "step", i, "key", k, "removed", n, "len", s.Len())
		}
		for k, want := range st.Contains {
			if got := s.Contains(k); got != want {
				logger.Error("contains", "step", i, "key", k, "expected", want, "found", got)
				return s, fmt.Errorf("step %d: contains(%q) = %t: %w", i, k, got, errUnexpectedMembership)
			}
		}
	}
	logger.Info("scenario complete", "steps", len(sc.Steps), "keys", s.Len(), "capacity", s.Capacity())
	return s, nil
}
