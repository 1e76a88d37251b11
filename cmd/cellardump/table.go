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
	"fmt"
	"hash/maphash"
	"strconv"

	"github.com/cockroachdb/coalesced"
)

// TableConfig holds the parameters a set is constructed with.
type TableConfig struct {
	MaxLoadFactor float64 `name:"max-load-factor" default:"0.7" help:"Fraction of the table filled before growing" yaml:"max_load_factor"`
	CellarRatio   float64 `name:"cellar-ratio" default:"0.1628" help:"Cellar size relative to the primary region" yaml:"cellar_ratio"`
	Capacity      int     `name:"capacity" help:"Number of keys to reserve room for" yaml:"capacity"`
	Modulo        bool    `name:"modulo" help:"Hash integer keys to their own value" yaml:"modulo"`
}

func defaultTableConfig() TableConfig {
	return TableConfig{
		MaxLoadFactor: coalesced.DefaultMaxLoadFactor,
		CellarRatio:   coalesced.DefaultCellarRatio,
	}
}

func (c TableConfig) validate() error {
	if !(c.MaxLoadFactor > 0 && c.MaxLoadFactor <= 1) {
		return fmt.Errorf("max load factor %v not in (0, 1]", c.MaxLoadFactor)
	}
	if c.CellarRatio < 0 {
		return fmt.Errorf("cellar ratio %v is negative", c.CellarRatio)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity %d is negative", c.Capacity)
	}
	return nil
}

var keySeed = maphash.MakeSeed()

// moduloHash hashes keys that parse as integers to their value, so their
// home slot is key%primary. Other keys are hashed normally.
func moduloHash(key *string, _ uintptr) uintptr {
	if n, err := strconv.ParseInt(*key, 10, 64); err == nil {
		return uintptr(n)
	}
	return uintptr(maphash.String(keySeed, *key))
}

func (c TableConfig) newSet() (*coalesced.Set[string], error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Modulo {
		return coalesced.New[string](c.Capacity,
			coalesced.WithMaxLoadFactor[string](c.MaxLoadFactor),
			coalesced.WithCellarRatio[string](c.CellarRatio),
			coalesced.WithHash[string](moduloHash)), nil
	}
	return coalesced.New[string](c.Capacity,
		coalesced.WithMaxLoadFactor[string](c.MaxLoadFactor),
		coalesced.WithCellarRatio[string](c.CellarRatio)), nil
}
