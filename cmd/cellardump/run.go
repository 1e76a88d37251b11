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

// RunCmd implements the 'run' command.
type RunCmd struct {
	TableConfig `embed:""`

	Erase []string `short:"e" sep:"," help:"Keys to erase after inserting"`
	Keys  []string `arg:"" optional:"" help:"Keys to insert, in order"`
}

func (r *RunCmd) Run(g *Global) error {
	s, err := r.TableConfig.newSet()
	if err != nil {
		return err
	}
	for _, k := range r.Keys {
		_, inserted := s.Insert(k)
		g.Logger.Debug("insert", "key", k, "inserted", inserted, "len", s.Len(), "capacity", s.Capacity())
	}
	for _, k := range r.Erase {
		n := s.Erase(k)
		g.Logger.Debug("erase", "key", k, "removed", n, "len", s.Len())
	}
	g.Logger.Info("table built", "keys", s.Len(), "capacity", s.Capacity())
	return s.Dump(g.Out)
}
