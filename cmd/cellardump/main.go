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

// Command cellardump builds a coalesced.Set from the command line or from a
// YAML scenario and prints the layout of its slot table.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Global is passed to every subcommand.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Run    RunCmd    `cmd:"" help:"Insert keys, erase some of them and dump the table"`
	Script ScriptCmd `cmd:"" help:"Run a YAML scenario of set operations and dump the table"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cellardump"),
		kong.Description("Inspect the slot layout of a coalesced hash set."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&Global{Logger: slog.Default(), Out: os.Stdout})
	ctx.FatalIfErrorf(err)
}
