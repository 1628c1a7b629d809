// Copyright 2026 The Gov Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gov

import (
	"log"
	"time"

	"github.com/zoobzio/clockz"
)

const (
	DefaultStableAfter = 200 * time.Millisecond
	DefaultAddress     = "127.0.0.1"
	DefaultDebounce    = 500 * time.Millisecond
)

var (
	DefaultIgnore     = []string{".git", "vendor", "node_modules"}
	DefaultExtensions = []string{".go", ".js", ".coffee", ".json", ".yml", ".yaml", ".toml"}
)

// Options are the per-process settings.  Nil and empty fields are unset,
// so that a partial Options can be layered over another with Merge.
type Options struct {
	Port    *int     `yaml:"port,omitempty" json:"port,omitempty"`
	Address string   `yaml:"address,omitempty" json:"address,omitempty"`
	Socket  string   `yaml:"socket,omitempty" json:"socket,omitempty"`
	Restart *bool    `yaml:"restart,omitempty" json:"restart,omitempty"`
	Watch   *bool    `yaml:"watch,omitempty" json:"watch,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
	Env     []string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Bool returns a pointer to b, for use in Options.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to n, for use in Options.
func Int(n int) *int {
	return &n
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return Bool(*b)
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	return Int(*n)
}

func copyArray(src []string) []string {
	if src == nil {
		return nil
	}
	rv := make([]string, 0, len(src))
	rv = append(rv, src...)
	return rv
}

// Merge returns a new Options holding o with every field set in over
// replacing it.  Neither o nor over is modified, and the result shares no
// memory with either.
func (o Options) Merge(over Options) Options {
	rv := Options{
		Port:    copyInt(o.Port),
		Address: o.Address,
		Socket:  o.Socket,
		Restart: copyBool(o.Restart),
		Watch:   copyBool(o.Watch),
		Args:    copyArray(o.Args),
		Env:     copyArray(o.Env),
	}
	if over.Port != nil {
		rv.Port = copyInt(over.Port)
	}
	if over.Address != "" {
		rv.Address = over.Address
	}
	if over.Socket != "" {
		rv.Socket = over.Socket
	}
	if over.Restart != nil {
		rv.Restart = copyBool(over.Restart)
	}
	if over.Watch != nil {
		rv.Watch = copyBool(over.Watch)
	}
	if over.Args != nil {
		rv.Args = copyArray(over.Args)
	}
	if over.Env != nil {
		rv.Env = copyArray(over.Env)
	}
	return rv
}

// Restarting is true if crashes should be restarted.
func (o Options) Restarting() bool {
	return o.Restart != nil && *o.Restart
}

// Watching is true if source changes should trigger a restart.
func (o Options) Watching() bool {
	return o.Watch != nil && *o.Watch
}

// Config configures a Supervisor.  The zero value is usable.
type Config struct {
	// StableAfter is the flap window.  A crash sooner than this after
	// the last start is faulty, and is not restarted.
	StableAfter time.Duration

	Address string
	Port    int
	Watch   bool
	Restart bool

	// Debounce is the width of the file watcher's coalescing window.
	Debounce time.Duration

	// PingInterval is handed to workers at launch.  Zero leaves the
	// worker's own default.
	PingInterval time.Duration

	// Ignore and Extensions shape the file set captured by Watch.
	Ignore     []string
	Extensions []string

	// Logger, if set, receives everything the supervisor logs, in
	// addition to the in-memory log.
	Logger *log.Logger

	// Clock drives the watcher's debounce timer.  The flap window is
	// always measured in wall time.
	Clock clockz.Clock
}

func (c Config) withDefaults() Config {
	if c.StableAfter == 0 {
		c.StableAfter = DefaultStableAfter
	}
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Ignore == nil {
		c.Ignore = DefaultIgnore
	}
	if c.Extensions == nil {
		c.Extensions = DefaultExtensions
	}
	if c.Clock == nil {
		c.Clock = clockz.RealClock
	}
	return c
}

// defaults are the Options every process starts from.
func (c Config) defaults() Options {
	return Options{
		Port:    Int(c.Port),
		Address: c.Address,
		Restart: Bool(c.Restart),
		Watch:   Bool(c.Watch),
	}
}
