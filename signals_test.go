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

//go:build unix

package gov

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zoobzio/capitan"
)

type published struct {
	path     string
	pid      int
	err      string
	address  string
	changes  string
	restarts int
}

// collect returns a capitan hook passing on events for path only, since
// hooks are global and outlive the test that installed them.
func collect(path string, ch chan<- published) func(context.Context, *capitan.Event) {
	return func(_ context.Context, e *capitan.Event) {
		got := published{}
		got.path, _ = KeyPath.From(e)
		if got.path != path {
			return
		}
		got.pid, _ = KeyPid.From(e)
		got.err, _ = KeyError.From(e)
		got.address, _ = KeyAddress.From(e)
		got.changes, _ = KeyChanges.From(e)
		got.restarts, _ = KeyRestarts.From(e)
		ch <- got
	}
}

func receive(ch <-chan published) published {
	select {
	case got := <-ch:
		return got
	case <-time.After(10 * time.Second):
		return published{}
	}
}

func TestSignals(t *testing.T) {
	Convey("A faulty process is published with its error", t,
		WithSupervisor(t, Config{StableAfter: 5 * time.Second},
			func(s *Supervisor, reg *Registry) {
				path := target(t, "crash")
				faulty := make(chan published, 4)
				listening := make(chan published, 4)
				capitan.Hook(ProcessFaulty, collect(path, faulty))
				capitan.Hook(ProcessListening, collect(path, listening))

				r := record(s)
				p, e := s.StartProcess(path, Options{Restart: Bool(true)})
				So(e, ShouldBeNil)
				So(r.until(EventFaulty).Kind, ShouldEqual, EventFaulty)

				got := receive(listening)
				So(got.path, ShouldEqual, p.Path())
				So(got.address, ShouldStartWith, "127.0.0.1:")

				got = receive(faulty)
				So(got.path, ShouldEqual, p.Path())
				So(got.err, ShouldEqual, "Error: lol")
				So(got.pid, ShouldEqual, p.Current().Pid())
				So(got.restarts, ShouldEqual, 0)
				So(got.changes, ShouldBeEmpty)
			}))

	Convey("File changes are published before the restart", t,
		WithSupervisor(t, Config{}, func(s *Supervisor, reg *Registry) {
			dir := t.TempDir()
			path := filepath.Join(dir, "missing")
			updating := make(chan published, 4)
			capitan.Hook(ProcessUpdating, collect(path, updating))

			p, e := s.MakeProcess(path, Options{})
			So(e, ShouldBeNil)
			changes := []string{filepath.Join(dir, "a.go"), filepath.Join(dir, "b.go")}
			s.post(func() { p.changed(changes) })

			got := receive(updating)
			So(got.path, ShouldEqual, p.Path())
			So(got.changes, ShouldEqual, changes[0]+","+changes[1])
			So(got.restarts, ShouldEqual, 0)
			So(got.pid, ShouldEqual, 0)
			So(eventually(func() bool { return p.Restarts() == 1 }), ShouldBeTrue)
		}))
}
