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
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/brianloveswords/gov/worker"
)

// The test binary doubles as every target.  A symlink to it named
// target-<kind> runs as that kind of target instead of running the tests.
func TestMain(m *testing.M) {
	if kind, ok := strings.CutPrefix(filepath.Base(os.Args[0]), "target-"); ok {
		os.Exit(runTarget(kind))
	}
	os.Exit(m.Run())
}

// crasher listens, then panics with "lol" after delay.  If marker is set,
// it only crashes the first time it runs in a directory.
type crasher struct {
	delay  time.Duration
	marker string
	l      net.Listener
}

func (c *crasher) Serve(l net.Listener) error {
	c.l = l
	if c.marker != "" {
		if _, e := os.Stat(c.marker); e == nil {
			return http.Serve(l, http.NotFoundHandler())
		}
		os.WriteFile(c.marker, nil, 0644)
	}
	time.Sleep(c.delay)
	panic(errors.New("lol"))
}

func (c *crasher) Shutdown(context.Context) error {
	if c.l != nil {
		return c.l.Close()
	}
	return nil
}

func runTarget(kind string) int {
	var target interface{}
	switch kind {
	case "server":
		target = &http.Server{Handler: http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, "hello")
			})}
	case "nolisten":
		target = struct{}{}
	case "crash":
		target = &crasher{}
	case "crashlate":
		target = &crasher{delay: 300 * time.Millisecond, marker: "crashed"}
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q\n", kind)
		return 2
	}
	if e := worker.Run(target); e != nil {
		fmt.Fprintln(os.Stderr, e)
		return 2
	}
	return 0
}

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	tl.t.Log(strings.Trim(string(p), "\n"))
	return len(p), nil
}

// target returns the path of a fresh target of the given kind, alone in
// its own directory.
func target(t *testing.T, kind string) string {
	exe, e := os.Executable()
	if e != nil {
		t.Fatal(e)
	}
	path := filepath.Join(t.TempDir(), "target-"+kind)
	if e = os.Symlink(exe, path); e != nil {
		t.Fatal(e)
	}
	return path
}

type recorder struct {
	ch chan Event
}

func record(s *Supervisor) *recorder {
	r := &recorder{ch: make(chan Event, 256)}
	s.Subscribe(func(ev Event) {
		if ev.Kind != EventPing {
			r.ch <- ev
		}
	})
	return r
}

// next returns the next event, or an event of kind -1 if none arrives.
func (r *recorder) next() Event {
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(10 * time.Second):
		return Event{Kind: -1}
	}
}

// until skips events until one of kind k arrives.
func (r *recorder) until(k EventKind) Event {
	for {
		ev := r.next()
		if ev.Kind == k || ev.Kind == -1 {
			return ev
		}
	}
}

// quiet returns whatever arrives within d.
func (r *recorder) quiet(d time.Duration) []Event {
	var evs []Event
	timer := time.After(d)
	for {
		select {
		case ev := <-r.ch:
			evs = append(evs, ev)
		case <-timer:
			return evs
		}
	}
}

func kinds(evs []Event) []EventKind {
	rv := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		rv = append(rv, ev.Kind)
	}
	return rv
}

// eventually polls cond for a few seconds.
func eventually(cond func() bool) bool {
	for i := 0; i < 500; i++ {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func WithSupervisor(t *testing.T, cfg Config, fn func(s *Supervisor, reg *Registry)) func() {
	return func() {
		reg := NewRegistry()
		reg.SetLogger(log.New(&testLog{t: t}, "", 0))
		cfg.Logger = log.New(&testLog{t: t}, "", 0)
		s := NewSupervisor(reg, cfg)
		So(s, ShouldNotBeNil)
		Reset(func() {
			s.Shutdown()
			reg.KillAll()
		})
		fn(s, reg)
	}
}
