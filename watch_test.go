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
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zoobzio/clockz"
)

func touch(t *testing.T, path string) {
	if e := os.MkdirAll(filepath.Dir(path), 0755); e != nil {
		t.Fatal(e)
	}
	if e := os.WriteFile(path, []byte(time.Now().String()), 0644); e != nil {
		t.Fatal(e)
	}
}

func TestWatchSet(t *testing.T) {
	Convey("Only allowed files outside ignored directories are captured", t, func() {
		dir := t.TempDir()
		for _, f := range []string{
			"main.go", "conf.yml", "data.json", "README.md", "bin",
			"node_modules/dep/index.js", ".git/config.json",
			"vendor/x/y.go", "sub/more.toml",
		} {
			touch(t, filepath.Join(dir, f))
		}
		files, e := WatchSet(dir, DefaultIgnore, DefaultExtensions)
		So(e, ShouldBeNil)
		So(files, ShouldResemble, []string{
			filepath.Join(dir, "conf.yml"),
			filepath.Join(dir, "data.json"),
			filepath.Join(dir, "main.go"),
			filepath.Join(dir, "sub", "more.toml"),
		})
	})
}

func TestDebounce(t *testing.T) {
	Convey("Given a watcher on a fake clock", t, func() {
		dir := t.TempDir()
		a := filepath.Join(dir, "a.go")
		b := filepath.Join(dir, "b.json")
		c := filepath.Join(dir, "c.yml")
		for _, f := range []string{a, b, c} {
			touch(t, f)
		}

		clock := clockz.NewFakeClock()
		fired := make(chan []string, 4)
		w, e := NewWatcher(dir, DefaultIgnore, DefaultExtensions,
			500*time.Millisecond, clock, log.New(&testLog{t: t}, "", 0),
			func(changes []string) { fired <- changes })
		So(e, ShouldBeNil)
		Reset(func() { w.Close() })
		So(w.Files(), ShouldResemble, []string{a, b, c})

		Convey("A burst of writes fires once with every path", func() {
			touch(t, a)
			touch(t, b)
			touch(t, a)
			touch(t, c)
			So(eventually(func() bool { return len(w.Pending()) == 3 }), ShouldBeTrue)
			So(w.Pending(), ShouldResemble, []string{a, b, c})

			clock.Advance(499 * time.Millisecond)
			clock.BlockUntilReady()
			select {
			case <-fired:
				So("fired early", ShouldBeEmpty)
			case <-time.After(50 * time.Millisecond):
			}

			clock.Advance(time.Millisecond)
			clock.BlockUntilReady()
			var changes []string
			select {
			case changes = <-fired:
			case <-time.After(5 * time.Second):
			}
			So(changes, ShouldResemble, []string{a, b, c})
			So(w.Pending(), ShouldBeEmpty)

			clock.Advance(time.Second)
			clock.BlockUntilReady()
			select {
			case <-fired:
				So("fired twice", ShouldBeEmpty)
			case <-time.After(50 * time.Millisecond):
			}

			Convey("The next burst starts a new window", func() {
				touch(t, b)
				So(eventually(func() bool { return len(w.Pending()) == 1 }), ShouldBeTrue)
				clock.Advance(500 * time.Millisecond)
				clock.BlockUntilReady()
				select {
				case changes = <-fired:
				case <-time.After(5 * time.Second):
				}
				So(changes, ShouldResemble, []string{b})
			})
		})

		Convey("Close drops pending changes", func() {
			touch(t, a)
			So(eventually(func() bool { return len(w.Pending()) == 1 }), ShouldBeTrue)
			So(w.Close(), ShouldBeNil)
			clock.Advance(time.Second)
			select {
			case <-fired:
				So("fired after close", ShouldBeEmpty)
			case <-time.After(50 * time.Millisecond):
			}
		})
	})
}

func TestWatchRestarts(t *testing.T) {
	Convey("File changes restart a watched process once per burst", t, func() {
		clock := clockz.NewFakeClock()
		WithSupervisor(t, Config{Clock: clock, Debounce: 500 * time.Millisecond},
			func(s *Supervisor, reg *Registry) {
				path := target(t, "server")
				dir := filepath.Dir(path)
				files := []string{
					filepath.Join(dir, "one.go"),
					filepath.Join(dir, "two.go"),
					filepath.Join(dir, "three.json"),
				}
				for _, f := range files {
					touch(t, f)
				}

				r := record(s)
				p, e := s.StartProcess(path, Options{Watch: Bool(true)})
				So(e, ShouldBeNil)
				So(p.Watching(), ShouldBeTrue)
				So(p.Watch(), ShouldBeNil)
				first := r.next()
				So(first.Kind, ShouldEqual, EventListening)

				for _, f := range files {
					touch(t, f)
				}
				pending := func() int {
					s.lock()
					defer s.unlock()
					return len(p.watcher.Pending())
				}
				So(eventually(func() bool { return pending() == 3 }), ShouldBeTrue)
				clock.Advance(500 * time.Millisecond)
				clock.BlockUntilReady()

				ev := r.next()
				So(ev.Kind, ShouldEqual, EventUpdating)
				So(ev.Changes, ShouldResemble, files)
				So(r.until(EventListening).Worker, ShouldNotEqual, first.Worker)
				So(p.Restarts(), ShouldEqual, 1)

				for _, ev := range r.quiet(200 * time.Millisecond) {
					So(ev.Kind, ShouldNotEqual, EventUpdating)
				}
				So(p.Restarts(), ShouldEqual, 1)
			})()
	})
}
