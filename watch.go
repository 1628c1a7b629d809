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
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/clockz"
)

// Watcher restarts a process when files next to it change.  The set of
// files is captured when watching starts; files created later are not
// seen.  Changes are coalesced: the first change starts a timer of fixed
// width, later changes join the batch without moving it, and when it fires
// the whole batch is handed over at once.
type Watcher struct {
	fsw     *fsnotify.Watcher
	files   map[string]bool
	clock   clockz.Clock
	width   time.Duration
	fire    func(changes []string)
	logger  *log.Logger
	pending []string
	timer   clockz.Timer
	mx      sync.Mutex
	once    sync.Once
	quit    chan struct{}
	done    chan struct{}
}

// WatchSet lists the files under dir that a Watcher would capture.
// Directories named in ignore are skipped entirely, and only files whose
// extension is in exts are kept.
func WatchSet(dir string, ignore, exts []string) ([]string, error) {
	skip := make(map[string]bool, len(ignore))
	for _, n := range ignore {
		skip[n] = true
	}
	keep := make(map[string]bool, len(exts))
	for _, x := range exts {
		keep[strings.ToLower(x)] = true
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != dir && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && keep[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// NewWatcher starts watching the files under dir.  fire is called from the
// watcher's goroutine with each batch of changed paths, in the order they
// first changed.
func NewWatcher(dir string, ignore, exts []string, width time.Duration,
	clock clockz.Clock, logger *log.Logger, fire func([]string)) (*Watcher, error) {

	files, err := WatchSet(dir, ignore, exts)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:    fsw,
		files:  make(map[string]bool, len(files)),
		clock:  clock,
		width:  width,
		fire:   fire,
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, f := range files {
		if e := fsw.Add(f); e != nil {
			logger.Printf("Cannot watch %s: %v", f, e)
			continue
		}
		w.files[f] = true
	}
	go w.run()
	return w, nil
}

func newWatcher(p *Process) (*Watcher, error) {
	s := p.sup
	return NewWatcher(filepath.Dir(p.path), s.cfg.Ignore, s.cfg.Extensions,
		s.cfg.Debounce, s.clock, p.logger, func(changes []string) {
			s.post(func() { p.changed(changes) })
		})
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	rv := make([]string, 0, len(w.files))
	for f := range w.files {
		rv = append(rv, f)
	}
	sort.Strings(rv)
	return rv
}

// Pending returns the changes waiting for the timer.
func (w *Watcher) Pending() []string {
	w.mx.Lock()
	defer w.mx.Unlock()
	return copyArray(w.pending)
}

// Close stops watching, and drops any pending batch.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.quit)
		err = w.fsw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		var timerC <-chan time.Time
		w.mx.Lock()
		if w.timer != nil {
			timerC = w.timer.C()
		}
		w.mx.Unlock()

		select {
		case <-w.quit:
			w.mx.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mx.Unlock()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.change(ev)

		case e, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watch error: %v", e)

		case <-timerC:
			w.mx.Lock()
			changes := w.pending
			w.pending = nil
			w.timer = nil
			w.mx.Unlock()
			if len(changes) != 0 {
				w.fire(changes)
			}
		}
	}
}

func (w *Watcher) change(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	if !w.files[name] {
		return
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// Editors that save by replacing the file drop the watch.
		w.fsw.Add(name)
	}

	w.mx.Lock()
	defer w.mx.Unlock()
	for _, p := range w.pending {
		if p == name {
			return
		}
	}
	w.pending = append(w.pending, name)
	if w.timer == nil {
		w.timer = w.clock.NewTimer(w.width)
	}
}
