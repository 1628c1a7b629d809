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
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// How long Shutdown waits for killed workers to be reaped.
const shutdownWait = 5 * time.Second

// Supervisor owns a set of Processes, relays their events, and decides
// whether a crashed process is restarted.
//
// Events from workers, exits and file watchers are queued and delivered one
// at a time on a single dispatch goroutine, in the order they arrived.
// Subscribers, and the restart policy, run there.
type Supervisor struct {
	cfg        Config
	reg        *Registry
	clock      clockz.Clock
	procs      map[string]*Process
	logger     *log.Logger
	log        *Log
	mlog       *MultiLogger
	obs        observers
	serial     int64
	listSerial int64
	closed     bool
	mx         sync.Mutex
	cvs        map[*sync.Cond]bool

	queue []func()
	qmx   sync.Mutex
	qcv   *sync.Cond
	qdone bool
	qexit chan struct{}
}

// NewSupervisor returns a Supervisor whose workers are recorded in reg.
func NewSupervisor(reg *Registry, cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	if reg == nil {
		reg = NewRegistry()
	}
	// Serial numbers start at the current time in nanoseconds, so
	// clients caching one from an earlier supervisor see a change.
	s := &Supervisor{
		cfg:    cfg,
		reg:    reg,
		clock:  cfg.Clock,
		procs:  make(map[string]*Process),
		cvs:    make(map[*sync.Cond]bool),
		log:    NewLog(),
		qexit:  make(chan struct{}),
		serial: time.Now().UnixNano(),
	}
	s.qcv = sync.NewCond(&s.qmx)
	s.mlog = NewMultiLogger("")
	s.mlog.AddLogger(log.New(s.log, "", 0))
	if cfg.Logger != nil {
		s.mlog.AddLogger(cfg.Logger)
	}
	s.logger = s.mlog.Logger()
	go s.dispatch()
	return s
}

func (s *Supervisor) lock() {
	s.mx.Lock()
}

func (s *Supervisor) unlock() {
	s.mx.Unlock()
}

// post queues fn for the dispatch goroutine.  It never blocks.
func (s *Supervisor) post(fn func()) {
	s.qmx.Lock()
	if !s.qdone {
		s.queue = append(s.queue, fn)
		s.qcv.Signal()
	}
	s.qmx.Unlock()
}

func (s *Supervisor) dispatch() {
	defer close(s.qexit)
	for {
		s.qmx.Lock()
		for len(s.queue) == 0 && !s.qdone {
			s.qcv.Wait()
		}
		if len(s.queue) == 0 {
			s.qmx.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.qmx.Unlock()
		fn()
	}
}

// bumpSerial advances the serial and wakes watchers.  Call with the lock
// held.
func (s *Supervisor) bumpSerial() int64 {
	s.serial++
	for cv := range s.cvs {
		cv.Broadcast()
	}
	return s.serial
}

// watchSerial waits for *src to move away from old, for at most expire.
// An expire of zero polls.
func (s *Supervisor) watchSerial(old int64, src *int64, expire time.Duration) int64 {
	expired := expire <= 0
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			s.lock()
			expired = true
			cv.Broadcast()
			s.unlock()
		})
	}

	s.lock()
	s.cvs[cv] = true
	rv := *src
	for rv == old && !expired {
		cv.Wait()
		rv = *src
	}
	delete(s.cvs, cv)
	s.unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Serial changes whenever anything about any process does.
func (s *Supervisor) Serial() int64 {
	s.lock()
	defer s.unlock()
	return s.serial
}

// WatchSerial waits for the serial to change.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	return s.watchSerial(old, &s.serial, expire)
}

// WatchProcesses waits for the list of processes to change.
func (s *Supervisor) WatchProcesses(old int64, expire time.Duration) int64 {
	return s.watchSerial(old, &s.listSerial, expire)
}

// Config returns the configuration, with defaults filled in.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Logger returns the supervisor's logger.
func (s *Supervisor) Logger() *log.Logger {
	return s.logger
}

func (s *Supervisor) GetLog(last int64) ([]LogRecord, int64) {
	return s.log.GetRecords(last)
}

func (s *Supervisor) WatchLog(old int64, expire time.Duration) int64 {
	return s.log.Watch(old, expire)
}

// Subscribe registers fn for every supervisor event.  Worker errors from
// processes that restart arrive as Restarting or Faulty instead of Error.
func (s *Supervisor) Subscribe(fn Handler) func() {
	return s.obs.subscribe(fn)
}

// Canonical returns the key a path is registered under.
func Canonical(path string) (string, error) {
	abs, e := filepath.Abs(path)
	if e != nil {
		return "", e
	}
	return filepath.Clean(abs), nil
}

// MakeProcess returns the process for path, creating it if needed.  The
// options of an existing process are replaced by the supervisor defaults
// overlaid with opts.  Nothing is started or restarted.
func (s *Supervisor) MakeProcess(path string, opts Options) (*Process, error) {
	key, e := Canonical(path)
	if e != nil {
		return nil, e
	}
	merged := s.cfg.defaults().Merge(opts)

	s.lock()
	defer s.unlock()
	if s.closed {
		return nil, ErrShutdown
	}
	if p, ok := s.procs[key]; ok {
		p.options = merged
		p.touch()
		return p, nil
	}

	p := newProcess(s, key, merged)
	s.procs[key] = p
	s.listSerial = s.bumpSerial()
	p.touch()
	s.logger.Printf("Added %s", key)

	if merged.Watching() {
		if e := p.watch(); e != nil {
			p.logger.Printf("Cannot watch: %v", e)
		}
	}
	return p, nil
}

// StartProcess is MakeProcess followed by Start.
func (s *Supervisor) StartProcess(path string, opts Options) (*Process, error) {
	p, e := s.MakeProcess(path, opts)
	if e != nil {
		return nil, e
	}
	return p, p.Start()
}

// Process returns the process registered for path.
func (s *Supervisor) Process(path string) (*Process, error) {
	key, e := Canonical(path)
	if e != nil {
		return nil, e
	}
	s.lock()
	defer s.unlock()
	if p, ok := s.procs[key]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

// FindProcess returns the process with the given ID.
func (s *Supervisor) FindProcess(id string) (*Process, error) {
	s.lock()
	defer s.unlock()
	for _, p := range s.procs {
		if p.id == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// Processes returns every process, sorted by path, along with the serial
// of the list itself.
func (s *Supervisor) Processes() ([]*Process, int64) {
	s.lock()
	defer s.unlock()
	rv := make([]*Process, 0, len(s.procs))
	for _, p := range s.procs {
		rv = append(rv, p)
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].path < rv[j].path })
	return rv, s.listSerial
}

// handle applies the restart policy to an event the process has already
// relayed to its own subscribers.  It runs on the dispatch goroutine.
func (s *Supervisor) handle(ev Event) {
	if ev.Kind != EventError {
		s.emit(ev)
		return
	}
	p := ev.Process

	s.lock()
	// Errors from a worker that has since been replaced, or from a process
	// that was told to stop, are reported but not acted on.
	if !p.options.Restarting() || ev.Worker != p.worker || p.state == StateStopped {
		s.unlock()
		s.emit(ev)
		return
	}
	elapsed := ev.Err.Time().Sub(p.lastStarted)
	if elapsed < s.cfg.StableAfter {
		p.setState(StateFaulty)
		p.logger.Printf("Faulty: crashed %v after start", elapsed)
		s.unlock()
		ev.Kind = EventFaulty
		s.emit(ev)
		return
	}
	p.logger.Printf("Restarting: crashed %v after start", elapsed)
	s.unlock()

	ev.Kind = EventRestarting
	s.emit(ev)
	if e := p.restartFrom(ev.Worker); e != nil {
		p.logger.Printf("Restart failed: %v", e)
	}
}

// emit delivers a supervisor event to subscribers and publishes it.
func (s *Supervisor) emit(ev Event) {
	p := ev.Process
	s.lock()
	restarts := p.restarts
	s.unlock()
	publish(ev, restarts)
	s.obs.notify(ev)
}

// Shutdown kills every worker this supervisor started and stops every
// watcher.  Once it returns no further events are delivered.  Processes
// remain registered, but can no longer be started.
func (s *Supervisor) Shutdown() {
	s.lock()
	if s.closed {
		s.unlock()
		return
	}
	s.closed = true
	var workers []*Worker
	var watchers []*Watcher
	for _, p := range s.procs {
		if p.watcher != nil {
			watchers = append(watchers, p.watcher)
			p.watcher = nil
		}
		if p.worker != nil {
			workers = append(workers, p.worker)
		}
		p.setState(StateStopped)
	}
	s.unlock()

	for _, w := range watchers {
		w.Close()
	}
	deadline := time.After(shutdownWait)
	for _, w := range workers {
		w.killGroup()
	}
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-deadline:
		}
	}

	s.qmx.Lock()
	s.qdone = true
	s.qcv.Broadcast()
	s.qmx.Unlock()
	s.logger.Printf("Supervisor shut down")
}

// Wait blocks until the dispatch goroutine has delivered everything queued
// before Shutdown.
func (s *Supervisor) Wait() {
	<-s.qexit
}
