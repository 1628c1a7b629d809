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
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/brianloveswords/gov/wire"
)

// State is the logical state of a Process, as distinct from whether a
// worker happens to be alive.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateListening
	StateRestarting
	StateFaulty
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateRestarting:
		return "restarting"
	case StateFaulty:
		return "faulty"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Process is the supervisor's record of one target program.  It outlives
// any single Worker, and holds at most one at a time.  Processes are made
// by a Supervisor, and their fields are guarded by its lock.
type Process struct {
	id          string
	path        string
	sup         *Supervisor
	options     Options
	restarts    int
	errors      []*ErrorRecord
	lastStarted time.Time
	worker      *Worker
	watcher     *Watcher
	state       State
	address     *Address
	serial      int64
	stamp       time.Time

	logger *log.Logger
	mlog   *MultiLogger
	log    *Log
	obs    observers
}

func newProcess(s *Supervisor, path string, opts Options) *Process {
	p := &Process{
		id:      uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String(),
		path:    path,
		sup:     s,
		options: opts,
		log:     NewLog(),
		stamp:   time.Now(),
	}
	p.mlog = NewMultiLogger("[" + path + "] ")
	p.mlog.AddLogger(log.New(p.log, "", 0))
	p.mlog.AddLogger(log.New(s.mlog, "", 0))
	p.logger = p.mlog.Logger()
	return p
}

// Path returns the canonical path of the target.
func (p *Process) Path() string {
	return p.path
}

// ID is derived from the path, so it is stable across supervisor runs.
func (p *Process) ID() string {
	return p.id
}

// Options returns a copy of the effective options.
func (p *Process) Options() Options {
	p.sup.lock()
	defer p.sup.unlock()
	return p.options.Merge(Options{})
}

func (p *Process) Restarts() int {
	p.sup.lock()
	defer p.sup.unlock()
	return p.restarts
}

// Errors returns every error the process has reported, newest first.
func (p *Process) Errors() []*ErrorRecord {
	p.sup.lock()
	defer p.sup.unlock()
	rv := make([]*ErrorRecord, len(p.errors))
	copy(rv, p.errors)
	return rv
}

func (p *Process) LastStarted() time.Time {
	p.sup.lock()
	defer p.sup.unlock()
	return p.lastStarted
}

func (p *Process) State() State {
	p.sup.lock()
	defer p.sup.unlock()
	return p.state
}

// Address is where the current worker said it was listening, if anywhere.
func (p *Process) Address() *Address {
	p.sup.lock()
	defer p.sup.unlock()
	return p.address
}

func (p *Process) Watching() bool {
	p.sup.lock()
	defer p.sup.unlock()
	return p.watcher != nil
}

// Serial changes whenever anything about the process does.
func (p *Process) Serial() int64 {
	p.sup.lock()
	defer p.sup.unlock()
	return p.serial
}

// Current returns the current worker without forking one.
func (p *Process) Current() *Worker {
	p.sup.lock()
	defer p.sup.unlock()
	return p.worker
}

// Logger returns the process's logger.  Lines logged here are kept in the
// process log and passed up to the supervisor.
func (p *Process) Logger() *log.Logger {
	return p.logger
}

// GetLog returns the process log, as Log.GetRecords.
func (p *Process) GetLog(last int64) ([]LogRecord, int64) {
	return p.log.GetRecords(last)
}

// WatchLog waits for the process log to move past last, as Log.Watch.
func (p *Process) WatchLog(last int64, expire time.Duration) int64 {
	return p.log.Watch(last, expire)
}

// Subscribe registers fn for every event concerning this process, worker
// events included.  The returned function cancels the subscription.
func (p *Process) Subscribe(fn Handler) func() {
	return p.obs.subscribe(fn)
}

// setState records a transition.  Call with the lock held.
func (p *Process) setState(st State) {
	if p.state == st {
		return
	}
	p.logger.Printf("%s -> %s", p.state, st)
	p.state = st
	p.touch()
}

// touch bumps the serial.  Call with the lock held.
func (p *Process) touch() {
	p.serial = p.sup.bumpSerial()
	p.stamp = time.Now()
}

// Worker returns the current worker, forking one if there is none.  Once
// the supervisor is shut down nothing is forked, and the result may be nil.
func (p *Process) Worker() *Worker {
	p.sup.lock()
	defer p.sup.unlock()
	if p.worker == nil && !p.sup.closed {
		p.worker = fork(p)
		p.touch()
	}
	return p.worker
}

// Start tells the worker to start, forking one first if there is none or
// the last one has exited.  A live worker is reused.
func (p *Process) Start() error {
	p.sup.lock()
	defer p.sup.unlock()
	return p.start()
}

func (p *Process) start() error {
	if p.sup.closed {
		return ErrShutdown
	}
	if p.worker == nil || p.worker.Exited() {
		p.worker = fork(p)
	}
	p.address = nil
	// Wall time, as error records from the worker are stamped with it.
	p.lastStarted = time.Now()
	p.setState(StateStarting)
	p.touch()

	opts := &wire.StartOptions{
		Path:    p.path,
		Port:    p.options.Port,
		Address: p.options.Address,
		Socket:  p.options.Socket,
	}
	if e := p.worker.send(wire.CommandStart, opts); e != nil {
		// The worker is already gone; its death is on the way.
		p.logger.Printf("Cannot send start: %v", e)
	}
	return nil
}

// Stop asks the worker to close gracefully.  There is no deadline; a
// worker that never finishes closing stays up until killed.
func (p *Process) Stop() error {
	p.sup.lock()
	defer p.sup.unlock()
	w := p.worker
	if w == nil {
		return nil
	}
	p.setState(StateStopped)
	if e := w.send(wire.CommandStop, nil); e != nil && !w.Exited() {
		return e
	}
	return nil
}

// Restart replaces the worker.  The old one is killed and forgotten before
// the new one is forked.
func (p *Process) Restart() error {
	p.sup.lock()
	defer p.sup.unlock()
	return p.restart()
}

func (p *Process) restart() error {
	if p.sup.closed {
		return ErrShutdown
	}
	p.restarts++
	p.setState(StateRestarting)
	if w := p.worker; w != nil {
		if e := w.signal(syscall.SIGKILL); e != nil {
			p.logger.Printf("Failed killing pid %d: %v", w.Pid(), e)
		}
		p.worker = nil
	}
	return p.start()
}

// restartFrom restarts p for a crash of w, unless w has been replaced or p
// was told to stop since the crash was seen.
func (p *Process) restartFrom(w *Worker) error {
	p.sup.lock()
	defer p.sup.unlock()
	if p.worker != w || p.state == StateStopped {
		p.logger.Printf("Not restarting: stopped or replaced meanwhile")
		return nil
	}
	return p.restart()
}

// Kill signals the worker directly, without going through the channel.
// A nil sig means SIGKILL.
func (p *Process) Kill(sig os.Signal) error {
	if sig == nil {
		sig = syscall.SIGKILL
	}
	p.sup.lock()
	defer p.sup.unlock()
	w := p.worker
	if w == nil {
		return nil
	}
	p.setState(StateStopped)
	return w.signal(sig)
}

// Watch restarts the process whenever its sources change.  Watching an
// already watched process does nothing.
func (p *Process) Watch() error {
	p.sup.lock()
	defer p.sup.unlock()
	return p.watch()
}

func (p *Process) watch() error {
	if p.watcher != nil {
		return nil
	}
	if p.sup.closed {
		return ErrShutdown
	}
	w, e := newWatcher(p)
	if e != nil {
		return e
	}
	p.watcher = w
	p.touch()
	p.logger.Printf("Watching %d files", len(w.Files()))
	return nil
}

// relay delivers an event from w to subscribers of the process, then hands
// it to the supervisor.  It runs on the dispatch goroutine.
func (p *Process) relay(w *Worker, ev Event) {
	ev.Worker = w
	ev.Process = p

	s := p.sup
	s.lock()
	switch ev.Kind {
	case EventError:
		p.errors = append([]*ErrorRecord{ev.Err}, p.errors...)
		p.logger.Printf("Error: %v", ev.Err)
	case EventListening:
		if w == p.worker && p.state == StateStarting {
			p.address = ev.Address
			p.setState(StateListening)
		}
		p.logger.Printf("Listening on %v", ev.Address)
	case EventDeath:
		p.logger.Printf("Worker pid %d died", w.Pid())
	}
	if ev.Kind != EventPing {
		p.touch()
	}
	s.unlock()

	p.obs.notify(ev)
	s.handle(ev)
}

// exited forgets a worker that was deliberately stopped.  A crashed worker
// is kept, so that its exit code remains visible until the next start.
func (p *Process) exited(w *Worker) {
	p.sup.lock()
	defer p.sup.unlock()
	if p.worker == w && p.state == StateStopped {
		p.worker = nil
		p.touch()
	}
}

// changed is called by the watcher, on the dispatch goroutine, with the
// files that changed.
func (p *Process) changed(changes []string) {
	p.sup.lock()
	w := p.worker
	p.logger.Printf("Changed: %v", changes)
	p.sup.unlock()

	ev := Event{Kind: EventUpdating, Changes: changes, Worker: w, Process: p}
	p.obs.notify(ev)
	p.sup.emit(ev)
	if e := p.Restart(); e != nil {
		p.logger.Printf("Restart failed: %v", e)
	}
}
