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
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// How long KillAll waits for killed workers to be reaped.
const killWait = 5 * time.Second

// Registry records every live worker forked by any Supervisor sharing it,
// so that they can all be killed when the program goes down.  A program
// makes one, early in main, and hands it to each Supervisor.
//
//	reg := gov.NewRegistry()
//	defer reg.Recover()
//	reg.HandleSignals(os.Interrupt, syscall.SIGTERM)
type Registry struct {
	workers map[*Worker]bool
	forked  []int
	exit    func(int)
	logger  *log.Logger
	mx      sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[*Worker]bool),
		exit:    os.Exit,
		logger:  log.New(os.Stderr, "", log.LstdFlags),
	}
}

// SetLogger sets where the registry reports what it kills.
func (r *Registry) SetLogger(l *log.Logger) {
	r.mx.Lock()
	r.logger = l
	r.mx.Unlock()
}

func (r *Registry) add(w *Worker) {
	r.mx.Lock()
	r.workers[w] = true
	r.forked = append(r.forked, w.pid)
	r.mx.Unlock()
}

func (r *Registry) remove(w *Worker) {
	r.mx.Lock()
	delete(r.workers, w)
	r.mx.Unlock()
}

// Live returns the number of workers not yet reaped.
func (r *Registry) Live() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.workers)
}

// Forked returns the pid of every worker ever registered, in fork order.
func (r *Registry) Forked() []int {
	r.mx.Lock()
	defer r.mx.Unlock()
	rv := make([]int, len(r.forked))
	copy(rv, r.forked)
	return rv
}

// KillAll sends SIGKILL to the process group of every live worker, then
// waits a bounded time for them to be reaped.  It returns how many workers
// it killed.
func (r *Registry) KillAll() int {
	r.mx.Lock()
	workers := make([]*Worker, 0, len(r.workers))
	for w := range r.workers {
		workers = append(workers, w)
	}
	logger := r.logger
	r.mx.Unlock()

	for _, w := range workers {
		logger.Printf("Killing worker pid %d (%s)", w.Pid(), w.proc.Path())
		w.killGroup()
	}
	deadline := time.After(killWait)
	for _, w := range workers {
		select {
		case <-w.Done():
		case <-deadline:
			return len(workers)
		}
	}
	return len(workers)
}

// HandleSignals kills every worker and exits when one of sigs arrives.  The
// exit code is 128 plus the signal number.  The returned function removes
// the handler.
func (r *Registry) HandleSignals(sigs ...os.Signal) func() {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	quit := make(chan struct{})
	signal.Notify(ch, sigs...)
	go func() {
		select {
		case sig := <-ch:
			r.mx.Lock()
			logger, exit := r.logger, r.exit
			r.mx.Unlock()
			logger.Printf("Caught %v, killing workers", sig)
			r.KillAll()
			code := 1
			if s, ok := sig.(syscall.Signal); ok {
				code = 128 + int(s)
			}
			exit(code)
		case <-quit:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}

// Recover kills every worker if the program is panicking, then lets the
// panic continue.  It must be deferred directly:
//
//	defer reg.Recover()
func (r *Registry) Recover() {
	if v := recover(); v != nil {
		r.KillAll()
		panic(v)
	}
}
