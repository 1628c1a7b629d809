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

// Package worker is the runtime a target program links in to be supervised.
// A target calls Run from main, handing over a value that can serve on a
// listener.  The runtime then takes its orders from the supervisor over the
// inherited message channel, binds where it is told, reports the address
// it got, and turns every crash into an error record followed by a death
// notice before exiting.
//
//	func main() {
//		srv := &http.Server{Handler: mux}
//		if err := worker.Run(srv); err != nil {
//			log.Fatal(err)
//		}
//	}
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/zoobzio/clockz"

	"github.com/brianloveswords/gov/wire"
)

// Server is what a target must implement.  Serve is the listen capability;
// its return marks the socket closed.  Shutdown begins a graceful close and
// must cause Serve to return.  *http.Server satisfies it.
type Server interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

const (
	DefaultAddress = "127.0.0.1"
	DefaultPort    = 0
	DefaultPing    = 30 * time.Second
)

// ErrNotSupervised is returned by Run when the program was started by hand
// rather than by a supervisor.
var ErrNotSupervised = errors.New("not launched by a supervisor")

// Run serves target under supervision.  It only returns on a launch error;
// otherwise the process exits when the target is done.
func Run(target interface{}) error {
	env, ok := os.LookupEnv(wire.EnvOptions)
	if !ok {
		return ErrNotSupervised
	}
	cfg := wire.LaunchConfig{}
	if env != "" {
		if e := json.Unmarshal([]byte(env), &cfg); e != nil {
			return fmt.Errorf("bad %s: %w", wire.EnvOptions, e)
		}
	}
	in := os.NewFile(wire.CommandFD, "gov-commands")
	out := os.NewFile(wire.EventFD, "gov-events")
	if in == nil || out == nil {
		return ErrNotSupervised
	}
	if _, e := in.Stat(); e != nil {
		return ErrNotSupervised
	}
	if _, e := out.Stat(); e != nil {
		return ErrNotSupervised
	}

	a := newAgent(target, cfg, in, out)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	a.sigs = sigs
	a.begin()
	a.loop()
	return nil
}

type agent struct {
	target interface{}
	cfg    wire.LaunchConfig
	in     *wire.Decoder
	out    *wire.Encoder
	clock  clockz.Clock
	logger *log.Logger
	exit   func(int)
	sigs   <-chan os.Signal

	server   Server
	started  bool
	stopping bool
	mx       sync.Mutex

	death sync.Once
	quit  sync.Once
	done  chan struct{}
}

func newAgent(target interface{}, cfg wire.LaunchConfig, in io.Reader, out io.Writer) *agent {
	return &agent{
		target: target,
		cfg:    cfg,
		in:     wire.NewDecoder(in),
		out:    wire.NewEncoder(out),
		clock:  clockz.RealClock,
		logger: log.New(os.Stderr, "gov-worker: ", log.LstdFlags),
		exit:   os.Exit,
		done:   make(chan struct{}),
	}
}

// begin starts the background goroutines.  It is separate from loop so the
// ping timer exists before anyone can advance a clock.
func (a *agent) begin() {
	t := a.clock.NewTimer(a.cfg.Ping(DefaultPing))
	go a.pinger(t)
	go a.signals()
}

func (a *agent) loop() {
	defer a.recoverPanic()
	for {
		c, e := a.in.Command()
		if a.exited() {
			return
		}
		if e != nil {
			if errors.Is(e, wire.ErrMalformed) {
				a.logger.Printf("%v", e)
				continue
			}
			// The parent is gone.  There is no one to report to.
			a.terminate(0)
			return
		}
		switch c.Command {
		case wire.CommandStart:
			a.start(c.Options)
		case wire.CommandStop:
			a.stop()
		default:
			a.logger.Printf("unknown command %q", c.Command)
		}
	}
}

func (a *agent) exited() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// resolve picks the bind parameters.  A value given with the start command
// wins over the launch config, which wins over the defaults.
func (a *agent) resolve(o *wire.StartOptions) (network, address string) {
	if o == nil {
		o = &wire.StartOptions{}
	}
	if o.Socket != "" {
		return "unix", o.Socket
	}
	if o.Port == nil && o.Address == "" && a.cfg.Socket != "" {
		return "unix", a.cfg.Socket
	}
	port := DefaultPort
	if a.cfg.Port != nil {
		port = *a.cfg.Port
	}
	if o.Port != nil {
		port = *o.Port
	}
	host := DefaultAddress
	if a.cfg.Address != "" {
		host = a.cfg.Address
	}
	if o.Address != "" {
		host = o.Address
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

func (a *agent) start(o *wire.StartOptions) {
	a.mx.Lock()
	if a.started {
		a.mx.Unlock()
		a.logger.Printf("already started, ignoring start")
		return
	}
	a.started = true
	a.mx.Unlock()

	srv, ok := a.target.(Server)
	if !ok {
		a.fail(wire.NewErrorRecord("TypeError",
			fmt.Sprintf("%T cannot listen: it has no Serve(net.Listener) method", a.target),
			string(debug.Stack()), a.clock.Now()))
		return
	}

	network, address := a.resolve(o)
	l, e := net.Listen(network, address)
	if e != nil {
		a.fail(wire.NewErrorRecord("Error", e.Error(),
			string(debug.Stack()), a.clock.Now()))
		return
	}

	a.mx.Lock()
	a.server = srv
	a.mx.Unlock()

	if !a.send(wire.EventListening, wire.FromNetAddr(l.Addr())) {
		return
	}
	go a.serve(srv, l)
}

func (a *agent) serve(srv Server, l net.Listener) {
	defer a.recoverPanic()
	e := srv.Serve(l)

	a.mx.Lock()
	stopping := a.stopping
	a.mx.Unlock()

	switch {
	case stopping:
		// stop finishes once Shutdown returns
	case e == nil, errors.Is(e, net.ErrClosed), errors.Is(e, http.ErrServerClosed):
		a.finish(0)
	default:
		a.fail(wire.NewErrorRecord("Error", e.Error(), "", a.clock.Now()))
	}
}

func (a *agent) stop() {
	a.mx.Lock()
	if a.stopping {
		a.mx.Unlock()
		return
	}
	a.stopping = true
	srv := a.server
	a.mx.Unlock()

	if srv == nil {
		a.finish(0)
		return
	}
	go func() {
		defer a.recoverPanic()
		if e := srv.Shutdown(context.Background()); e != nil {
			a.logger.Printf("shutdown: %v", e)
		}
		a.finish(0)
	}()
}

func (a *agent) pinger(t clockz.Timer) {
	defer a.recoverPanic()
	defer t.Stop()
	d := a.cfg.Ping(DefaultPing)
	for {
		select {
		case <-a.done:
			return
		case <-t.C():
			if !a.send(wire.EventPing, nil) {
				return
			}
			t.Reset(d)
		}
	}
}

func (a *agent) signals() {
	for {
		select {
		case <-a.done:
			return
		case _, ok := <-a.sigs:
			if !ok {
				return
			}
			a.stop()
		}
	}
}

// send reports false if the channel is gone, in which case the worker has
// already been told to exit.
func (a *agent) send(event string, body interface{}) bool {
	if a.exited() {
		return false
	}
	if e := a.out.Event(event, body); e != nil {
		a.terminate(1)
		return false
	}
	return true
}

func (a *agent) sendDeath() {
	a.death.Do(func() {
		a.send(wire.EventDeath, nil)
	})
}

// fail reports r and exits non-zero.  The error always precedes the death.
func (a *agent) fail(r *wire.ErrorRecord) {
	a.logger.Printf("%v", r)
	if a.send(wire.EventError, r) {
		a.finish(1)
	}
}

func (a *agent) finish(code int) {
	a.sendDeath()
	a.terminate(code)
}

func (a *agent) terminate(code int) {
	a.quit.Do(func() {
		close(a.done)
		a.out.Close()
		a.exit(code)
	})
}

func (a *agent) recoverPanic() {
	if v := recover(); v != nil {
		a.fail(panicRecord(v, a.clock.Now()))
	}
}

func panicRecord(v interface{}, now time.Time) *wire.ErrorRecord {
	name := "Error"
	var msg string
	switch x := v.(type) {
	case goruntime.Error:
		name = "RuntimeError"
		msg = x.Error()
	case error:
		msg = x.Error()
	default:
		msg = fmt.Sprint(v)
	}
	return wire.NewErrorRecord(name, msg, string(debug.Stack()), now)
}
