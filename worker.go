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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/brianloveswords/gov/wire"
)

// How long to let a worker's event pipe drain after the worker has exited.
// Only a grandchild holding the pipe open can make this matter.
const drainTime = time.Second

// Worker is one child process running a target.  A Worker is never reused:
// once it exits, or is killed, its Process forks a new one.
type Worker struct {
	proc     *Process
	cmd      *exec.Cmd
	pid      int
	enc      *wire.Encoder
	code     int
	sawDeath bool
	done     chan struct{}
	mx       sync.Mutex
}

// Pid returns the operating system process ID, or 0 if the fork failed.
func (w *Worker) Pid() int {
	return w.pid
}

// ExitCode is -1 until the worker exits.  A worker killed by a signal
// reports 128 plus the signal number.
func (w *Worker) ExitCode() int {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.code
}

// Done is closed once the worker has exited and its exit has been queued
// for delivery.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Exited is true once Done is closed.
func (w *Worker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Process returns the owner of this worker.
func (w *Worker) Process() *Process {
	return w.proc
}

// send writes a command to the worker.
func (w *Worker) send(command string, opts *wire.StartOptions) error {
	if w.enc == nil {
		return ErrNoChannel
	}
	return w.enc.Command(command, opts)
}

// signal delivers sig to the worker directly.
func (w *Worker) signal(sig os.Signal) error {
	if w.cmd == nil || w.Exited() {
		return nil
	}
	if e := w.cmd.Process.Signal(sig); e != nil && !errors.Is(e, os.ErrProcessDone) {
		return e
	}
	return nil
}

// killGroup sends SIGKILL to the worker's whole process group, so that
// anything the target spawned goes with it.
func (w *Worker) killGroup() {
	if w.cmd == nil || w.Exited() {
		return
	}
	if e := syscall.Kill(-w.pid, syscall.SIGKILL); e != nil && !errors.Is(e, syscall.ESRCH) {
		w.cmd.Process.Kill()
	}
}

func loadError(path string, e error, p *Process) *ErrorRecord {
	return wire.NewErrorRecord("LoadError",
		fmt.Sprintf("cannot find module '%s': %v", path, e),
		"", time.Now())
}

// fork starts a worker for p.  It never fails outright: a worker that could
// not be started is returned already exited, with a load error and a death
// queued for delivery.  Call with the supervisor lock held.
func fork(p *Process) *Worker {
	s := p.sup
	w := &Worker{proc: p, code: -1, done: make(chan struct{})}

	failed := func(e error) *Worker {
		p.logger.Printf("Failed to start: %v", e)
		w.code = 127
		close(w.done)
		rec := loadError(p.path, e, p)
		s.post(func() {
			p.relay(w, Event{Kind: EventError, Err: rec})
			p.relay(w, Event{Kind: EventDeath})
		})
		return w
	}

	launch := wire.LaunchConfig{
		Port:    Int(s.cfg.Port),
		Address: s.cfg.Address,
	}
	if s.cfg.PingInterval > 0 {
		launch.PingInterval = s.cfg.PingInterval.Milliseconds()
	}
	env, e := json.Marshal(&launch)
	if e != nil {
		return failed(e)
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	pipe := func() (rd, wr *os.File) {
		if e != nil {
			return nil, nil
		}
		if rd, wr, e = os.Pipe(); e == nil {
			files = append(files, rd, wr)
		}
		return rd, wr
	}
	cmdR, cmdW := pipe()
	evR, evW := pipe()
	outR, outW := pipe()
	errR, errW := pipe()
	if e != nil {
		closeAll()
		return failed(e)
	}

	opts := p.options
	cmd := exec.Command(p.path, opts.Args...)
	cmd.Dir = filepath.Dir(p.path)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Env = append(cmd.Env, wire.EnvOptions+"="+string(env))
	cmd.ExtraFiles = []*os.File{cmdR, evW} // fd 3, fd 4
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = sysProcAttr()

	if e = cmd.Start(); e != nil {
		closeAll()
		return failed(e)
	}

	// The child has its copies.
	cmdR.Close()
	evW.Close()
	outW.Close()
	errW.Close()

	w.cmd = cmd
	w.pid = cmd.Process.Pid
	w.enc = wire.NewEncoder(cmdW)
	s.reg.add(w)
	p.logger.Printf("Started worker pid %d", w.pid)

	go logLines(p.logger, outR, "stdout> ")
	go logLines(p.logger, errR, "stderr> ")

	read := make(chan struct{})
	go w.read(evR, read)
	go w.wait(evR, read)
	return w
}

// read relays events until the worker closes its end of the channel.
func (w *Worker) read(r io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer r.Close()
	p := w.proc
	dec := wire.NewDecoder(r)
	for {
		m, e := dec.Message()
		if e != nil {
			if errors.Is(e, wire.ErrMalformed) {
				p.logger.Printf("Worker sent %v", e)
				continue
			}
			return
		}
		ev := Event{}
		switch m.Event {
		case wire.EventListening:
			ev.Kind = EventListening
			if ev.Address, e = m.DecodeAddress(); e != nil {
				p.logger.Printf("Bad listening address: %v", e)
			}
		case wire.EventError:
			ev.Kind = EventError
			if ev.Err, e = m.DecodeError(); e != nil {
				ev.Err = wire.NewErrorRecord("Error", string(m.Body), "", time.Now())
			}
		case wire.EventDeath:
			ev.Kind = EventDeath
			w.sawDeath = true
		case wire.EventPing:
			ev.Kind = EventPing
		default:
			p.logger.Printf("Unknown worker event %q", m.Event)
			continue
		}
		p.sup.post(func() { p.relay(w, ev) })
	}
}

// wait reaps the worker.  A worker that exits without saying so gets its
// death delivered for it, after anything it did say.
func (w *Worker) wait(r io.Closer, read chan struct{}) {
	p := w.proc
	e := w.cmd.Wait()

	select {
	case <-read:
	case <-time.After(drainTime):
		r.Close()
		<-read
	}
	w.enc.Close()
	p.sup.reg.remove(w)

	code := w.cmd.ProcessState.ExitCode()
	if ws, ok := w.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		code = 128 + int(ws.Signal())
	}
	w.mx.Lock()
	w.code = code
	w.mx.Unlock()

	if e != nil {
		p.logger.Printf("Worker pid %d exited: %v", w.pid, e)
	} else {
		p.logger.Printf("Worker pid %d exited", w.pid)
	}

	synth := !w.sawDeath
	p.sup.post(func() {
		if synth {
			p.relay(w, Event{Kind: EventDeath})
		}
		p.exited(w)
	})
	close(w.done)
}
