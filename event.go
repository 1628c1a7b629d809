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
	"sync"

	"github.com/brianloveswords/gov/wire"
)

// ErrorRecord and Address are the worker's own types, passed through as is.
type (
	ErrorRecord = wire.ErrorRecord
	Address     = wire.Address
)

// EventKind names what happened.  Error, Listening, Death and Ping come from
// workers.  Updating comes from the file watcher.  Restarting and Faulty are
// decided by the supervisor.
type EventKind int

const (
	EventError EventKind = iota
	EventListening
	EventDeath
	EventPing
	EventUpdating
	EventRestarting
	EventFaulty
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventListening:
		return "listening"
	case EventDeath:
		return "death"
	case EventPing:
		return "ping"
	case EventUpdating:
		return "updating"
	case EventRestarting:
		return "restarting"
	case EventFaulty:
		return "faulty"
	}
	return "unknown"
}

// Event is delivered to subscribers.  Which payload is set depends on Kind:
// Err for Error, Restarting and Faulty, Address for Listening, and Changes
// for Updating.  Worker is the worker the event concerns, if any.
type Event struct {
	Kind    EventKind
	Err     *ErrorRecord
	Address *Address
	Changes []string
	Worker  *Worker
	Process *Process
}

// Handler receives events.  Handlers run one at a time on the supervisor's
// dispatch goroutine, and may call back into the Process or Supervisor.
type Handler func(Event)

type subscriber struct {
	id int
	fn Handler
}

type observers struct {
	subs []subscriber
	next int
	mx   sync.Mutex
}

func (o *observers) subscribe(fn Handler) func() {
	o.mx.Lock()
	o.next++
	id := o.next
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mx.Unlock()

	return func() {
		o.mx.Lock()
		defer o.mx.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) notify(ev Event) {
	o.mx.Lock()
	subs := o.subs
	o.mx.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
