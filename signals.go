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
	"strings"

	"github.com/zoobzio/capitan"
)

// Supervisor events are also published as capitan signals, so that
// observers outside the program's own subscriptions can hook them.
var (
	ProcessListening = capitan.NewSignal(
		"gov.process.listening",
		"Worker is listening",
	)
	ProcessError = capitan.NewSignal(
		"gov.process.error",
		"Worker reported an error",
	)
	ProcessDeath = capitan.NewSignal(
		"gov.process.death",
		"Worker exited",
	)
	ProcessPing = capitan.NewSignal(
		"gov.process.ping",
		"Worker liveness ping",
	)
	ProcessUpdating = capitan.NewSignal(
		"gov.process.updating",
		"Watched files changed",
	)
	ProcessRestarting = capitan.NewSignal(
		"gov.process.restarting",
		"Crashed process is being restarted",
	)
	ProcessFaulty = capitan.NewSignal(
		"gov.process.faulty",
		"Process crashed too soon after start",
	)
)

// Field keys.
var (
	KeyPath     = capitan.NewStringKey("path")
	KeyPid      = capitan.NewIntKey("pid")
	KeyError    = capitan.NewStringKey("error")
	KeyAddress  = capitan.NewStringKey("address")
	KeyChanges  = capitan.NewStringKey("changes")
	KeyRestarts = capitan.NewIntKey("restarts")
)

// publish emits ev.  Fields that do not apply to the event are sent empty.
// restarts is passed in because reading it here would need the supervisor
// lock.
func publish(ev Event, restarts int) {
	sig := ProcessFaulty
	switch ev.Kind {
	case EventListening:
		sig = ProcessListening
	case EventError:
		sig = ProcessError
	case EventDeath:
		sig = ProcessDeath
	case EventPing:
		sig = ProcessPing
	case EventUpdating:
		sig = ProcessUpdating
	case EventRestarting:
		sig = ProcessRestarting
	}

	pid := 0
	if ev.Worker != nil {
		pid = ev.Worker.Pid()
	}
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	addr := ""
	if ev.Address != nil {
		addr = ev.Address.String()
	}
	capitan.Emit(context.Background(), sig,
		KeyPath.Field(ev.Process.Path()),
		KeyPid.Field(pid),
		KeyRestarts.Field(restarts),
		KeyError.Field(msg),
		KeyAddress.Field(addr),
		KeyChanges.Field(strings.Join(ev.Changes, ",")),
	)
}
