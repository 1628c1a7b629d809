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

// Package wire defines the message channel spoken between a supervisor
// and its workers.  Messages are JSON objects, one per line.  The parent
// writes commands on the worker's file descriptor 3, and reads events from
// the worker's file descriptor 4.  Launch-time configuration travels
// separately, in the GOV_OPTIONS environment variable, and is read once
// when the worker starts.
//
// Parent to child:
//
//	{"command":"start","options":{"path":"/srv/app","port":0,"address":"127.0.0.1"}}
//	{"command":"stop"}
//
// Child to parent:
//
//	{"event":"listening","body":{"port":41234,"address":"127.0.0.1","family":"IPv4"}}
//	{"event":"error","body":{"name":"Error","message":"lol","stack":"...","timestamp":1700000000000}}
//	{"event":"death"}
//	{"event":"ping"}
//
// Nothing here depends on the worker being written in Go; any program that
// can read and write these lines on the two descriptors can be supervised.
package wire

import (
	"encoding/json"
	"time"
)

// Command names.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Event names.
const (
	EventListening = "listening"
	EventError     = "error"
	EventDeath     = "death"
	EventPing      = "ping"
)

const (
	// EnvOptions names the environment variable carrying the LaunchConfig.
	EnvOptions = "GOV_OPTIONS"

	// CommandFD is the worker's descriptor for commands from the parent.
	CommandFD = 3

	// EventFD is the worker's descriptor for events to the parent.
	EventFD = 4
)

// Command is a parent to child envelope.
type Command struct {
	Command string        `json:"command"`
	Options *StartOptions `json:"options,omitempty"`
}

// StartOptions accompany the start command.  Unset fields fall back to the
// LaunchConfig, and then to the worker's defaults.
type StartOptions struct {
	Path    string `json:"path"`
	Port    *int   `json:"port,omitempty"`
	Address string `json:"address,omitempty"`
	Socket  string `json:"socket,omitempty"`
}

// LaunchConfig is delivered once, at fork time.
type LaunchConfig struct {
	Port         *int   `json:"port,omitempty"`
	Address      string `json:"address,omitempty"`
	Socket       string `json:"socket,omitempty"`
	PingInterval int64  `json:"pingInterval,omitempty"` // milliseconds
}

// Ping returns the configured ping interval, or def if none was given.
func (c LaunchConfig) Ping(def time.Duration) time.Duration {
	if c.PingInterval <= 0 {
		return def
	}
	return time.Duration(c.PingInterval) * time.Millisecond
}

// Message is a child to parent envelope.  Body is kept raw until the
// receiver knows what the event is.
type Message struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// DecodeAddress returns the body of a listening message.
func (m Message) DecodeAddress() (*Address, error) {
	a := &Address{}
	if e := json.Unmarshal(m.Body, a); e != nil {
		return nil, e
	}
	return a, nil
}

// DecodeError returns the body of an error message.
func (m Message) DecodeError() (*ErrorRecord, error) {
	r := &ErrorRecord{}
	if e := json.Unmarshal(m.Body, r); e != nil {
		return nil, e
	}
	return r, nil
}

// ErrorRecord is the structured form of a failure inside a worker.  It is
// what crosses the process boundary in place of the failure itself.
type ErrorRecord struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Stack     string `json:"stack"`
	Timestamp int64  `json:"timestamp"` // milliseconds since the epoch
}

// NewErrorRecord stamps a record with t.
func NewErrorRecord(name, msg, stack string, t time.Time) *ErrorRecord {
	return &ErrorRecord{
		Name:      name,
		Message:   msg,
		Stack:     stack,
		Timestamp: t.UnixMilli(),
	}
}

func (r *ErrorRecord) Error() string {
	if r.Name == "" {
		return r.Message
	}
	return r.Name + ": " + r.Message
}

// Time returns the timestamp as a time.Time.
func (r *ErrorRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}
