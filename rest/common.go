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

// Package rest is an HTTP interface to a gov.Supervisor, and a client for
// it.  Every GET answers with an Etag.  Sending that Etag back in the
// X-Gov-Poll-Etag header, along with a wait in seconds in X-Gov-Poll-Time,
// turns the request into a long poll: the server holds it until the
// resource changes or the wait runs out.
package rest

import (
	"strconv"
	"time"

	"github.com/brianloveswords/gov"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	PollEtagHeader = "X-Gov-Poll-Etag"
	PollTimeHeader = "X-Gov-Poll-Time"

	// MaxPollTime caps how long the server holds a long poll.
	MaxPollTime = 300 * time.Second
)

var ok struct{}

// ProcessInfo is a snapshot of one process.
type ProcessInfo struct {
	ID          string             `json:"id"`
	Path        string             `json:"path"`
	State       string             `json:"state"`
	Pid         int                `json:"pid"`
	ExitCode    int                `json:"exitCode"`
	Restarts    int                `json:"restarts"`
	Watching    bool               `json:"watching"`
	LastStarted time.Time          `json:"lastStarted"`
	Address     *gov.Address       `json:"address,omitempty"`
	Errors      []*gov.ErrorRecord `json:"errors"`
	Options     gov.Options        `json:"options"`
}

// NewProcess is the body of a POST to /processes.
type NewProcess struct {
	Path    string      `json:"path"`
	Options gov.Options `json:"options"`
	Start   bool        `json:"start"`
}

type LogRecord = gov.LogRecord

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func etag(serial int64) string {
	return strconv.FormatInt(serial, 10)
}

func parseEtag(s string) (int64, bool) {
	n, e := strconv.ParseInt(s, 10, 64)
	return n, e == nil
}
