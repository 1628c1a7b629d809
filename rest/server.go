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

package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/brianloveswords/gov"
)

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s    *gov.Supervisor
	r    *mux.Router
	user string
	hash []byte
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (e *Error) write(w http.ResponseWriter) {
	b, _ := json.Marshal(e)
	w.Header().Set("Content-Type", mimeJson)
	w.WriteHeader(e.Code)
	w.Write(b)
}

// pollArgs returns the etag and wait of a long poll, if this is one.
func pollArgs(r *http.Request) (int64, time.Duration, bool) {
	old, ok := parseEtag(r.Header.Get(PollEtagHeader))
	if !ok {
		return 0, 0, false
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0, 0, false
	}
	d := time.Duration(secs) * time.Second
	if d > MaxPollTime {
		d = MaxPollTime
	}
	return old, d, true
}

// notModified answers 304 if the client already has serial.
func notModified(w http.ResponseWriter, r *http.Request, serial int64) bool {
	tag := etag(serial)
	w.Header().Set("Etag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) listProcesses(w http.ResponseWriter, r *http.Request) {
	if old, d, ok := pollArgs(r); ok {
		h.s.WatchProcesses(old, d)
	}
	procs, serial := h.s.Processes()
	if notModified(w, r, serial) {
		return
	}
	l := make([]string, 0, len(procs))
	for _, p := range procs {
		l = append(l, p.ID())
	}
	h.writeJson(w, l)
}

func (h *Handler) addProcess(w http.ResponseWriter, r *http.Request) {
	var np NewProcess
	if e := json.NewDecoder(r.Body).Decode(&np); e != nil || np.Path == "" {
		(&Error{http.StatusBadRequest, "Bad process description"}).write(w)
		return
	}
	mk := h.s.MakeProcess
	if np.Start {
		mk = h.s.StartProcess
	}
	p, e := mk(np.Path, np.Options)
	if e != nil {
		(&Error{http.StatusBadRequest, e.Error()}).write(w)
		return
	}
	h.writeJson(w, info(p))
}

func (h *Handler) findProcess(r *http.Request) (*gov.Process, *Error) {
	id := mux.Vars(r)["id"]
	if p, e := h.s.FindProcess(id); e == nil {
		return p, nil
	}
	return nil, &Error{http.StatusNotFound, "Process not found"}
}

func info(p *gov.Process) *ProcessInfo {
	i := &ProcessInfo{
		ID:          p.ID(),
		Path:        p.Path(),
		State:       p.State().String(),
		ExitCode:    -1,
		Restarts:    p.Restarts(),
		Watching:    p.Watching(),
		LastStarted: p.LastStarted(),
		Address:     p.Address(),
		Errors:      p.Errors(),
		Options:     p.Options(),
	}
	if w := p.Current(); w != nil {
		i.Pid = w.Pid()
		i.ExitCode = w.ExitCode()
	}
	return i
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProcess(r)
	if e != nil {
		e.write(w)
		return
	}
	if old, d, ok := pollArgs(r); ok {
		deadline := time.Now().Add(d)
		for {
			cur := h.s.Serial()
			if p.Serial() != old {
				break
			}
			rem := time.Until(deadline)
			if rem <= 0 {
				break
			}
			h.s.WatchSerial(cur, rem)
		}
	}
	if notModified(w, r, p.Serial()) {
		return
	}
	h.writeJson(w, info(p))
}

func (h *Handler) action(fn func(p *gov.Process, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, e := h.findProcess(r)
		if e != nil {
			e.write(w)
			return
		}
		if err := fn(p, r); err != nil {
			(&Error{http.StatusBadRequest, err.Error()}).write(w)
			return
		}
		h.writeJson(w, ok)
	}
}

var signals = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"KILL": syscall.SIGKILL,
	"QUIT": syscall.SIGQUIT,
	"TERM": syscall.SIGTERM,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
}

func kill(p *gov.Process, r *http.Request) error {
	name := strings.TrimPrefix(strings.ToUpper(r.URL.Query().Get("signal")), "SIG")
	if name == "" {
		return p.Kill(nil)
	}
	if sig, ok := signals[name]; ok {
		return p.Kill(sig)
	}
	if n, e := strconv.Atoi(name); e == nil && n > 0 {
		return p.Kill(syscall.Signal(n))
	}
	return &Error{http.StatusBadRequest, "Unknown signal " + name}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	if old, d, ok := pollArgs(r); ok {
		h.s.WatchLog(old, d)
	}
	recs, id := h.s.GetLog(0)
	if notModified(w, r, id) {
		return
	}
	h.writeJson(w, recs)
}

func (h *Handler) getProcessLog(w http.ResponseWriter, r *http.Request) {
	p, e := h.findProcess(r)
	if e != nil {
		e.write(w)
		return
	}
	if old, d, ok := pollArgs(r); ok {
		p.WatchLog(old, d)
	}
	recs, id := p.GetLog(0)
	if notModified(w, r, id) {
		return
	}
	h.writeJson(w, recs)
}

// SetAuth requires HTTP basic authentication as user, whose password must
// match the bcrypt hash.
func (h *Handler) SetAuth(user string, hash []byte) error {
	if _, e := bcrypt.Cost(hash); e != nil {
		return e
	}
	h.user = user
	h.hash = hash
	return nil
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.hash == nil {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != h.user {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !h.authorized(req) {
		w.Header().Set("WWW-Authenticate", `Basic realm="gov"`)
		(&Error{http.StatusUnauthorized, "Unauthorized"}).write(w)
		return
	}
	h.r.ServeHTTP(w, req)
}

func NewHandler(s *gov.Supervisor) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, r: r}
	r.HandleFunc("/processes", h.listProcesses).Methods("GET")
	r.HandleFunc("/processes", h.addProcess).Methods("POST")
	r.HandleFunc("/processes/{id}", h.getProcess).Methods("GET")
	r.HandleFunc("/processes/{id}/log", h.getProcessLog).Methods("GET")
	r.HandleFunc("/processes/{id}/start", h.action(
		func(p *gov.Process, _ *http.Request) error { return p.Start() })).Methods("POST")
	r.HandleFunc("/processes/{id}/stop", h.action(
		func(p *gov.Process, _ *http.Request) error { return p.Stop() })).Methods("POST")
	r.HandleFunc("/processes/{id}/restart", h.action(
		func(p *gov.Process, _ *http.Request) error { return p.Restart() })).Methods("POST")
	r.HandleFunc("/processes/{id}/watch", h.action(
		func(p *gov.Process, _ *http.Request) error { return p.Watch() })).Methods("POST")
	r.HandleFunc("/processes/{id}/kill", h.action(kill)).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	return h
}
