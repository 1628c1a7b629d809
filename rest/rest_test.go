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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/brianloveswords/gov"
)

func withServer(t *testing.T, fn func(s *gov.Supervisor, h *Handler, c *Client)) {
	s := gov.NewSupervisor(nil, gov.Config{})
	h := NewHandler(s)
	srv := httptest.NewServer(h)
	defer func() {
		srv.Close()
		s.Shutdown()
	}()
	fn(s, h, NewClient(srv.URL))
}

func TestProcesses(t *testing.T) {
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing")

	Convey("Listing, adding and inspecting processes", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			ids, tag, e := c.WatchProcesses(ctx, "", 0)
			So(e, ShouldBeNil)
			So(ids, ShouldBeEmpty)
			So(tag, ShouldNotEqual, "")

			// Same etag, no wait: not modified.
			ids, again, e := c.WatchProcesses(ctx, tag, 0)
			So(e, ShouldBeNil)
			So(ids, ShouldBeNil)
			So(again, ShouldEqual, tag)

			pi, e := c.Add(ctx, missing, gov.Options{Restart: gov.Bool(false)}, false)
			So(e, ShouldBeNil)
			So(pi.Path, ShouldEqual, missing)
			So(pi.State, ShouldEqual, "idle")
			So(pi.ExitCode, ShouldEqual, -1)

			ids, tag2, e := c.WatchProcesses(ctx, tag, time.Second)
			So(e, ShouldBeNil)
			So(ids, ShouldResemble, []string{pi.ID})
			So(tag2, ShouldNotEqual, tag)

			got, e := c.Process(ctx, pi.ID)
			So(e, ShouldBeNil)
			So(got.ID, ShouldEqual, pi.ID)
			So(got.Options.Restarting(), ShouldBeFalse)
		})
	})

	Convey("Unknown processes are 404", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			_, e := c.Process(ctx, "nope")
			So(e, ShouldNotBeNil)
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)

			e = c.Start(ctx, "nope")
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("A bad body is rejected", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			res, e := http.Post(c.base+"/processes", mimeJson, strings.NewReader("{"))
			So(e, ShouldBeNil)
			res.Body.Close()
			So(res.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestActions(t *testing.T) {
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing")

	Convey("Starting a missing program reports a LoadError", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			pi, e := c.Add(ctx, missing, gov.Options{}, false)
			So(e, ShouldBeNil)

			So(c.Start(ctx, pi.ID), ShouldBeNil)

			var got *ProcessInfo
			tag := ""
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				p, t2, e := c.WatchProcess(ctx, pi.ID, tag, time.Second)
				So(e, ShouldBeNil)
				if p != nil {
					got, tag = p, t2
					if len(got.Errors) > 0 && got.ExitCode >= 0 {
						break
					}
				}
			}
			So(got, ShouldNotBeNil)
			So(got.Errors, ShouldNotBeEmpty)
			So(got.Errors[0].Name, ShouldEqual, "LoadError")
			So(got.ExitCode, ShouldEqual, 127)

			So(c.Stop(ctx, pi.ID), ShouldBeNil)
			So(c.Kill(ctx, pi.ID, "TERM"), ShouldBeNil)
			So(c.Kill(ctx, pi.ID, ""), ShouldBeNil)

			e = c.Kill(ctx, pi.ID, "BOGUS")
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusBadRequest)

			So(c.Restart(ctx, pi.ID), ShouldBeNil)
			got, e = c.Process(ctx, pi.ID)
			So(e, ShouldBeNil)
			So(got.Restarts, ShouldEqual, 1)

			So(c.Watch(ctx, pi.ID), ShouldBeNil)
			got, e = c.Process(ctx, pi.ID)
			So(e, ShouldBeNil)
			So(got.Watching, ShouldBeTrue)
		})
	})
}

func TestLogs(t *testing.T) {
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "missing")

	Convey("Logs are served and can be waited on", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			recs, tag, e := c.Log(ctx, "", 0)
			So(e, ShouldBeNil)
			So(tag, ShouldNotEqual, "")

			s.Logger().Printf("hello there")
			recs, tag2, e := c.Log(ctx, tag, time.Second)
			So(e, ShouldBeNil)
			So(tag2, ShouldNotEqual, tag)
			So(recs, ShouldNotBeEmpty)
			So(recs[len(recs)-1].Text, ShouldContainSubstring, "hello there")

			pi, e := c.Add(ctx, missing, gov.Options{}, false)
			So(e, ShouldBeNil)
			p, e := s.FindProcess(pi.ID)
			So(e, ShouldBeNil)
			p.Logger().Printf("just me")

			recs, _, e = c.ProcessLog(ctx, pi.ID, "", 0)
			So(e, ShouldBeNil)
			So(recs, ShouldNotBeEmpty)
			So(recs[len(recs)-1].Text, ShouldContainSubstring, "just me")

			// Process lines also reach the supervisor log.
			recs, _, e = c.Log(ctx, "", 0)
			So(e, ShouldBeNil)
			So(recs[len(recs)-1].Text, ShouldContainSubstring, "just me")
		})
	})
}

func TestAuth(t *testing.T) {
	ctx := context.Background()

	Convey("Basic authentication guards everything", t, func() {
		withServer(t, func(s *gov.Supervisor, h *Handler, c *Client) {
			So(h.SetAuth("admin", []byte("not a hash")), ShouldNotBeNil)

			hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
			So(e, ShouldBeNil)
			So(h.SetAuth("admin", hash), ShouldBeNil)

			_, e = c.Processes(ctx)
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)

			c.SetAuth("admin", "wrong")
			_, e = c.Processes(ctx)
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusUnauthorized)

			c.SetAuth("admin", "secret")
			ids, e := c.Processes(ctx)
			So(e, ShouldBeNil)
			So(ids, ShouldBeEmpty)
		})
	})
}
