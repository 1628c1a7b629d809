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

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestAddressEncoding(t *testing.T) {
	Convey("TCP addresses encode as objects", t, func() {
		a := &Address{Port: 4321, Address: "127.0.0.1", Family: "IPv4"}
		b, e := json.Marshal(a)
		So(e, ShouldBeNil)
		So(string(b), ShouldEqual,
			`{"port":4321,"address":"127.0.0.1","family":"IPv4"}`)

		back := &Address{}
		So(json.Unmarshal(b, back), ShouldBeNil)
		So(*back, ShouldResemble, *a)
		So(back.IsSocket(), ShouldBeFalse)
		So(back.String(), ShouldEqual, "127.0.0.1:4321")
	})

	Convey("Socket addresses encode as bare strings", t, func() {
		a := &Address{Path: "/tmp/gov.sock"}
		b, e := json.Marshal(a)
		So(e, ShouldBeNil)
		So(string(b), ShouldEqual, `"/tmp/gov.sock"`)

		back := &Address{}
		So(json.Unmarshal(b, back), ShouldBeNil)
		So(back.IsSocket(), ShouldBeTrue)
		So(back.String(), ShouldEqual, "/tmp/gov.sock")
	})

	Convey("Listener addresses convert unmodified", t, func() {
		a := FromNetAddr(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 80})
		So(a.Port, ShouldEqual, 80)
		So(a.Address, ShouldEqual, "127.0.0.1")
		So(a.Family, ShouldEqual, "IPv4")

		a = FromNetAddr(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 81})
		So(a.Family, ShouldEqual, "IPv6")

		a = FromNetAddr(&net.UnixAddr{Name: "/run/x.sock", Net: "unix"})
		So(a.Path, ShouldEqual, "/run/x.sock")
	})
}

func TestErrorRecord(t *testing.T) {
	Convey("Error records carry millisecond timestamps", t, func() {
		now := time.UnixMilli(1700000000123)
		r := NewErrorRecord("Error", "lol", "stack", now)
		So(r.Timestamp, ShouldEqual, 1700000000123)
		So(r.Time().Equal(now), ShouldBeTrue)
		So(r.Error(), ShouldEqual, "Error: lol")

		var e error = r
		var back *ErrorRecord
		So(errors.As(e, &back), ShouldBeTrue)
	})
}

func TestChannel(t *testing.T) {
	Convey("Given a channel over a buffer", t, func() {
		buf := &bytes.Buffer{}
		enc := NewEncoder(buf)

		Convey("Commands round trip in order", func() {
			port := 0
			So(enc.Command(CommandStart, &StartOptions{
				Path: "/srv/app", Port: &port, Address: "127.0.0.1",
			}), ShouldBeNil)
			So(enc.Command(CommandStop, nil), ShouldBeNil)
			So(strings.Count(buf.String(), "\n"), ShouldEqual, 2)

			dec := NewDecoder(buf)
			c, e := dec.Command()
			So(e, ShouldBeNil)
			So(c.Command, ShouldEqual, CommandStart)
			So(c.Options, ShouldNotBeNil)
			So(c.Options.Path, ShouldEqual, "/srv/app")
			So(*c.Options.Port, ShouldEqual, 0)

			c, e = dec.Command()
			So(e, ShouldBeNil)
			So(c.Command, ShouldEqual, CommandStop)
			So(c.Options, ShouldBeNil)

			_, e = dec.Command()
			So(e, ShouldEqual, io.EOF)
		})

		Convey("Events carry typed bodies", func() {
			So(enc.Event(EventListening, &Address{Path: "/tmp/s"}), ShouldBeNil)
			So(enc.Event(EventError, NewErrorRecord("TypeError",
				"target does not listen", "", time.Now())), ShouldBeNil)
			So(enc.Event(EventDeath, nil), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, `{"event":"death"}`)

			dec := NewDecoder(buf)
			m, e := dec.Message()
			So(e, ShouldBeNil)
			So(m.Event, ShouldEqual, EventListening)
			a, e := m.DecodeAddress()
			So(e, ShouldBeNil)
			So(a.Path, ShouldEqual, "/tmp/s")

			m, e = dec.Message()
			So(e, ShouldBeNil)
			r, e := m.DecodeError()
			So(e, ShouldBeNil)
			So(r.Name, ShouldEqual, "TypeError")
			So(r.Message, ShouldContainSubstring, "listen")

			m, e = dec.Message()
			So(e, ShouldBeNil)
			So(m.Event, ShouldEqual, EventDeath)
			So(len(m.Body), ShouldEqual, 0)
		})

		Convey("Garbage lines are reported", func() {
			buf.WriteString("not json\n")
			_, e := NewDecoder(buf).Message()
			So(e, ShouldNotBeNil)
			So(errors.Is(e, ErrMalformed), ShouldBeTrue)
		})

		Convey("A closed encoder refuses writes", func() {
			So(enc.Close(), ShouldBeNil)
			So(enc.Event(EventPing, nil), ShouldEqual, ErrClosed)
		})
	})

	Convey("A failed write closes the encoder", t, func() {
		enc := NewEncoder(failWriter{})
		e := enc.Event(EventPing, nil)
		So(errors.Is(e, ErrClosed), ShouldBeTrue)
		So(enc.Event(EventPing, nil), ShouldEqual, ErrClosed)
	})

	Convey("Launch config ping interval", t, func() {
		So(LaunchConfig{}.Ping(time.Second), ShouldEqual, time.Second)
		So(LaunchConfig{PingInterval: 25}.Ping(time.Second),
			ShouldEqual, 25*time.Millisecond)
	})
}
