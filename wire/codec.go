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
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by an Encoder whose underlying writer has failed
// or been closed.  Once returned, it is returned forever.
var ErrClosed = errors.New("channel closed")

// ErrMalformed wraps a line that is not a valid envelope.  The channel
// itself remains usable.
var ErrMalformed = errors.New("malformed envelope")

// MaxLine bounds a single envelope.  Error records carry stacks, so this
// is generous.
const MaxLine = 1 << 20

// Encoder writes envelopes, one JSON object per line.  It is safe for
// concurrent use; each envelope is written with a single Write call, so
// envelopes never interleave.
type Encoder struct {
	w      io.Writer
	closed bool
	mx     sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v as a single line.
func (e *Encoder) Encode(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	e.mx.Lock()
	defer e.mx.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, err = e.w.Write(b); err != nil {
		e.closed = true
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// Event sends a child to parent envelope.  A nil body is omitted.
func (e *Encoder) Event(name string, body interface{}) error {
	m := Message{Event: name}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		m.Body = b
	}
	return e.Encode(&m)
}

// Command sends a parent to child envelope.
func (e *Encoder) Command(name string, opts *StartOptions) error {
	return e.Encode(&Command{Command: name, Options: opts})
}

// Close marks the encoder closed, and closes the writer if it can be.
func (e *Encoder) Close() error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if c, ok := e.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Decoder reads envelopes written by an Encoder.  It is not safe for
// concurrent use; each channel has exactly one reader.
type Decoder struct {
	s *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), MaxLine)
	return &Decoder{s: s}
}

// next returns the next non-empty line, or io.EOF.
func (d *Decoder) next() ([]byte, error) {
	for d.s.Scan() {
		if b := d.s.Bytes(); len(b) > 0 {
			return b, nil
		}
	}
	if err := d.s.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Command reads one parent to child envelope.
func (d *Decoder) Command() (*Command, error) {
	b, err := d.next()
	if err != nil {
		return nil, err
	}
	c := &Command{}
	if err = json.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrMalformed, b, err)
	}
	return c, nil
}

// Message reads one child to parent envelope.
func (d *Decoder) Message() (*Message, error) {
	b, err := d.next()
	if err != nil {
		return nil, err
	}
	m := &Message{}
	if err = json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrMalformed, b, err)
	}
	return m, nil
}
