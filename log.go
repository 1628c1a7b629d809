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
	"bufio"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

// LogRecord is one line of log output.
type LogRecord struct {
	Id   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a ring of the most recent MaxLogRecords lines written to it.  It is
// an io.Writer, for use beneath a log.Logger.  Each write advances an ID,
// which clients can hold as an ETag and wait on with Watch.
type Log struct {
	records []LogRecord
	count   int
	id      int64
	cvs     map[*sync.Cond]bool
	mx      sync.Mutex
}

func (l *Log) lock() {
	l.mx.Lock()
}

func (l *Log) unlock() {
	l.mx.Unlock()
}

// Write implements the Writer interface consumed by Logger.  Every line in
// b becomes its own record.
func (l *Log) Write(b []byte) (int, error) {
	now := time.Now()
	str := strings.Trim(string(b), "\n")
	l.lock()
	for _, line := range strings.Split(str, "\n") {
		l.id++
		rec := &l.records[l.count%len(l.records)]
		rec.Id = l.id
		rec.Time = now
		rec.Text = line
		l.count++
	}
	for cv := range l.cvs {
		cv.Broadcast()
	}
	l.unlock()
	return len(b), nil
}

// GetRecords returns the records held, oldest first, along with the current
// ID.  If last is already the current ID, nothing has changed and nil is
// returned.  IDs are not comparable across Log instances.
func (l *Log) GetRecords(last int64) ([]LogRecord, int64) {
	l.lock()
	defer l.unlock()
	if l.id == last {
		return nil, last
	}
	n := l.count
	if n > len(l.records) {
		n = len(l.records)
	}
	recs := make([]LogRecord, 0, n)
	for i := l.count - n; i < l.count; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Watch blocks until the ID moves away from last, or until expire passes.
// It returns the ID at that point.  An expire of zero polls.
func (l *Log) Watch(last int64, expire time.Duration) int64 {
	expired := expire <= 0
	cv := sync.NewCond(&l.mx)
	var timer *time.Timer
	if !expired {
		timer = time.AfterFunc(expire, func() {
			l.lock()
			expired = true
			cv.Broadcast()
			l.unlock()
		})
	}

	l.lock()
	l.cvs[cv] = true
	for l.id == last && !expired {
		cv.Wait()
	}
	delete(l.cvs, cv)
	last = l.id
	l.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log instance.  The starting ID is the current time in
// nanoseconds, so a client holding an ID from a previous instance sees
// a change.
func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		id:      time.Now().UnixNano(),
		cvs:     make(map[*sync.Cond]bool),
	}
}

// logLines copies r to logger a line at a time, until r is exhausted.
func logLines(logger *log.Logger, r io.Reader, prefix string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) != 0 {
			logger.Print(prefix, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}
