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
	"log"
	"strings"
	"sync"
)

// MultiLogger fans one log.Logger out to several.  Its own Logger carries
// a prefix naming the source, and each destination adds its own prefix and
// flags on top.  A process logs through one of these into its own Log and
// into the supervisor's MultiLogger, which in turn feeds the supervisor Log
// and any configured Logger.
type MultiLogger struct {
	log     *log.Logger
	loggers []*log.Logger
	mx      sync.Mutex
}

// Write breaks b into lines and hands each to every destination.
func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.mx.Lock()
	loggers := l.loggers
	l.mx.Unlock()
	for _, line := range lines {
		for _, logger := range loggers {
			logger.Println(line)
		}
	}
	return len(b), nil
}

// AddLogger adds a destination.  Adding the same logger twice has no effect.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.mx.Lock()
	defer l.mx.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers[:len(l.loggers):len(l.loggers)], logger)
}

// DelLogger removes a destination.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.mx.Lock()
	defer l.mx.Unlock()
	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i:i], l.loggers[i+1:]...)
			return
		}
	}
}

// Logger returns the logger that writes through to every destination.
func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}

// NewMultiLogger returns a MultiLogger whose own Logger has prefix.
func NewMultiLogger(prefix string) *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, prefix, 0)
	return m
}
