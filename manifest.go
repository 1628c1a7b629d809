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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest describes a supervisor and the processes it runs.
//
//	stableAfter: 200ms
//	restart: true
//	processes:
//	  - path: ./bin/api
//	    watch: true
//	    port: 8080
type Manifest struct {
	StableAfter  time.Duration  `yaml:"stableAfter"`
	Address      string         `yaml:"address"`
	Port         int            `yaml:"port"`
	Watch        bool           `yaml:"watch"`
	Restart      bool           `yaml:"restart"`
	Debounce     time.Duration  `yaml:"debounce"`
	PingInterval time.Duration  `yaml:"pingInterval"`
	Ignore       []string       `yaml:"ignore"`
	Extensions   []string       `yaml:"extensions"`
	Processes    []ProcessEntry `yaml:"processes"`
}

// ProcessEntry is one process in a Manifest.
type ProcessEntry struct {
	Path    string `yaml:"path"`
	Options `yaml:",inline"`
}

// LoadManifest decodes a manifest.  Unknown keys are errors.
func LoadManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	m := &Manifest{}
	if e := dec.Decode(m); e != nil && !errors.Is(e, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, e)
	}
	for i, p := range m.Processes {
		if p.Path == "" {
			return nil, fmt.Errorf("%w: process %d has no path", ErrBadManifest, i)
		}
	}
	return m, nil
}

// LoadManifestFile reads a manifest from a file.  Relative process paths are
// taken relative to the file.
func LoadManifestFile(name string) (*Manifest, error) {
	f, e := os.Open(name)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	m, e := LoadManifest(f)
	if e != nil {
		return nil, fmt.Errorf("%s: %w", name, e)
	}
	dir := filepath.Dir(name)
	for i := range m.Processes {
		if !filepath.IsAbs(m.Processes[i].Path) {
			m.Processes[i].Path = filepath.Join(dir, m.Processes[i].Path)
		}
	}
	return m, nil
}

// Config returns the supervisor configuration the manifest describes.
func (m *Manifest) Config() Config {
	return Config{
		StableAfter:  m.StableAfter,
		Address:      m.Address,
		Port:         m.Port,
		Watch:        m.Watch,
		Restart:      m.Restart,
		Debounce:     m.Debounce,
		PingInterval: m.PingInterval,
		Ignore:       m.Ignore,
		Extensions:   m.Extensions,
	}
}
