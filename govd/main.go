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

// Command govd supervises the programs named in a manifest, or on its
// command line, and serves the REST interface to them.
package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/brianloveswords/gov"
	"github.com/brianloveswords/gov/rest"
)

const maxConns = 64

var (
	addr     = "127.0.0.1:8321"
	manifest string
	user     string
	hash     string
	restart  bool
	watch    bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "govd [flags] [paths...]",
		Short:         "Supervise programs built on the gov worker runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	f := cmd.Flags()
	f.StringVarP(&manifest, "config", "c", "", "manifest file")
	f.StringVarP(&addr, "addr", "a", addr, "listen address")
	f.StringVar(&user, "user", "", "require basic authentication as this user")
	f.StringVar(&hash, "password-hash", "", "bcrypt hash of the password")
	f.BoolVar(&restart, "restart", false, "restart programs named on the command line")
	f.BoolVar(&watch, "watch", false, "watch programs named on the command line")

	if e := cmd.Execute(); e != nil {
		fmt.Fprintf(os.Stderr, "govd: %v\n", e)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, paths []string) error {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	m := &gov.Manifest{}
	if manifest != "" {
		var e error
		if m, e = gov.LoadManifestFile(manifest); e != nil {
			return e
		}
	}
	cfg := m.Config()
	cfg.Logger = logger

	reg := gov.NewRegistry()
	reg.SetLogger(logger)
	defer reg.Recover()
	defer reg.HandleSignals()()

	s := gov.NewSupervisor(reg, cfg)
	defer s.Shutdown()

	h := rest.NewHandler(s)
	if user != "" || hash != "" {
		if e := h.SetAuth(user, []byte(hash)); e != nil {
			return fmt.Errorf("bad password hash: %w", e)
		}
	}

	for _, p := range m.Processes {
		if _, e := s.StartProcess(p.Path, p.Options); e != nil {
			logger.Printf("Cannot start %s: %v", p.Path, e)
		}
	}
	for _, path := range paths {
		opts := gov.Options{}
		if cmd.Flags().Changed("restart") {
			opts.Restart = gov.Bool(restart)
		}
		if cmd.Flags().Changed("watch") {
			opts.Watch = gov.Bool(watch)
		}
		if _, e := s.StartProcess(path, opts); e != nil {
			logger.Printf("Cannot start %s: %v", path, e)
		}
	}

	l, e := net.Listen("tcp", addr)
	if e != nil {
		return e
	}
	logger.Printf("Serving on %s", l.Addr())
	return http.Serve(netutil.LimitListener(l, maxConns), h)
}
