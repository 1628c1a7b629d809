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

// Package gov supervises long running programs.  Each target is run as its
// own child process, a worker, and the supervisor keeps track of it over a
// small message channel: it tells the worker where to listen, hears back
// where it ended up, and learns of every crash as a structured error
// followed by a death notice.
//
// A crashed target is restarted if its options ask for that, unless it
// crashed so soon after starting that it looks like it will never come up,
// in which case it is marked faulty and left alone.  A target can also be
// restarted whenever the source files next to it change.
//
// Targets are built with package worker.  Everything here is POSIX only:
// workers are put in their own process group and killed as a group.
//
//	reg := gov.NewRegistry()
//	defer reg.Recover()
//	reg.HandleSignals()
//
//	sup := gov.NewSupervisor(reg, gov.Config{Restart: true})
//	sup.Subscribe(func(ev gov.Event) {
//		log.Printf("%s: %v", ev.Process.Path(), ev.Kind)
//	})
//	sup.StartProcess("./bin/api", gov.Options{Port: gov.Int(8080)})
package gov
