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

// Command testtarget is the smallest useful target.  Run under govd, it
// serves a greeting on whatever address the supervisor picks.  Run on its
// own, it says it needs a supervisor and exits.
//
// A target is any value with the methods
//
//	Serve(net.Listener) error
//	Shutdown(context.Context) error
//
// which *http.Server already has.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/brianloveswords/gov/worker"
)

func main() {
	srv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "hello from %d\n", os.Getpid())
		}),
	}
	log.Printf("testtarget starting")
	if e := worker.Run(srv); e != nil {
		log.Fatal(e)
	}
}
