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

// Command govctl drives a running govd.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/brianloveswords/gov"
	"github.com/brianloveswords/gov/rest"
)

var (
	addr   = "http://127.0.0.1:8321"
	user   string
	pass   string
	follow bool
	signal string
	start  bool
	client *rest.Client
)

func main() {
	root := &cobra.Command{
		Use:           "govctl",
		Short:         "Control a govd supervisor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if !strings.Contains(addr, "://") {
				addr = "http://" + addr
			}
			client = rest.NewClient(addr)
			if user != "" {
				client.SetAuth(user, pass)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&addr, "addr", "a", addr, "govd address")
	pf.StringVarP(&user, "user", "u", "", "user name")
	pf.StringVarP(&pass, "password", "p", os.Getenv("GOV_PASSWORD"), "password")

	root.AddCommand(&cobra.Command{
		Use:   "ps",
		Short: "List processes",
		Args:  cobra.NoArgs,
		RunE:  ps,
	})
	root.AddCommand(&cobra.Command{
		Use:   "info <id>",
		Short: "Show one process",
		Args:  cobra.ExactArgs(1),
		RunE:  info,
	})
	for _, name := range []string{"start", "stop", "restart", "watch"} {
		name := name
		root.AddCommand(&cobra.Command{
			Use:   name + " <id>",
			Short: "Ask govd to " + name + " a process",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return action(cmd.Context(), name, args[0])
			},
		})
	}

	kill := &cobra.Command{
		Use:   "kill <id>",
		Short: "Signal a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.Kill(cmd.Context(), args[0], signal)
		},
	}
	kill.Flags().StringVarP(&signal, "signal", "s", "", "signal name or number (default KILL)")
	root.AddCommand(kill)

	add := &cobra.Command{
		Use:   "add <path> [args...]",
		Short: "Add a process",
		Args:  cobra.MinimumNArgs(1),
		RunE:  addProcess,
	}
	add.Flags().BoolVar(&start, "start", false, "start it too")
	root.AddCommand(add)

	logs := &cobra.Command{
		Use:   "log [id]",
		Short: "Show the supervisor log, or one process's",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showLog,
	}
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new records")
	root.AddCommand(logs)

	if e := root.ExecuteContext(context.Background()); e != nil {
		fmt.Fprintf(os.Stderr, "govctl: %v\n", e)
		os.Exit(1)
	}
}

func ps(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ids, e := client.Processes(ctx)
	if e != nil {
		return e
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tPID\tRESTARTS\tADDRESS\tPATH")
	for _, id := range ids {
		pi, e := client.Process(ctx, id)
		if e != nil {
			return e
		}
		where := "-"
		if pi.Address != nil {
			where = pi.Address.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			pi.ID[:8], pi.State, pi.Pid, pi.Restarts, where, pi.Path)
	}
	return tw.Flush()
}

// resolve accepts a unique ID prefix as well as a whole ID.
func resolve(ctx context.Context, id string) (string, error) {
	ids, e := client.Processes(ctx)
	if e != nil {
		return "", e
	}
	found := ""
	for _, full := range ids {
		if full == id {
			return id, nil
		}
		if strings.HasPrefix(full, id) {
			if found != "" {
				return "", fmt.Errorf("%s is ambiguous", id)
			}
			found = full
		}
	}
	if found == "" {
		return "", fmt.Errorf("%s: %w", id, gov.ErrNotFound)
	}
	return found, nil
}

func info(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, e := resolve(ctx, args[0])
	if e != nil {
		return e
	}
	pi, e := client.Process(ctx, id)
	if e != nil {
		return e
	}
	fmt.Printf("ID:           %s\n", pi.ID)
	fmt.Printf("Path:         %s\n", pi.Path)
	fmt.Printf("State:        %s\n", pi.State)
	fmt.Printf("Pid:          %d\n", pi.Pid)
	if pi.ExitCode >= 0 {
		fmt.Printf("Exit code:    %d\n", pi.ExitCode)
	}
	fmt.Printf("Restarts:     %d\n", pi.Restarts)
	fmt.Printf("Watching:     %v\n", pi.Watching)
	if !pi.LastStarted.IsZero() {
		fmt.Printf("Last started: %s\n", pi.LastStarted.Format(time.RFC3339))
	}
	if pi.Address != nil {
		fmt.Printf("Address:      %s\n", pi.Address)
	}
	for i, r := range pi.Errors {
		fmt.Printf("Error %d:      %s at %s\n", i, r.Error(), r.Time().Format(time.RFC3339))
	}
	return nil
}

func action(ctx context.Context, name string, id string) error {
	id, e := resolve(ctx, id)
	if e != nil {
		return e
	}
	switch name {
	case "start":
		return client.Start(ctx, id)
	case "stop":
		return client.Stop(ctx, id)
	case "restart":
		return client.Restart(ctx, id)
	default:
		return client.Watch(ctx, id)
	}
}

func addProcess(cmd *cobra.Command, args []string) error {
	opts := gov.Options{}
	if len(args) > 1 {
		opts.Args = args[1:]
	}
	pi, e := client.Add(cmd.Context(), args[0], opts, start)
	if e != nil {
		return e
	}
	fmt.Println(pi.ID)
	return nil
}

func showLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	get := client.Log
	if len(args) == 1 {
		id, e := resolve(ctx, args[0])
		if e != nil {
			return e
		}
		get = func(ctx context.Context, etag string, wait time.Duration) ([]rest.LogRecord, string, error) {
			return client.ProcessLog(ctx, id, etag, wait)
		}
	}

	var last int64
	tag := ""
	for {
		recs, t, e := get(ctx, tag, time.Minute)
		if e != nil {
			return e
		}
		for _, r := range recs {
			if r.Id <= last {
				continue
			}
			last = r.Id
			fmt.Printf("%s %s\n", r.Time.Format("Jan _2 15:04:05"), r.Text)
		}
		if !follow {
			return nil
		}
		tag = t
	}
}
