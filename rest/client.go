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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brianloveswords/gov"
)

// Client talks to a Handler.
type Client struct {
	user   string // HTTP Basic-Auth
	pass   string
	base   string // URI to root of tree on server
	auth   bool
	client *http.Client
}

// NewClient returns a client for the server at base, for example
// "http://127.0.0.1:8321".
func NewClient(base string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{},
	}
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(id string) string {
	if id == "" {
		return c.base + "/processes"
	}
	return c.base + "/processes/" + url.PathEscape(id)
}

// poll issues a GET, decoding the answer into v.  Given an etag it is a
// conditional request, and given a wait as well it is a long poll.  It
// returns the new etag, or "" if nothing changed, in which case v is
// untouched.
func (c *Client) poll(ctx context.Context, url string, etag string, wait time.Duration, v interface{}) (string, error) {
	req, e := http.NewRequestWithContext(ctx, "GET", url, nil)
	if e != nil {
		return "", e
	}
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if secs := int(wait / time.Second); secs > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(secs))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func readError(res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	e := &Error{}
	if json.Unmarshal(body, e) != nil || e.Message == "" {
		e.Message = res.Status
	}
	e.Code = res.StatusCode
	return e
}

func (c *Client) post(ctx context.Context, url string, body interface{}, v interface{}) error {
	var rd io.Reader = strings.NewReader("")
	ctype := "text/plain" // we don't really care
	if body != nil {
		b, e := json.Marshal(body)
		if e != nil {
			return e
		}
		rd = bytes.NewReader(b)
		ctype = mimeJson
	}
	req, e := http.NewRequestWithContext(ctx, "POST", url, rd)
	if e != nil {
		return e
	}
	req.Header.Set("Content-Type", ctype)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	if v != nil {
		return json.NewDecoder(res.Body).Decode(v)
	}
	return nil
}

// Processes returns the IDs of every process.
func (c *Client) Processes(ctx context.Context) ([]string, error) {
	ids, _, e := c.WatchProcesses(ctx, "", 0)
	return ids, e
}

// WatchProcesses waits up to wait for the list to differ from etag.  If it
// does not, the returned list is nil and the etag is unchanged.
func (c *Client) WatchProcesses(ctx context.Context, etag string, wait time.Duration) ([]string, string, error) {
	var ids []string
	tag, e := c.poll(ctx, c.url(""), etag, wait, &ids)
	if e != nil {
		return nil, etag, e
	}
	if tag == "" {
		return nil, etag, nil
	}
	return ids, tag, nil
}

// Process returns a snapshot of one process.
func (c *Client) Process(ctx context.Context, id string) (*ProcessInfo, error) {
	pi, _, e := c.WatchProcess(ctx, id, "", 0)
	return pi, e
}

// WatchProcess waits up to wait for the process to differ from etag.
func (c *Client) WatchProcess(ctx context.Context, id string, etag string, wait time.Duration) (*ProcessInfo, string, error) {
	pi := &ProcessInfo{}
	tag, e := c.poll(ctx, c.url(id), etag, wait, pi)
	if e != nil {
		return nil, etag, e
	}
	if tag == "" {
		return nil, etag, nil
	}
	return pi, tag, nil
}

// Add registers a process, and starts it if start is set.
func (c *Client) Add(ctx context.Context, path string, opts gov.Options, start bool) (*ProcessInfo, error) {
	pi := &ProcessInfo{}
	e := c.post(ctx, c.url(""), &NewProcess{Path: path, Options: opts, Start: start}, pi)
	if e != nil {
		return nil, e
	}
	return pi, nil
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.post(ctx, c.url(id)+"/start", nil, nil)
}

func (c *Client) Stop(ctx context.Context, id string) error {
	return c.post(ctx, c.url(id)+"/stop", nil, nil)
}

func (c *Client) Restart(ctx context.Context, id string) error {
	return c.post(ctx, c.url(id)+"/restart", nil, nil)
}

func (c *Client) Watch(ctx context.Context, id string) error {
	return c.post(ctx, c.url(id)+"/watch", nil, nil)
}

// Kill signals a process.  An empty signal means SIGKILL.
func (c *Client) Kill(ctx context.Context, id string, signal string) error {
	u := c.url(id) + "/kill"
	if signal != "" {
		u += "?signal=" + url.QueryEscape(signal)
	}
	return c.post(ctx, u, nil, nil)
}

// Log returns the supervisor log, waiting up to wait for it to move past
// etag.
func (c *Client) Log(ctx context.Context, etag string, wait time.Duration) ([]LogRecord, string, error) {
	return c.log(ctx, c.base+"/log", etag, wait)
}

// ProcessLog is Log for a single process.
func (c *Client) ProcessLog(ctx context.Context, id string, etag string, wait time.Duration) ([]LogRecord, string, error) {
	return c.log(ctx, c.url(id)+"/log", etag, wait)
}

func (c *Client) log(ctx context.Context, u string, etag string, wait time.Duration) ([]LogRecord, string, error) {
	var recs []LogRecord
	tag, e := c.poll(ctx, u, etag, wait, &recs)
	if e != nil {
		return nil, etag, e
	}
	if tag == "" {
		return nil, etag, nil
	}
	return recs, tag, nil
}
