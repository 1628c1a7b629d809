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
	"net"
	"strconv"
)

// Address is where a worker ended up listening.  It is either a TCP
// port and host, or the path of a Unix domain socket.  On the wire the
// former is an object and the latter a bare string.  The supervisor never
// interprets it.
type Address struct {
	Port    int    `json:"port"`
	Address string `json:"address"`
	Family  string `json:"family,omitempty"`
	Path    string `json:"-"`
}

// FromNetAddr converts what the operating system reported for a listener.
func FromNetAddr(a net.Addr) *Address {
	switch a := a.(type) {
	case *net.TCPAddr:
		fam := "IPv6"
		if a.IP.To4() != nil {
			fam = "IPv4"
		}
		return &Address{Port: a.Port, Address: a.IP.String(), Family: fam}
	case *net.UnixAddr:
		return &Address{Path: a.Name}
	}
	host, port, e := net.SplitHostPort(a.String())
	if e != nil {
		return &Address{Path: a.String()}
	}
	n, _ := strconv.Atoi(port)
	return &Address{Port: n, Address: host}
}

// IsSocket is true for Unix domain socket addresses.
func (a *Address) IsSocket() bool {
	return a.Path != ""
}

func (a *Address) String() string {
	if a.IsSocket() {
		return a.Path
	}
	return net.JoinHostPort(a.Address, strconv.Itoa(a.Port))
}

type tcpAddress struct {
	Port    int    `json:"port"`
	Address string `json:"address"`
	Family  string `json:"family,omitempty"`
}

func (a Address) MarshalJSON() ([]byte, error) {
	if a.Path != "" {
		return json.Marshal(a.Path)
	}
	return json.Marshal(tcpAddress{a.Port, a.Address, a.Family})
}

func (a *Address) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*a = Address{}
		return json.Unmarshal(b, &a.Path)
	}
	var t tcpAddress
	if e := json.Unmarshal(b, &t); e != nil {
		return e
	}
	*a = Address{Port: t.Port, Address: t.Address, Family: t.Family}
	return nil
}
