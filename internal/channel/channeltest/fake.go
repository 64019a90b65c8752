// Copyright 2025 The berth Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package channeltest provides a scripted fake channel for tests. It records
// every command a component issues so tests can assert on the exact remote
// command sequence.
package channeltest

import (
	"context"
	"io/fs"
	"strings"

	"github.com/berthctl/berth/internal/channel"
)

// Response is what the fake returns for a matched command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err, when set, is returned verbatim (use *channel.TransportError to
	// simulate transport failures). ExitCode is ignored in that case.
	Err error
}

// Call is one recorded Run invocation.
type Call struct {
	Command string
	Opts    channel.Options
}

// Uploaded is one recorded Upload invocation.
type Uploaded struct {
	Path    string
	Mode    fs.FileMode
	Content []byte
}

type rule struct {
	match   func(string) bool
	respond func(string) Response
}

// Fake implements channel.Channel with scripted responses. Rules are
// matched most-recently-registered first, so a test can override an earlier
// rule mid-scenario. Unmatched commands get a zero Response (empty output,
// exit 0).
type Fake struct {
	Calls   []Call
	Uploads []Uploaded
	Closed  bool
	rules   []rule
}

var _ channel.Channel = &Fake{}

func New() *Fake {
	return &Fake{}
}

// On registers a Response for every command containing substr.
func (f *Fake) On(substr string, resp Response) {
	f.OnFunc(func(cmd string) bool { return strings.Contains(cmd, substr) },
		func(string) Response { return resp })
}

// OnFunc registers a dynamic responder.
func (f *Fake) OnFunc(match func(cmd string) bool, respond func(cmd string) Response) {
	f.rules = append(f.rules, rule{match: match, respond: respond})
}

func (f *Fake) Run(_ context.Context, command string, opts *channel.Options) (channel.RunResult, error) {
	var recorded channel.Options
	if opts != nil {
		recorded = *opts
	}
	f.Calls = append(f.Calls, Call{Command: command, Opts: recorded})

	var resp Response
	for i := len(f.rules) - 1; i >= 0; i-- {
		if f.rules[i].match(command) {
			resp = f.rules[i].respond(command)
			break
		}
	}

	if resp.Err != nil {
		return channel.RunResult{}, resp.Err
	}
	res := channel.RunResult{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
	}
	if res.ExitCode != 0 {
		return res, &channel.ExecError{Command: command, Result: res}
	}
	return res, nil
}

func (f *Fake) Upload(_ context.Context, content []byte, remotePath string, mode fs.FileMode) error {
	cp := make([]byte, len(content))
	copy(cp, content)
	f.Uploads = append(f.Uploads, Uploaded{Path: remotePath, Mode: mode, Content: cp})
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

// Transcript returns the raw commands in issue order.
func (f *Fake) Transcript() []string {
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.Command
	}
	return out
}

// Count returns how many issued commands contain substr.
func (f *Fake) Count(substr string) int {
	n := 0
	for _, c := range f.Calls {
		if strings.Contains(c.Command, substr) {
			n++
		}
	}
	return n
}

// Reset clears the recorded calls but keeps the registered rules.
func (f *Fake) Reset() {
	f.Calls = nil
	f.Uploads = nil
}
