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

// Package channel provides the command-execution channel to the remote
// host. Every remote operation berth performs goes through a Channel, one
// synchronous command at a time.
package channel

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// Options are per-invocation options for running a remote command.
type Options struct {
	// Dir is the working directory the command runs in. Rendered as a
	// scoped `cd` for the single command, never a persistent state change.
	Dir string

	// Env holds environment overrides applied to this invocation only.
	Env map[string]string

	// Timeout bounds the in-flight command. Zero means the caller's
	// context deadline (if any) is the only bound.
	Timeout time.Duration
}

// RunResult holds the captured output of a finished remote command.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Channel executes shell commands on the remote host.
//
// Implementations must surface connection-level failures (*TransportError)
// distinctly from command-level non-zero exits (*ExecError): a command that
// ran and failed is a usable answer, a command that never ran is not.
type Channel interface {
	// Run executes command and blocks until the remote process exits or
	// the transport fails. On a non-zero exit the RunResult is still
	// populated and the error is an *ExecError.
	Run(ctx context.Context, command string, opts *Options) (RunResult, error)

	// Upload writes content to remotePath with the given permission mode.
	Upload(ctx context.Context, content []byte, remotePath string, mode fs.FileMode) error

	Close() error
}

// ExecError means the remote command ran to completion and exited non-zero.
type ExecError struct {
	Command string
	Result  RunResult
}

func (e *ExecError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.Result.ExitCode, msg)
}

// TransportError means the command could not be executed at all: the
// connection failed, the session could not be opened, or the deadline
// expired while the command was in flight.
type TransportError struct {
	// Timeout is true when the failure was a missed deadline.
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("remote command deadline exceeded: %v", e.Err)
	}
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Quote returns s single-quoted for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Render produces the final shell command for a Run invocation: environment
// overrides become assignment prefixes scoped to the single command, and the
// working directory becomes a leading `cd`. Assignment order is sorted so
// rendered commands are deterministic.
func Render(command string, opts *Options) string {
	if opts == nil {
		return command
	}
	full := command
	if len(opts.Env) > 0 {
		keys := make([]string, 0, len(opts.Env))
		for k := range opts.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(Quote(opts.Env[k]))
			b.WriteString(" ")
		}
		full = b.String() + full
	}
	if opts.Dir != "" {
		full = "cd " + Quote(opts.Dir) + " && " + full
	}
	return full
}
