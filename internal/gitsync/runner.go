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

package gitsync

import (
	"context"
	"regexp"
	"strings"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/types"
)

// gitRunner runs git commands on the remote host. It is the remote analog
// of a local exec runner: one git invocation per call, stdout and stderr
// captured, non-zero exits surfaced as a typed *GitExecError.
type gitRunner struct {
	ch channel.Channel

	// dir is the work tree the commands run in. Empty for commands that
	// run outside a work tree (clone).
	dir types.RemotePath

	// env holds the auth overrides applied to each invocation. They are
	// scoped to the single command, the remote git config is never
	// touched.
	env map[string]string
}

type RunResult = channel.RunResult

// Run runs a git command. Omit the 'git' part of the command.
func (g *gitRunner) Run(ctx context.Context, args ...string) (RunResult, error) {
	const op errors.Op = "gitsync.git"

	opts := &channel.Options{Env: g.env}
	if !g.dir.Empty() {
		opts.Dir = g.dir.String()
	}

	res, err := g.ch.Run(ctx, renderGit(args), opts)
	if err == nil {
		return res, nil
	}

	var execErr *channel.ExecError
	if errors.As(err, &execErr) {
		return res, errors.E(op, errors.Git, &GitExecError{
			Args:   args,
			Err:    err,
			StdOut: res.Stdout,
			StdErr: res.Stderr,
		})
	}

	kind := errors.Channel
	var transportErr *channel.TransportError
	if errors.As(err, &transportErr) && transportErr.Timeout {
		kind = errors.Timeout
	}
	return res, errors.E(op, kind, err)
}

// ok runs a git command and reports only whether it exited zero; transport
// failures still propagate.
func (g *gitRunner) ok(ctx context.Context, args ...string) (bool, error) {
	_, err := g.Run(ctx, args...)
	if err == nil {
		return true, nil
	}
	var gitErr *GitExecError
	if errors.As(err, &gitErr) {
		return false, nil
	}
	return false, err
}

// plainArg matches arguments that are safe to pass to the remote shell
// unquoted.
var plainArg = regexp.MustCompile(`^[A-Za-z0-9_/.:@=+-]+$`)

func renderGit(args []string) string {
	b := new(strings.Builder)
	b.WriteString("git")
	for _, a := range args {
		b.WriteString(" ")
		if plainArg.MatchString(a) {
			b.WriteString(a)
		} else {
			b.WriteString(channel.Quote(a))
		}
	}
	return b.String()
}

// GitExecError means a git command ran on the remote host and failed.
type GitExecError struct {
	Args   []string
	Err    error
	StdErr string
	StdOut string
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString(e.Err.Error())
	b.WriteString(": ")
	b.WriteString(e.StdErr)
	return b.String()
}
