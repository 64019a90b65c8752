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

// Package probe implements the read-only existence and identity checks that
// drive every reconciliation decision. Each probe issues exactly one remote
// command and classifies the answer by exit status alone.
package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/types"
)

// transportRetries is the number of extra attempts for a probe whose
// command never ran. Probes are read-only, so re-issuing them is always
// safe; mutating commands are never retried anywhere in berth.
const transportRetries = 2

// Engine wraps a Channel with idempotent probes.
type Engine struct {
	ch      channel.Channel
	retries int
}

func NewEngine(ch channel.Channel) *Engine {
	return &Engine{ch: ch, retries: transportRetries}
}

// run issues cmd and reports whether it exited zero. A non-zero exit is a
// valid "false" answer, never an error. Transport failures are retried and,
// if persistent, propagate — a probe must never silently report false
// because the channel broke.
func (e *Engine) run(ctx context.Context, cmd string, opts *channel.Options) (channel.RunResult, bool, error) {
	const op errors.Op = "probe.run"

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		res, err := e.ch.Run(ctx, cmd, opts)
		if err == nil {
			return res, true, nil
		}
		var execErr *channel.ExecError
		if errors.As(err, &execErr) {
			return res, false, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	kind := errors.Channel
	var transportErr *channel.TransportError
	if errors.As(lastErr, &transportErr) && transportErr.Timeout {
		kind = errors.Timeout
	}
	return channel.RunResult{}, false, errors.E(op, kind,
		fmt.Errorf("probe %q failed: %w", cmd, lastErr))
}

// PathExists reports whether path exists on the remote host.
func (e *Engine) PathExists(ctx context.Context, path types.RemotePath) (bool, error) {
	_, ok, err := e.run(ctx, "test -e "+channel.Quote(path.String()), nil)
	return ok, err
}

// IsDirectory reports whether path is a directory.
func (e *Engine) IsDirectory(ctx context.Context, path types.RemotePath) (bool, error) {
	_, ok, err := e.run(ctx, "test -d "+channel.Quote(path.String()), nil)
	return ok, err
}

// IsFile reports whether path is a regular file.
func (e *Engine) IsFile(ctx context.Context, path types.RemotePath) (bool, error) {
	_, ok, err := e.run(ctx, "test -f "+channel.Quote(path.String()), nil)
	return ok, err
}

// IsGitRepo reports whether path holds a git work tree.
func (e *Engine) IsGitRepo(ctx context.Context, path types.RemotePath) (bool, error) {
	_, ok, err := e.run(ctx, "test -d "+channel.Quote(path.Join(".git").String()), nil)
	return ok, err
}

// CommandExists reports whether name resolves to an executable on the
// remote host's PATH.
func (e *Engine) CommandExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := e.run(ctx, "command -v "+channel.Quote(name), nil)
	return ok, err
}

// Captured runs cmd and returns its trimmed stdout together with whether it
// exited zero. An exit-zero command with empty output still reports true;
// truthiness is never derived from the output.
func (e *Engine) Captured(ctx context.Context, cmd string, opts *channel.Options) (string, bool, error) {
	res, ok, err := e.run(ctx, cmd, opts)
	return strings.TrimSpace(res.Stdout), ok, err
}
