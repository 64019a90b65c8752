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

package channel

import (
	"bytes"
	"context"
	goerrors "errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"
)

// LocalChannel runs commands on the machine berth itself runs on. It exists
// for development against a local cluster and for exercising the full
// pipeline in tests without an SSH endpoint.
type LocalChannel struct{}

var _ Channel = &LocalChannel{}

// shellMeta are the characters that force a command through `sh -c` instead
// of a direct exec.
const shellMeta = "|&;<>()$`\\\"'*?[]#~=%"

func (l *LocalChannel) Run(ctx context.Context, command string, opts *Options) (RunResult, error) {
	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if !strings.ContainsAny(command, shellMeta) {
		// Plain commands skip the shell, but only when the first token
		// resolves to a real binary (`command -v` and friends are shell
		// builtins).
		if parts, err := shlex.Split(command); err == nil && len(parts) > 0 {
			if _, err := exec.LookPath(parts[0]); err == nil {
				cmd = exec.CommandContext(ctx, parts[0], parts[1:]...)
			}
		}
	}

	if opts != nil {
		cmd.Dir = opts.Dir
		if len(opts.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range opts.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, &TransportError{
			Timeout: goerrors.Is(ctxErr, context.DeadlineExceeded),
			Err:     ctxErr,
		}
	}
	var exitErr *exec.ExitError
	if goerrors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExecError{Command: command, Result: res}
	}
	return res, &TransportError{Err: err}
}

func (l *LocalChannel) Upload(_ context.Context, content []byte, remotePath string, mode fs.FileMode) error {
	return os.WriteFile(remotePath, content, mode.Perm())
}

func (l *LocalChannel) Close() error {
	return nil
}
