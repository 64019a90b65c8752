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
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 30 * time.Second

// SSHConfig describes how to reach the remote host.
type SSHConfig struct {
	Host string
	Port int
	User string

	// Password and PrivateKey are both optional, but at least one must be
	// set. When both are present the key is offered first.
	Password   string
	PrivateKey []byte

	DialTimeout time.Duration
}

// SSHChannel is a Channel backed by a single SSH connection. Each command
// runs in its own session on that connection; commands are issued
// sequentially, never concurrently.
type SSHChannel struct {
	client *ssh.Client
}

var _ Channel = &SSHChannel{}

// DialSSH connects to the remote host. Connection failures are returned as
// *TransportError.
func DialSSH(cfg SSHConfig) (*SSHChannel, error) {
	var methods []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, errors.Wrap(err, "parsing ssh private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no ssh authentication method configured for %s", cfg.Host)
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: methods,
		// The deploy target is addressed by explicit configuration; host
		// key pinning is not part of the trust model here.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrapf(err, "dialing %s", addr)}
	}
	return &SSHChannel{client: client}, nil
}

func (s *SSHChannel) Run(ctx context.Context, command string, opts *Options) (RunResult, error) {
	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return RunResult{}, &TransportError{Err: errors.Wrap(err, "opening session")}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	if err := sess.Start(Render(command, opts)); err != nil {
		return RunResult{}, &TransportError{Err: errors.Wrap(err, "starting command")}
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		// Best effort: the sshd may not honor the signal, closing the
		// session tears the channel down either way.
		_ = sess.Signal(ssh.SIGKILL)
		return RunResult{}, &TransportError{
			Timeout: goerrors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     ctx.Err(),
		}
	case err := <-done:
		res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if goerrors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, &ExecError{Command: command, Result: res}
		}
		return res, &TransportError{Err: err}
	}
}

// Upload streams content to remotePath over a session stdin. The write and
// the chmod are one remote command so a partial upload never leaves a file
// with loose permissions.
func (s *SSHChannel) Upload(ctx context.Context, content []byte, remotePath string, mode fs.FileMode) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return &TransportError{Err: errors.Wrap(err, "opening session")}
	}
	defer sess.Close()

	sess.Stdin = bytes.NewReader(content)
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	q := Quote(remotePath)
	cmd := fmt.Sprintf("umask 077 && cat > %s && chmod %o %s", q, mode.Perm(), q)

	if err := sess.Start(cmd); err != nil {
		return &TransportError{Err: errors.Wrap(err, "starting upload")}
	}
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return &TransportError{
			Timeout: goerrors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     ctx.Err(),
		}
	case err := <-done:
		if err == nil {
			return nil
		}
		var exitErr *ssh.ExitError
		if goerrors.As(err, &exitErr) {
			return &ExecError{Command: cmd, Result: RunResult{
				Stderr:   stderr.String(),
				ExitCode: exitErr.ExitStatus(),
			}}
		}
		return &TransportError{Err: err}
	}
}

func (s *SSHChannel) Close() error {
	return s.client.Close()
}
