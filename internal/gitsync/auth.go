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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
)

// Method selects how git authenticates against the upstream repository.
// The three modes share no state and differ only in how the clone URL and
// the git environment are constructed, so a tagged value beats a hierarchy.
type Method string

const (
	MethodNone  Method = "none"
	MethodToken Method = "token"
	MethodSSH   Method = "ssh"
)

// ParseMethod maps the configured auth method string to a Method. The
// empty string means none.
func ParseMethod(s string) (Method, error) {
	const op errors.Op = "gitsync.parseMethod"
	switch Method(s) {
	case "", MethodNone:
		return MethodNone, nil
	case MethodToken:
		return MethodToken, nil
	case MethodSSH:
		return MethodSSH, nil
	}
	return "", errors.E(op, errors.Config,
		fmt.Errorf("unknown git auth method %q, expected none, token or ssh", s))
}

// Source declares the upstream repository and its credential.
type Source struct {
	URL    string
	Method Method

	// Token is the access token for MethodToken.
	Token string

	// SSHKey is the private key material for MethodSSH.
	SSHKey []byte
}

// Auth is the resolved authentication for one run: the effective clone URL
// and the environment overrides each git invocation runs with. For ssh auth
// it owns two key files, one local and one uploaded to the remote host, and
// Close must run on every exit path to release them.
type Auth struct {
	CloneURL string
	Env      map[string]string

	ch            channel.Channel
	localKeyPath  string
	remoteKeyPath string
}

// ResolveAuth materializes the authentication for src. The ssh path writes
// the key to a run-unique file mode 0600 locally and uploads a copy to the
// remote host, because git itself executes over there.
func ResolveAuth(ctx context.Context, ch channel.Channel, src Source) (*Auth, error) {
	const op errors.Op = "gitsync.resolveAuth"

	switch src.Method {
	case "", MethodNone:
		return &Auth{CloneURL: src.URL}, nil

	case MethodToken:
		if src.Token == "" {
			return nil, errors.E(op, errors.Config, "git auth method is token but no token is set")
		}
		u, err := url.Parse(src.URL)
		if err != nil {
			return nil, errors.E(op, errors.Config, fmt.Errorf("invalid git URL %q: %w", src.URL, err))
		}
		if u.Scheme != "https" {
			return nil, errors.E(op, errors.Config,
				fmt.Errorf("token auth requires an https git URL, got %q", src.URL))
		}
		u.User = url.User(src.Token)
		return &Auth{CloneURL: u.String()}, nil

	case MethodSSH:
		if len(src.SSHKey) == 0 {
			return nil, errors.E(op, errors.Config, "git auth method is ssh but no key is set")
		}
		f, err := os.CreateTemp("", "berth-deploy-key-*")
		if err != nil {
			return nil, errors.E(op, errors.IO, fmt.Errorf("creating key file: %w", err))
		}
		localPath := f.Name()
		if err := f.Chmod(0o600); err != nil {
			f.Close()
			os.Remove(localPath)
			return nil, errors.E(op, errors.IO, fmt.Errorf("restricting key file permissions: %w", err))
		}
		if _, err := f.Write(src.SSHKey); err != nil {
			f.Close()
			os.Remove(localPath)
			return nil, errors.E(op, errors.IO, fmt.Errorf("writing key file: %w", err))
		}
		if err := f.Close(); err != nil {
			os.Remove(localPath)
			return nil, errors.E(op, errors.IO, fmt.Errorf("closing key file: %w", err))
		}

		remotePath := "/tmp/berth-deploy-key-" + randomSuffix()
		if err := ch.Upload(ctx, src.SSHKey, remotePath, 0o600); err != nil {
			os.Remove(localPath)
			return nil, errors.E(op, errors.Channel,
				fmt.Errorf("uploading deploy key to %s: %w", remotePath, err))
		}

		return &Auth{
			CloneURL: src.URL,
			Env: map[string]string{
				"GIT_SSH_COMMAND": fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=no", remotePath),
			},
			ch:            ch,
			localKeyPath:  localPath,
			remoteKeyPath: remotePath,
		}, nil
	}

	return nil, errors.E(op, errors.Config, fmt.Errorf("unknown git auth method %q", src.Method))
}

// Close releases the key files. Safe to call on every exit path; the
// remote removal is best effort over a channel that may already be gone.
func (a *Auth) Close(ctx context.Context) error {
	const op errors.Op = "gitsync.authClose"

	var firstErr error
	if a.localKeyPath != "" {
		if err := os.Remove(a.localKeyPath); err != nil && !os.IsNotExist(err) {
			firstErr = errors.E(op, errors.IO, err)
		}
		a.localKeyPath = ""
	}
	if a.remoteKeyPath != "" && a.ch != nil {
		if _, err := a.ch.Run(ctx, "rm -f "+channel.Quote(a.remoteKeyPath), nil); err != nil && firstErr == nil {
			firstErr = errors.E(op, errors.Channel, err)
		}
		a.remoteKeyPath = ""
	}
	return firstErr
}

// LocalKeyPath exposes the local key file location so tests can verify its
// lifecycle.
func (a *Auth) LocalKeyPath() string {
	return a.localKeyPath
}

// RemoteKeyPath exposes the uploaded key location for tests.
func (a *Auth) RemoteKeyPath() string {
	return a.remoteKeyPath
}

func randomSuffix() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
