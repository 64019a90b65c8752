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

// Package gitsync reconciles the git checkout on the remote host with the
// declared upstream source. All state is derived fresh from remote probes
// on every run; the remote filesystem is the only source of truth.
package gitsync

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer"
	"github.com/berthctl/berth/internal/probe"
	"github.com/berthctl/berth/internal/types"
)

// RepoState is the observed state of the target directory. Never cached
// across runs.
type RepoState int

const (
	// StateAbsent means the directory does not exist, or exists empty.
	StateAbsent RepoState = iota
	// StateNotGitRepo means a non-empty directory without a work tree
	// occupies the target path.
	StateNotGitRepo
	// StateRepo means a git work tree is present; whether it needs a sync
	// is decided by comparing refs.
	StateRepo
)

// Command takes the declared git source and drives the remote checkout to
// it.
type Command struct {
	// Channel is the remote command channel.
	Channel channel.Channel

	// Probe runs the read-only existence checks.
	Probe *probe.Engine

	// Dir is the directory the repository is checked out into.
	Dir types.RemotePath

	// Source declares the upstream repository and auth.
	Source Source

	// Environment selects the branch through the branch policy.
	Environment string
}

// Run drives the clone / sync state machine to convergence.
func (c Command) Run(ctx context.Context) error {
	const op errors.Op = "gitsync.run"
	pr := printer.FromContextOrDie(ctx)

	auth, err := ResolveAuth(ctx, c.Channel, c.Source)
	if err != nil {
		return errors.E(op, err)
	}
	// The key files must go away on every exit path, even when ctx has
	// already been canceled.
	defer func() { _ = auth.Close(context.WithoutCancel(ctx)) }()

	state, err := c.detectState(ctx)
	if err != nil {
		return errors.E(op, c.Dir, err)
	}

	switch state {
	case StateAbsent:
		return c.clone(ctx, pr, auth)
	case StateNotGitRepo:
		return errors.E(op, c.Dir, errors.Conflict,
			fmt.Errorf("%s exists but is not a git repository; refusing to replace it", c.Dir))
	}
	return c.sync(ctx, pr, auth)
}

// detectState probes the target directory. An existing but empty directory
// counts as absent: clone can populate it without touching anything.
func (c Command) detectState(ctx context.Context) (RepoState, error) {
	exists, err := c.Probe.IsDirectory(ctx, c.Dir)
	if err != nil {
		return 0, err
	}
	if !exists {
		return StateAbsent, nil
	}

	isRepo, err := c.Probe.IsGitRepo(ctx, c.Dir)
	if err != nil {
		return 0, err
	}
	if isRepo {
		return StateRepo, nil
	}

	out, ok, err := c.Probe.Captured(ctx, "ls -A "+channel.Quote(c.Dir.String()), nil)
	if err != nil {
		return 0, err
	}
	if ok && out == "" {
		return StateAbsent, nil
	}
	return StateNotGitRepo, nil
}

func (c Command) clone(ctx context.Context, pr printer.Printer, auth *Auth) error {
	const op errors.Op = "gitsync.clone"
	opt := printer.NewOpt().Comp("gitsync").Indent(2)

	if parent := path.Dir(c.Dir.String()); parent != "/" && parent != "." {
		if _, err := c.Channel.Run(ctx, "mkdir -p "+channel.Quote(parent), nil); err != nil {
			return errors.E(op, c.Dir, errors.Channel, err)
		}
	}

	pr.OptPrintf(opt, "cloning %s into %s\n", c.Source.URL, c.Dir)
	cloner := &gitRunner{ch: c.Channel, env: auth.Env}
	if _, err := cloner.Run(ctx, "clone", auth.CloneURL, c.Dir.String()); err != nil {
		return errors.E(op, c.Dir, err)
	}

	// The clone just fetched every ref, so aligning the branch needs a
	// checkout at most.
	run := &gitRunner{ch: c.Channel, dir: c.Dir, env: auth.Env}
	target, current, err := c.resolveBranches(ctx, run)
	if err != nil {
		return errors.E(op, c.Dir, err)
	}
	if current != target {
		pr.OptPrintf(opt, "switching to branch %s\n", target)
		if err := c.checkout(ctx, run, target); err != nil {
			return errors.E(op, c.Dir, err)
		}
	}
	return nil
}

func (c Command) sync(ctx context.Context, pr printer.Printer, auth *Auth) error {
	const op errors.Op = "gitsync.sync"
	opt := printer.NewOpt().Comp("gitsync").Indent(2)
	run := &gitRunner{ch: c.Channel, dir: c.Dir, env: auth.Env}

	// Remote identity first: reconciling against the wrong upstream is a
	// conflict, not something to repair by rewriting the remote.
	res, err := run.Run(ctx, "remote", "get-url", "origin")
	if err != nil {
		var gitErr *GitExecError
		if errors.As(err, &gitErr) {
			return errors.E(op, c.Dir, errors.Conflict,
				fmt.Errorf("repository has no origin remote"))
		}
		return errors.E(op, c.Dir, err)
	}
	if !sameRemote(res.Stdout, c.Source.URL) {
		return errors.E(op, c.Dir, errors.Conflict,
			fmt.Errorf("repository tracks remote %q, expected %q",
				strings.TrimSpace(res.Stdout), c.Source.URL))
	}

	target, current, err := c.resolveBranches(ctx, run)
	if err != nil {
		return errors.E(op, c.Dir, err)
	}

	if current != target {
		pr.OptPrintf(opt, "switching %s from %s to %s\n", c.Dir, current, target)
		// Local modifications are parked, not destroyed, before the
		// branch moves underneath them.
		if _, err := run.Run(ctx, "stash"); err != nil {
			return errors.E(op, c.Dir, err)
		}
		if _, err := run.Run(ctx, "fetch", "origin"); err != nil {
			return errors.E(op, c.Dir, err)
		}
		if err := c.checkout(ctx, run, target); err != nil {
			return errors.E(op, c.Dir, err)
		}
		if _, err := run.Run(ctx, "reset", "--hard", "origin/"+target); err != nil {
			return errors.E(op, c.Dir, err)
		}
		return nil
	}

	converged, err := c.converged(ctx, run, target)
	if err != nil {
		return errors.E(op, c.Dir, err)
	}
	if converged {
		pr.OptPrintf(opt, "%s already at origin/%s\n", c.Dir, target)
		return nil
	}

	pr.OptPrintf(opt, "resetting %s to origin/%s\n", c.Dir, target)
	if _, err := run.Run(ctx, "fetch", "origin"); err != nil {
		return errors.E(op, c.Dir, err)
	}
	// The remote is the sole authority for deployed code: local drift on
	// the target branch is discarded.
	if _, err := run.Run(ctx, "reset", "--hard", "origin/"+target); err != nil {
		return errors.E(op, c.Dir, err)
	}
	return nil
}

// resolveBranches returns the policy target branch and the currently
// checked out branch.
func (c Command) resolveBranches(ctx context.Context, run *gitRunner) (target, current string, err error) {
	res, err := run.Run(ctx, "branch", "-r")
	if err != nil {
		return "", "", err
	}
	target, err = TargetBranch(c.Environment, parseRemoteBranches(res.Stdout))
	if err != nil {
		return "", "", err
	}

	cur, err := run.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", "", err
	}
	return target, strings.TrimSpace(cur.Stdout), nil
}

func (c Command) checkout(ctx context.Context, run *gitRunner, target string) error {
	localExists, err := run.ok(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+target)
	if err != nil {
		return err
	}
	if localExists {
		_, err = run.Run(ctx, "checkout", target)
	} else {
		_, err = run.Run(ctx, "checkout", "-b", target, "origin/"+target)
	}
	return err
}

// converged reports whether HEAD already matches the remote tip with a
// clean work tree. Uses ls-remote rather than fetch so that a converged
// repository sees no ref-mutating command at all.
func (c Command) converged(ctx context.Context, run *gitRunner, target string) (bool, error) {
	head, err := run.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return false, err
	}
	tip, err := run.Run(ctx, "ls-remote", "origin", "refs/heads/"+target)
	if err != nil {
		return false, err
	}
	status, err := run.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	localHead := strings.TrimSpace(head.Stdout)
	fields := strings.Fields(tip.Stdout)
	remoteTip := ""
	if len(fields) > 0 {
		remoteTip = fields[0]
	}
	return localHead != "" && localHead == remoteTip &&
		strings.TrimSpace(status.Stdout) == "", nil
}

// sameRemote compares the actual origin URL with the declared one,
// ignoring embedded credentials, trailing slashes and the .git suffix.
func sameRemote(actual, declared string) bool {
	return normalizeRemote(actual) == normalizeRemote(declared)
}

func normalizeRemote(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	if parsed, err := url.Parse(s); err == nil && parsed.Host != "" {
		parsed.User = nil
		s = parsed.String()
	}
	return s
}
