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

// Package install ensures the cluster tooling (kubectl, helm, k3s) is
// present on the remote host at an acceptable version. Detection is a pair
// of read-only probes; installation runs the vendor's published procedure.
// Privilege escalation is the channel's concern, not this package's.
package install

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer"
	"github.com/berthctl/berth/internal/probe"
)

// Tool declares one required piece of cluster tooling.
type Tool struct {
	Name string

	// Constraint is a semver range the detected version must satisfy,
	// e.g. ">= 1.28". Empty accepts any version.
	Constraint string
}

// InstalledTool is the per-run record of what was found and done. Transient;
// recomputed on every run.
type InstalledTool struct {
	Name     string
	Detected string
	Required string

	// Installed is true when this run performed an installation.
	Installed bool
}

// DefaultTools is the tooling a full reconciliation ensures, in order.
// k3s comes last: its install script starts the cluster kubectl talks to.
func DefaultTools() []Tool {
	return []Tool{
		{Name: "kubectl"},
		{Name: "helm"},
		{Name: "k3s"},
	}
}

// Installer ensures tools on the remote host.
type Installer struct {
	Channel channel.Channel
	Probe   *probe.Engine
}

// EnsureAll ensures every tool sequentially, stopping at the first failure.
func (i Installer) EnsureAll(ctx context.Context, tools []Tool) ([]InstalledTool, error) {
	const op errors.Op = "install.ensureAll"

	var out []InstalledTool
	for _, tool := range tools {
		it, err := i.Ensure(ctx, tool)
		if err != nil {
			return out, errors.E(op, err)
		}
		out = append(out, it)
	}
	return out, nil
}

// Ensure probes for the tool and installs it when absent or at an
// unacceptable version. A tool already present at an acceptable version
// causes no commands beyond the probes.
func (i Installer) Ensure(ctx context.Context, tool Tool) (InstalledTool, error) {
	const op errors.Op = "install.ensure"
	pr := printer.FromContextOrDie(ctx)
	opt := printer.NewOpt().Comp("install").Indent(2)
	warnOpt := printer.NewOpt().Comp("install").Indent(2).Stderr()

	it := InstalledTool{Name: tool.Name, Required: tool.Constraint}

	present, err := i.Probe.CommandExists(ctx, tool.Name)
	if err != nil {
		return it, errors.E(op, err)
	}
	if present {
		detected, err := i.detectVersion(ctx, tool.Name)
		if err != nil {
			return it, errors.E(op, err)
		}
		it.Detected = detected
		if acceptable(detected, tool.Constraint) {
			pr.OptPrintf(opt, "%s %s already installed\n", tool.Name, detected)
			return it, nil
		}
		pr.OptPrintf(warnOpt, "%s %s does not satisfy %q, reinstalling\n", tool.Name, detected, tool.Constraint)
	} else {
		pr.OptPrintf(opt, "%s not found, installing\n", tool.Name)
	}

	if err := i.install(ctx, tool.Name); err != nil {
		return it, errors.E(op, err)
	}
	it.Installed = true

	present, err = i.Probe.CommandExists(ctx, tool.Name)
	if err != nil {
		return it, errors.E(op, err)
	}
	if !present {
		return it, errors.E(op, errors.Install,
			fmt.Errorf("%s still missing after installation", tool.Name))
	}
	detected, err := i.detectVersion(ctx, tool.Name)
	if err != nil {
		return it, errors.E(op, err)
	}
	it.Detected = detected
	if !acceptable(detected, tool.Constraint) {
		return it, errors.E(op, errors.Install,
			fmt.Errorf("%s reports version %q after installation, which does not satisfy %q",
				tool.Name, detected, tool.Constraint))
	}
	pr.OptPrintf(opt, "%s %s installed\n", tool.Name, detected)
	return it, nil
}

func (i Installer) install(ctx context.Context, name string) error {
	const op errors.Op = "install.run"

	switch name {
	case "kubectl":
		stable, err := i.fetch(ctx, "curl -fsSL https://dl.k8s.io/release/stable.txt")
		if err != nil {
			return err
		}
		stable = strings.TrimSpace(stable)
		if _, err := i.fetch(ctx, fmt.Sprintf(
			"curl -fsSLo /tmp/kubectl https://dl.k8s.io/release/%s/bin/linux/amd64/kubectl", stable)); err != nil {
			return err
		}
		return i.mutate(ctx, "install -m 0755 /tmp/kubectl /usr/local/bin/kubectl && rm -f /tmp/kubectl")

	case "helm":
		if _, err := i.fetch(ctx, "curl -fsSL https://raw.githubusercontent.com/helm/helm/main/scripts/get-helm-3 | bash"); err != nil {
			return err
		}
		return nil

	case "k3s":
		if _, err := i.fetch(ctx, "curl -sfL https://get.k3s.io | sh -"); err != nil {
			return err
		}
		return nil
	}
	return errors.E(op, errors.Config, fmt.Errorf("no installation procedure for tool %q", name))
}

// fetchTimeout bounds each vendor download so a hung fetch cannot consume
// the caller's whole deadline.
const fetchTimeout = 5 * time.Minute

// fetch runs a network-dependent install step, retrying once on a non-zero
// exit. Transport failures are never retried: the command may have run.
func (i Installer) fetch(ctx context.Context, cmd string) (string, error) {
	const op errors.Op = "install.fetch"

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := i.Channel.Run(ctx, cmd, &channel.Options{Timeout: fetchTimeout})
		if err == nil {
			return res.Stdout, nil
		}
		var execErr *channel.ExecError
		if !errors.As(err, &execErr) {
			return "", errors.E(op, transportKind(err), err)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.E(op, errors.Install, fmt.Errorf("install step failed after retry: %w", lastErr))
}

// mutate runs a non-retryable install step.
func (i Installer) mutate(ctx context.Context, cmd string) error {
	const op errors.Op = "install.mutate"

	if _, err := i.Channel.Run(ctx, cmd, nil); err != nil {
		var execErr *channel.ExecError
		if errors.As(err, &execErr) {
			return errors.E(op, errors.Install, err)
		}
		return errors.E(op, transportKind(err), err)
	}
	return nil
}

func (i Installer) detectVersion(ctx context.Context, name string) (string, error) {
	out, ok, err := i.Probe.Captured(ctx, versionCommand(name), nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return parseVersion(out), nil
}

func versionCommand(name string) string {
	switch name {
	case "kubectl":
		return "kubectl version --client"
	case "helm":
		return "helm version --short"
	case "k3s":
		return "k3s --version"
	}
	return name + " --version"
}

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+\.\d+(?:\+[0-9A-Za-z.-]+)?)`)

// parseVersion extracts the first semver-looking token from a tool's
// version output.
func parseVersion(out string) string {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[1]
}

// acceptable reports whether the detected version satisfies the
// constraint. An empty constraint accepts anything present; an
// unparseable detected version never satisfies a constraint.
func acceptable(detected, constraint string) bool {
	if constraint == "" {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	v, err := semver.NewVersion(detected)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func transportKind(err error) errors.Kind {
	var transportErr *channel.TransportError
	if errors.As(err, &transportErr) && transportErr.Timeout {
		return errors.Timeout
	}
	return errors.Channel
}
