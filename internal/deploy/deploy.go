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

// Package deploy applies the Kubernetes manifests from the synced checkout
// to the cluster running on the remote host.
package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer"
	"github.com/berthctl/berth/internal/probe"
	"github.com/berthctl/berth/internal/types"
	"k8s.io/apimachinery/pkg/util/validation"
)

// SourceKind records how the manifest path was determined.
type SourceKind int

const (
	// ExplicitFile is a configured path that resolved to a regular file.
	ExplicitFile SourceKind = iota
	// ExplicitDirectory is a configured path that resolved to a directory.
	ExplicitDirectory
	// AutoDetectedDirectory is the k8s/ directory found at the checkout
	// root when no path was configured.
	AutoDetectedDirectory
)

func (k SourceKind) String() string {
	switch k {
	case ExplicitFile:
		return "file"
	case ExplicitDirectory:
		return "directory"
	case AutoDetectedDirectory:
		return "auto-detected directory"
	}
	return "unknown"
}

// ManifestSource is the resolved manifest location for one run. Derived
// fresh every run, never persisted.
type ManifestSource struct {
	Kind      SourceKind
	Path      types.RemotePath
	Namespace string
}

// Command applies manifests from a checkout to the cluster.
type Command struct {
	Channel channel.Channel
	Probe   *probe.Engine

	// Dir is the checkout root. Relative manifest paths resolve against it.
	Dir types.RemotePath

	// ManifestPath is the configured manifest location. Empty enables
	// auto-detection of Dir/k8s.
	ManifestPath string

	// Namespace is the target namespace. Empty means "default".
	Namespace string
}

// Run resolves the manifest source, ensures the namespace exists, and
// applies the manifests. kubectl apply is idempotent, so a converged
// cluster sees only no-op applies.
func (c Command) Run(ctx context.Context) error {
	const op errors.Op = "deploy.run"
	pr := printer.FromContextOrDie(ctx)
	opt := printer.NewOpt().Comp("deploy").Indent(2)

	src, err := c.ResolveManifestSource(ctx)
	if err != nil {
		return errors.E(op, err)
	}

	if err := c.ensureNamespace(ctx, pr, src.Namespace); err != nil {
		return errors.E(op, err)
	}

	pr.OptPrintf(opt, "applying %s %s to namespace %s\n", src.Kind, src.Path, src.Namespace)
	if err := c.apply(ctx, src); err != nil {
		return errors.E(op, src.Path, err)
	}
	return nil
}

// ResolveManifestSource decides what to apply. A configured path wins and
// must exist; without one, a k8s/ directory at the checkout root is used.
// Neither existing is a configuration error, not a silent no-op.
func (c Command) ResolveManifestSource(ctx context.Context) (ManifestSource, error) {
	const op errors.Op = "deploy.resolveManifestSource"

	ns := c.Namespace
	if ns == "" {
		ns = "default"
	}
	if errs := validation.IsDNS1123Label(ns); len(errs) > 0 {
		return ManifestSource{}, errors.E(op, errors.Config,
			fmt.Errorf("invalid namespace %q: %s", ns, strings.Join(errs, "; ")))
	}

	if c.ManifestPath != "" {
		p := c.resolvePath(c.ManifestPath)
		isDir, err := c.Probe.IsDirectory(ctx, p)
		if err != nil {
			return ManifestSource{}, errors.E(op, p, err)
		}
		if isDir {
			return ManifestSource{Kind: ExplicitDirectory, Path: p, Namespace: ns}, nil
		}
		isFile, err := c.Probe.IsFile(ctx, p)
		if err != nil {
			return ManifestSource{}, errors.E(op, p, err)
		}
		if isFile {
			return ManifestSource{Kind: ExplicitFile, Path: p, Namespace: ns}, nil
		}
		return ManifestSource{}, errors.E(op, p, errors.Config,
			fmt.Errorf("configured manifest path does not exist on the remote host"))
	}

	auto := c.Dir.Join("k8s")
	isDir, err := c.Probe.IsDirectory(ctx, auto)
	if err != nil {
		return ManifestSource{}, errors.E(op, auto, err)
	}
	if isDir {
		return ManifestSource{Kind: AutoDetectedDirectory, Path: auto, Namespace: ns}, nil
	}
	return ManifestSource{}, errors.E(op, c.Dir, errors.Config,
		fmt.Errorf("No k8s_manifest_path configured and no k8s/ directory found"))
}

func (c Command) resolvePath(p string) types.RemotePath {
	p = strings.TrimSuffix(p, "/")
	if strings.HasPrefix(p, "/") {
		return types.RemotePath(p)
	}
	return c.Dir.Join(p)
}

// ensureNamespace creates the namespace when missing. A create that loses
// the race to a concurrent creator counts as success.
func (c Command) ensureNamespace(ctx context.Context, pr printer.Printer, ns string) error {
	const op errors.Op = "deploy.ensureNamespace"
	opt := printer.NewOpt().Comp("deploy").Indent(2)

	_, exists, err := c.Probe.Captured(ctx, "kubectl get namespace "+channel.Quote(ns), nil)
	if err != nil {
		return errors.E(op, err)
	}
	if exists {
		return nil
	}

	pr.OptPrintf(opt, "creating namespace %s\n", ns)
	_, err = c.Channel.Run(ctx, "kubectl create namespace "+channel.Quote(ns), nil)
	if err == nil {
		return nil
	}
	var execErr *channel.ExecError
	if errors.As(err, &execErr) {
		if strings.Contains(execErr.Result.Stderr, "AlreadyExists") ||
			strings.Contains(execErr.Result.Stderr, "already exists") {
			return nil
		}
		return errors.E(op, fmt.Errorf("creating namespace %q: %w", ns, err))
	}
	return errors.E(op, transportKind(err), err)
}

func (c Command) apply(ctx context.Context, src ManifestSource) error {
	const op errors.Op = "deploy.apply"

	var sb strings.Builder
	sb.WriteString("kubectl apply")
	if src.Kind != ExplicitFile {
		sb.WriteString(" -R")
	}
	sb.WriteString(" -f " + channel.Quote(src.Path.String()))
	sb.WriteString(" -n " + channel.Quote(src.Namespace))

	_, err := c.Channel.Run(ctx, sb.String(), &channel.Options{Dir: c.Dir.String()})
	if err == nil {
		return nil
	}
	var execErr *channel.ExecError
	if errors.As(err, &execErr) {
		return errors.E(op, fmt.Errorf("kubectl apply failed: %w", err))
	}
	return errors.E(op, transportKind(err), err)
}

func transportKind(err error) errors.Kind {
	var transportErr *channel.TransportError
	if errors.As(err, &transportErr) && transportErr.Timeout {
		return errors.Timeout
	}
	return errors.Channel
}
