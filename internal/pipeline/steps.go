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

package pipeline

import (
	"context"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/config"
	"github.com/berthctl/berth/internal/deploy"
	"github.com/berthctl/berth/internal/gitsync"
	"github.com/berthctl/berth/internal/install"
	"github.com/berthctl/berth/internal/probe"
)

// BuildOptions selects which steps a run performs.
type BuildOptions struct {
	SkipSync   bool
	SkipTools  bool
	SkipDeploy bool
}

// FromConfig assembles the standard reconciliation steps over one shared
// channel: sync the checkout, ensure the tooling, apply the manifests.
func FromConfig(cfg *config.Config, ch channel.Channel, opts BuildOptions) []Step {
	eng := probe.NewEngine(ch)

	sync := gitsync.Command{
		Channel:     ch,
		Probe:       eng,
		Dir:         cfg.GitDir(),
		Source:      cfg.Source(),
		Environment: cfg.Environment,
	}
	tools := install.Installer{Channel: ch, Probe: eng}
	apply := deploy.Command{
		Channel:      ch,
		Probe:        eng,
		Dir:          cfg.GitDir(),
		ManifestPath: cfg.K8sManifestPath,
		Namespace:    cfg.K8sNamespace,
	}

	return []Step{
		{Name: "sync", Skip: opts.SkipSync, Run: sync.Run},
		{Name: "tools", Skip: opts.SkipTools, Run: func(ctx context.Context) error {
			_, err := tools.EnsureAll(ctx, install.DefaultTools())
			return err
		}},
		{Name: "deploy", Skip: opts.SkipDeploy, Run: apply.Run},
	}
}
