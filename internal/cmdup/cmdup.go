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

// Package cmdup contains the up command
package cmdup

import (
	"context"
	"time"

	"github.com/berthctl/berth/internal/config"
	"github.com/berthctl/berth/internal/pipeline"
	"github.com/berthctl/berth/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

// NewRunner returns a command runner
func NewRunner(ctx context.Context, parent string) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "up",
		Args:  cobra.NoArgs,
		Short: "Reconcile the remote host end to end",
		Long: `Connects to the remote host, syncs the git checkout to the declared
source, ensures kubectl, helm and k3s are installed, and applies the
Kubernetes manifests. Safe to run repeatedly; a converged host is left
untouched.`,
		Example: `  # reconcile using the environment for configuration
  ` + parent + ` up

  # reconcile, but leave the cluster state alone
  ` + parent + ` up --skip-deploy`,
		PreRunE: r.preRunE,
		RunE:    r.runE,
	}
	cmdutil.AddFlags(c.Flags(), &r.cfgFile, &r.timeout)
	c.Flags().BoolVar(&r.skipTools, "skip-tools", false,
		"Do not install or upgrade the cluster tooling.")
	c.Flags().BoolVar(&r.skipDeploy, "skip-deploy", false,
		"Sync and install only; do not apply manifests.")
	r.Command = c
	return r
}

func NewCommand(ctx context.Context, parent string) *cobra.Command {
	return NewRunner(ctx, parent).Command
}

// Runner contains the run function
type Runner struct {
	ctx     context.Context
	Command *cobra.Command

	cfgFile    string
	timeout    time.Duration
	skipTools  bool
	skipDeploy bool

	cfg *config.Config
}

func (r *Runner) preRunE(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv(r.cfgFile)
	if err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ch, err := cmdutil.DialChannel(r.cfg)
	if err != nil {
		return cmdutil.HandleError(c, err)
	}
	defer ch.Close()

	steps := pipeline.FromConfig(r.cfg, ch, pipeline.BuildOptions{
		SkipTools:  r.skipTools,
		SkipDeploy: r.skipDeploy,
	})
	_, err = pipeline.Run(ctx, steps)
	return cmdutil.HandleError(c, err)
}
