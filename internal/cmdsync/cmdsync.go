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

// Package cmdsync contains the sync command
package cmdsync

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
		Use:   "sync",
		Args:  cobra.NoArgs,
		Short: "Sync the remote git checkout to the declared source",
		Long: `Clones or updates the repository on the remote host so it matches the
upstream branch for the configured environment. Tooling and manifests
are not touched.`,
		Example: `  ` + parent + ` sync`,
		PreRunE: r.preRunE,
		RunE:    r.runE,
	}
	cmdutil.AddFlags(c.Flags(), &r.cfgFile, &r.timeout)
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

	cfgFile string
	timeout time.Duration

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
		SkipTools:  true,
		SkipDeploy: true,
	})
	_, err = pipeline.Run(ctx, steps)
	return cmdutil.HandleError(c, err)
}
