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

// Package run assembles the berth command tree.
package run

import (
	"context"
	"fmt"

	"github.com/berthctl/berth/internal/cmdapply"
	"github.com/berthctl/berth/internal/cmdsync"
	"github.com/berthctl/berth/internal/cmdtools"
	"github.com/berthctl/berth/internal/cmdup"
	"github.com/berthctl/berth/internal/printer"
	"github.com/berthctl/berth/internal/util/cmdutil"
	"github.com/spf13/cobra"
)

func GetMain(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "berth",
		Short: "Reconcile a remote host with a declared git source",
		Long: `berth connects to a remote host over SSH and drives it to a declared
state: the git checkout matches the upstream branch for the target
environment, the cluster tooling is installed, and the Kubernetes
manifests are applied. Every run starts from what the host actually
looks like, so interrupted or repeated runs converge to the same
result.`,
		SilenceUsage: true,
		// We handle all errors in main after return from cobra so we can
		// adjust the error message coming from libraries
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cmd.Flags().GetBool("help")
			if err != nil {
				return err
			}
			if h {
				return cmd.Help()
			}
			return cmd.Usage()
		},
	}

	// wire the global printer
	pr := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx = printer.WithContext(ctx, pr)

	cmd.InitDefaultHelpCmd()
	cmd.AddCommand(
		cmdup.NewCommand(ctx, "berth"),
		cmdsync.NewCommand(ctx, "berth"),
		cmdtools.NewCommand(ctx, "berth"),
		cmdapply.NewCommand(ctx, "berth"),
	)

	// enable stack traces
	cmd.PersistentFlags().BoolVar(&cmdutil.StackOnError, "stack-trace", false,
		"Print a stack-trace on failure")

	cmd.AddCommand(versionCmd)
	return cmd
}

var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of berth",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
	},
}
