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
	"fmt"
	"strings"

	"github.com/berthctl/berth/internal/errors"
)

// prodEnvironment is the one environment name that does not map to a
// branch of the same name.
const prodEnvironment = "prod"

// TargetBranch resolves the environment name to the branch that should be
// deployed, given the branches known on the remote. "prod" deploys the
// repository's primary branch: main, falling back to master when main does
// not exist. Every other environment deploys the branch named after it.
func TargetBranch(environment string, remoteBranches []string) (string, error) {
	const op errors.Op = "gitsync.targetBranch"

	has := func(name string) bool {
		for _, b := range remoteBranches {
			if b == name {
				return true
			}
		}
		return false
	}

	if environment == prodEnvironment {
		switch {
		case has("main"):
			return "main", nil
		case has("master"):
			return "master", nil
		default:
			return "", errors.E(op, errors.Config,
				fmt.Errorf("environment %q requires branch main or master, neither exists on the remote", environment))
		}
	}

	if !has(environment) {
		return "", errors.E(op, errors.Config,
			fmt.Errorf("branch %q for environment %q does not exist on the remote", environment, environment))
	}
	return environment, nil
}

// parseRemoteBranches turns `git branch -r` output into bare branch names:
// each line is trimmed, the symbolic HEAD pointer line is skipped, and the
// origin/ prefix is stripped.
func parseRemoteBranches(out string) []string {
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "->") {
			continue
		}
		branches = append(branches, strings.TrimPrefix(line, "origin/"))
	}
	return branches
}
