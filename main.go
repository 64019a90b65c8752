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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/berthctl/berth/internal/errors/resolver"
	"github.com/berthctl/berth/run"
)

func main() {
	ctx := context.Background()

	cmd := run.GetMain(ctx)
	if err := cmd.Execute(); err != nil {
		if rr, found := resolver.ResolveError(err); found {
			fmt.Fprintln(os.Stderr, rr.Message)
			os.Exit(rr.ExitCode)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
