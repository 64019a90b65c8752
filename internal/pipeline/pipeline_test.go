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
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesStepsInOrder(t *testing.T) {
	var order []string
	step := func(name string) Step {
		return Step{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	results, err := Run(fake.CtxWithNilPrinter(), []Step{step("sync"), step("tools"), step("deploy")})
	require.NoError(t, err)

	assert.Equal(t, []string{"sync", "tools", "deploy"}, order)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, StatusOK, r.Status)
	}
}

func TestRunAbortsAfterFirstFailure(t *testing.T) {
	boom := errors.E(errors.Op("gitsync.run"), errors.Conflict, fmt.Errorf("dirty checkout"))
	ran := false

	results, err := Run(fake.CtxWithNilPrinter(), []Step{
		{Name: "sync", Run: func(context.Context) error { return boom }},
		{Name: "deploy", Run: func(context.Context) error { ran = true; return nil }},
	})
	require.Error(t, err)

	assert.False(t, ran, "steps after a failure must not run")
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusSkipped, results[1].Status)
	assert.Contains(t, err.Error(), "step sync")
	assert.True(t, errors.IsKind(errors.Conflict, err), "the step's error kind must survive wrapping")
}

func TestRunHonorsSkip(t *testing.T) {
	ran := false
	results, err := Run(fake.CtxWithNilPrinter(), []Step{
		{Name: "sync", Run: func(context.Context) error { return nil }},
		{Name: "tools", Skip: true, Run: func(context.Context) error { ran = true; return nil }},
	})
	require.NoError(t, err)

	assert.False(t, ran)
	assert.Equal(t, StatusSkipped, results[1].Status)
}

func TestRunRendersSummary(t *testing.T) {
	var out bytes.Buffer
	ctx := fake.CtxWithPrinter(&out, &out)

	_, err := Run(ctx, []Step{
		{Name: "sync", Run: func(context.Context) error { return nil }},
		{Name: "deploy", Run: func(context.Context) error { return fmt.Errorf("apply failed") }},
	})
	require.Error(t, err)

	assert.Contains(t, out.String(), "sync")
	assert.Contains(t, out.String(), "deploy")
	assert.Contains(t, out.String(), "STEP")
}

func TestRunPrintsBannersForExecutedStepsOnly(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(fake.CtxWithPrinter(&out, &out), []Step{
		{Name: "sync", Run: func(context.Context) error { return nil }},
		{Name: "tools", Skip: true, Run: func(context.Context) error { return nil }},
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "sync:\n")
	assert.NotContains(t, out.String(), "tools:")
}

func TestRunSummaryIncludesSkippedSteps(t *testing.T) {
	var out bytes.Buffer
	_, err := Run(fake.CtxWithPrinter(&out, &out), []Step{
		{Name: "tools", Skip: true, Run: func(context.Context) error { return nil }},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "tools")
	assert.Contains(t, out.String(), "skipped")
}
