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

// Package pipeline runs reconciliation steps in order over one shared
// channel and renders a run summary. Steps run strictly sequentially; a
// failure aborts everything after it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Step is one named unit of reconciliation work.
type Step struct {
	Name string

	// Skip marks the step as excluded from this run.
	Skip bool

	Run func(ctx context.Context) error
}

// Status is the outcome of one step.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the per-step record of one run.
type Result struct {
	Name     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Run executes the steps in order, aborting at the first failure. The
// summary table is always rendered, including for failed runs, so the
// operator sees how far the run got.
func Run(ctx context.Context, steps []Step) ([]Result, error) {
	const op errors.Op = "pipeline.run"
	pr := printer.FromContextOrDie(ctx)

	results := make([]Result, 0, len(steps))
	var failed error
	for _, s := range steps {
		if s.Skip || failed != nil {
			results = append(results, Result{Name: s.Name, Status: StatusSkipped})
			continue
		}

		// Step banner; the components indent their own output under it.
		pr.Printf("%s:\n", s.Name)
		start := time.Now()
		err := s.Run(ctx)
		r := Result{Name: s.Name, Duration: time.Since(start)}
		if err != nil {
			r.Status = StatusFailed
			r.Err = err
			failed = fmt.Errorf("step %s: %w", s.Name, err)
		} else {
			r.Status = StatusOK
		}
		results = append(results, r)
	}

	summarize(pr, results)
	if failed != nil {
		return results, errors.E(op, failed)
	}
	return results, nil
}

func summarize(pr printer.Printer, results []Result) {
	t := table.NewWriter()
	t.SetOutputMirror(pr.OutStream())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"STEP", "STATUS", "DURATION"})
	for _, r := range results {
		status := string(r.Status)
		switch r.Status {
		case StatusOK:
			status = text.FgGreen.Sprint(status)
		case StatusFailed:
			status = text.FgRed.Sprint(status)
		}
		dur := "-"
		if r.Status != StatusSkipped {
			dur = r.Duration.Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{r.Name, status, dur})
	}
	t.Render()
}
