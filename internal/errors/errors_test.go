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

package errors

import (
	"fmt"
	"testing"

	"github.com/berthctl/berth/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	testCases := map[string]struct {
		err      error
		expected string
	}{
		"op and kind": {
			err:      E(Op("gitsync.run"), Git, fmt.Errorf("exit status 128")),
			expected: "gitsync.run: git error: exit status 128",
		},
		"nested errors deduplicate op and kind": {
			err: E(Op("pipeline.run"), Config,
				E(Op("deploy.resolve"), Config, fmt.Errorf("no manifest source"))),
			expected: "pipeline.run: configuration error:\n\tdeploy.resolve: no manifest source",
		},
		"path is included": {
			err:      E(Op("gitsync.detect"), types.RemotePath("/opt/deploy/app"), Conflict),
			expected: "gitsync.detect: path /opt/deploy/app: remote state conflict",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	err := E(Op("pipeline.run"), E(Op("install.ensure"), Install, fmt.Errorf("curl: (6) could not resolve host")))
	assert.True(t, IsKind(Install, err))
	assert.False(t, IsKind(Config, err))
	assert.False(t, IsKind(Install, nil))
}

func TestIsKindWalksWrappedChains(t *testing.T) {
	inner := E(Op("probe.exists"), Timeout, fmt.Errorf("context deadline exceeded"))
	outer := fmt.Errorf("probing remote: %w", inner)
	assert.True(t, IsKind(Timeout, outer))
}
