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

package deploy

import (
	"testing"

	"github.com/berthctl/berth/internal/channel/channeltest"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer/fake"
	"github.com/berthctl/berth/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkout = "/opt/deploy/app"

func newCommand(f *channeltest.Fake, manifestPath, namespace string) Command {
	return Command{
		Channel:      f,
		Probe:        probe.NewEngine(f),
		Dir:          checkout,
		ManifestPath: manifestPath,
		Namespace:    namespace,
	}
}

func TestResolveManifestSource(t *testing.T) {
	testCases := map[string]struct {
		manifestPath string
		dirs         []string
		files        []string
		expectedKind SourceKind
		expectedPath string
		wantErr      bool
		wantMsg      string
	}{
		"explicit relative directory": {
			manifestPath: "deploy/manifests",
			dirs:         []string{checkout + "/deploy/manifests"},
			expectedKind: ExplicitDirectory,
			expectedPath: checkout + "/deploy/manifests",
		},
		"explicit directory with trailing slash": {
			manifestPath: "k8s/",
			dirs:         []string{checkout + "/k8s"},
			expectedKind: ExplicitDirectory,
			expectedPath: checkout + "/k8s",
		},
		"explicit absolute file": {
			manifestPath: "/etc/berth/app.yaml",
			files:        []string{"/etc/berth/app.yaml"},
			expectedKind: ExplicitFile,
			expectedPath: "/etc/berth/app.yaml",
		},
		"explicit relative file": {
			manifestPath: "app.yaml",
			files:        []string{checkout + "/app.yaml"},
			expectedKind: ExplicitFile,
			expectedPath: checkout + "/app.yaml",
		},
		"auto-detected k8s directory": {
			dirs:         []string{checkout + "/k8s"},
			expectedKind: AutoDetectedDirectory,
			expectedPath: checkout + "/k8s",
		},
		"configured path missing": {
			manifestPath: "deploy/manifests",
			wantErr:      true,
			wantMsg:      "configured manifest path does not exist",
		},
		"nothing configured, nothing detected": {
			wantErr: true,
			wantMsg: "No k8s_manifest_path configured and no k8s/ directory found",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			f := channeltest.New()
			f.On("test -", channeltest.Response{ExitCode: 1})
			for _, d := range tc.dirs {
				f.On("test -d '"+d+"'", channeltest.Response{})
			}
			for _, fp := range tc.files {
				f.On("test -f '"+fp+"'", channeltest.Response{})
			}

			src, err := newCommand(f, tc.manifestPath, "default").ResolveManifestSource(fake.CtxWithNilPrinter())
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsKind(errors.Config, err))
				if tc.wantMsg != "" {
					assert.Contains(t, err.Error(), tc.wantMsg)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedKind, src.Kind)
			assert.Equal(t, tc.expectedPath, src.Path.String())
			assert.Equal(t, "default", src.Namespace)
		})
	}
}

func TestResolveManifestSourceRejectsInvalidNamespace(t *testing.T) {
	f := channeltest.New()
	_, err := newCommand(f, "k8s", "Not_A_Namespace").ResolveManifestSource(fake.CtxWithNilPrinter())
	require.Error(t, err)
	assert.True(t, errors.IsKind(errors.Config, err))
	assert.Empty(t, f.Calls, "validation failures must not touch the remote host")
}

func TestRunAppliesDirectoryRecursively(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -d '"+checkout+"/k8s'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{})

	require.NoError(t, newCommand(f, "", "apps").Run(fake.CtxWithNilPrinter()))

	assert.Equal(t, 1, f.Count("kubectl apply -R -f '"+checkout+"/k8s' -n 'apps'"))
	assert.Equal(t, 0, f.Count("kubectl create namespace"))
}

func TestRunAppliesSingleFileWithoutRecursion(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -f '"+checkout+"/app.yaml'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{})

	require.NoError(t, newCommand(f, "app.yaml", "default").Run(fake.CtxWithNilPrinter()))

	assert.Equal(t, 1, f.Count("kubectl apply -f '"+checkout+"/app.yaml' -n 'default'"))
	assert.Equal(t, 0, f.Count("apply -R"))
}

func TestRunCreatesMissingNamespace(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -d '"+checkout+"/k8s'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{ExitCode: 1, Stderr: "Error from server (NotFound)"})

	require.NoError(t, newCommand(f, "", "apps").Run(fake.CtxWithNilPrinter()))

	assert.Equal(t, 1, f.Count("kubectl create namespace 'apps'"))
	assert.Equal(t, 1, f.Count("kubectl apply -R"))
}

func TestRunToleratesNamespaceCreationRace(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -d '"+checkout+"/k8s'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{ExitCode: 1, Stderr: "Error from server (NotFound)"})
	f.On("kubectl create namespace", channeltest.Response{
		ExitCode: 1,
		Stderr:   `Error from server (AlreadyExists): namespaces "apps" already exists`,
	})

	require.NoError(t, newCommand(f, "", "apps").Run(fake.CtxWithNilPrinter()))
	assert.Equal(t, 1, f.Count("kubectl apply"))
}

func TestRunSurfacesApplyFailure(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -d '"+checkout+"/k8s'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{})
	f.On("kubectl apply", channeltest.Response{
		ExitCode: 1,
		Stderr:   "error validating data: unknown field",
	})

	err := newCommand(f, "", "default").Run(fake.CtxWithNilPrinter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kubectl apply failed")
}

func TestApplyRunsFromCheckoutDir(t *testing.T) {
	f := channeltest.New()
	f.On("test -", channeltest.Response{ExitCode: 1})
	f.On("test -d '"+checkout+"/k8s'", channeltest.Response{})
	f.On("kubectl get namespace", channeltest.Response{})

	require.NoError(t, newCommand(f, "", "default").Run(fake.CtxWithNilPrinter()))

	for _, call := range f.Calls {
		if call.Command == "kubectl apply -R -f '"+checkout+"/k8s' -n 'default'" {
			assert.Equal(t, checkout, call.Opts.Dir)
			return
		}
	}
	t.Fatal("kubectl apply was never issued")
}
