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

package install

import (
	"bytes"
	"strings"
	"testing"

	"github.com/berthctl/berth/internal/channel/channeltest"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/printer/fake"
	"github.com/berthctl/berth/internal/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstaller(f *channeltest.Fake) Installer {
	return Installer{Channel: f, Probe: probe.NewEngine(f)}
}

func TestEnsurePresentAcceptableVersionIsNoOp(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'kubectl'", channeltest.Response{Stdout: "/usr/local/bin/kubectl\n"})
	f.On("kubectl version --client", channeltest.Response{Stdout: "Client Version: v1.31.2\n"})

	it, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "kubectl", Constraint: ">= 1.28"})
	require.NoError(t, err)

	assert.Equal(t, "1.31.2", it.Detected)
	assert.False(t, it.Installed)
	assert.Equal(t, 0, f.Count("curl"))
}

func TestEnsurePresentWithoutConstraintIsNoOp(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'helm'", channeltest.Response{Stdout: "/usr/local/bin/helm\n"})
	f.On("helm version --short", channeltest.Response{Stdout: "v3.15.0+gc4e3750\n"})

	it, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "helm"})
	require.NoError(t, err)

	assert.Equal(t, "3.15.0+gc4e3750", it.Detected)
	assert.False(t, it.Installed)
	assert.Equal(t, 0, f.Count("curl"))
}

func TestEnsureAbsentKubectlRunsFullProcedure(t *testing.T) {
	f := channeltest.New()
	present := false
	f.OnFunc(func(cmd string) bool { return cmd == "command -v 'kubectl'" },
		func(string) channeltest.Response {
			if present {
				return channeltest.Response{Stdout: "/usr/local/bin/kubectl\n"}
			}
			return channeltest.Response{ExitCode: 1}
		})
	f.On("stable.txt", channeltest.Response{Stdout: "v1.31.0\n"})
	f.OnFunc(func(cmd string) bool { return cmd == "install -m 0755 /tmp/kubectl /usr/local/bin/kubectl && rm -f /tmp/kubectl" },
		func(string) channeltest.Response {
			present = true
			return channeltest.Response{}
		})
	f.On("kubectl version --client", channeltest.Response{Stdout: "Client Version: v1.31.0\n"})

	it, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "kubectl"})
	require.NoError(t, err)

	assert.True(t, it.Installed)
	assert.Equal(t, "1.31.0", it.Detected)
	assert.Equal(t, 1, f.Count("curl -fsSL https://dl.k8s.io/release/stable.txt"))
	assert.Equal(t, 1, f.Count("https://dl.k8s.io/release/v1.31.0/bin/linux/amd64/kubectl"))
	assert.Equal(t, 1, f.Count("install -m 0755 /tmp/kubectl"))
}

func TestEnsureRetriesFetchOnceOnFailure(t *testing.T) {
	f := channeltest.New()
	present := false
	f.OnFunc(func(cmd string) bool { return cmd == "command -v 'helm'" },
		func(string) channeltest.Response {
			if present {
				return channeltest.Response{Stdout: "/usr/local/bin/helm\n"}
			}
			return channeltest.Response{ExitCode: 1}
		})
	attempts := 0
	f.OnFunc(func(cmd string) bool { return strings.Contains(cmd, "get-helm-3") },
		func(string) channeltest.Response {
			attempts++
			if attempts == 1 {
				return channeltest.Response{ExitCode: 7, Stderr: "curl: (7) connection refused"}
			}
			present = true
			return channeltest.Response{}
		})
	f.On("helm version --short", channeltest.Response{Stdout: "v3.15.0\n"})

	it, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "helm"})
	require.NoError(t, err)
	assert.True(t, it.Installed)
	assert.Equal(t, 2, attempts)
}

func TestEnsureSecondFetchFailureIsInstallError(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'k3s'", channeltest.Response{ExitCode: 1})
	f.On("get.k3s.io", channeltest.Response{ExitCode: 7, Stderr: "curl: (7) connection refused"})

	_, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "k3s"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(errors.Install, err))
	assert.Equal(t, 2, f.Count("get.k3s.io"))
}

func TestEnsureUnacceptableVersionReinstalls(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'kubectl'", channeltest.Response{Stdout: "/usr/local/bin/kubectl\n"})
	versions := []string{"Client Version: v1.27.0\n", "Client Version: v1.31.0\n"}
	f.OnFunc(func(cmd string) bool { return cmd == "kubectl version --client" },
		func(string) channeltest.Response {
			out := versions[0]
			if len(versions) > 1 {
				versions = versions[1:]
			}
			return channeltest.Response{Stdout: out}
		})
	f.On("stable.txt", channeltest.Response{Stdout: "v1.31.0\n"})

	it, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "kubectl", Constraint: ">= 1.28"})
	require.NoError(t, err)

	assert.True(t, it.Installed)
	assert.Equal(t, "1.31.0", it.Detected)
	assert.Equal(t, 1, f.Count("install -m 0755 /tmp/kubectl"))
}

func TestEnsureReinstallWarningGoesToStderr(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'kubectl'", channeltest.Response{Stdout: "/usr/local/bin/kubectl\n"})
	versions := []string{"Client Version: v1.27.0\n", "Client Version: v1.31.0\n"}
	f.OnFunc(func(cmd string) bool { return cmd == "kubectl version --client" },
		func(string) channeltest.Response {
			out := versions[0]
			if len(versions) > 1 {
				versions = versions[1:]
			}
			return channeltest.Response{Stdout: out}
		})
	f.On("stable.txt", channeltest.Response{Stdout: "v1.31.0\n"})

	var out, errOut bytes.Buffer
	_, err := newInstaller(f).Ensure(fake.CtxWithPrinter(&out, &errOut),
		Tool{Name: "kubectl", Constraint: ">= 1.28"})
	require.NoError(t, err)

	assert.Contains(t, errOut.String(), "does not satisfy")
	assert.NotContains(t, out.String(), "does not satisfy")
	assert.Contains(t, out.String(), "  [install] kubectl 1.31.0 installed")
}

func TestFetchStepsAreDeadlineBounded(t *testing.T) {
	f := channeltest.New()
	present := false
	f.OnFunc(func(cmd string) bool { return cmd == "command -v 'helm'" },
		func(string) channeltest.Response {
			if present {
				return channeltest.Response{Stdout: "/usr/local/bin/helm\n"}
			}
			return channeltest.Response{ExitCode: 1}
		})
	f.OnFunc(func(cmd string) bool { return strings.Contains(cmd, "get-helm-3") },
		func(string) channeltest.Response {
			present = true
			return channeltest.Response{}
		})
	f.On("helm version --short", channeltest.Response{Stdout: "v3.15.0\n"})

	_, err := newInstaller(f).Ensure(fake.CtxWithNilPrinter(), Tool{Name: "helm"})
	require.NoError(t, err)

	for _, c := range f.Calls {
		if strings.Contains(c.Command, "get-helm-3") {
			assert.Equal(t, fetchTimeout, c.Opts.Timeout)
			return
		}
	}
	t.Fatal("the helm install script was never fetched")
}

func TestEnsureAllStopsAtFirstFailure(t *testing.T) {
	f := channeltest.New()
	f.On("command -v 'kubectl'", channeltest.Response{ExitCode: 1})
	f.On("curl", channeltest.Response{ExitCode: 7, Stderr: "curl: (7) connection refused"})

	done, err := newInstaller(f).EnsureAll(fake.CtxWithNilPrinter(), DefaultTools())
	require.Error(t, err)
	assert.Empty(t, done)
	assert.Equal(t, 0, f.Count("command -v 'helm'"))
	assert.Equal(t, 0, f.Count("command -v 'k3s'"))
}

func TestParseVersion(t *testing.T) {
	testCases := map[string]struct {
		out      string
		expected string
	}{
		"kubectl client output": {out: "Client Version: v1.31.2\nKustomize Version: v5.4.2", expected: "1.31.2"},
		"helm short output":     {out: "v3.15.0+gc4e3750", expected: "3.15.0+gc4e3750"},
		"k3s output":            {out: "k3s version v1.28.5+k3s1 (ab12cd34)", expected: "1.28.5+k3s1"},
		"no version present":    {out: "command exists but says nothing useful", expected: ""},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseVersion(tc.out))
		})
	}
}

func TestAcceptable(t *testing.T) {
	testCases := map[string]struct {
		detected   string
		constraint string
		expected   bool
	}{
		"empty constraint accepts anything": {detected: "1.2.3", constraint: "", expected: true},
		"satisfied range":                   {detected: "1.31.2", constraint: ">= 1.28", expected: true},
		"unsatisfied range":                 {detected: "1.27.0", constraint: ">= 1.28", expected: false},
		"build metadata is ignored":         {detected: "1.28.5+k3s1", constraint: ">= 1.28", expected: true},
		"undetectable version never passes": {detected: "", constraint: ">= 1.28", expected: false},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, acceptable(tc.detected, tc.constraint))
		})
	}
}
