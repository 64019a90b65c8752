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

// Package config loads the declarative run configuration. Values come from
// an optional YAML file overlaid by environment variables; the environment
// always wins. All validation happens at load time so a bad configuration
// fails before the first remote connection.
package config

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/errors"
	"github.com/berthctl/berth/internal/gitsync"
	"github.com/berthctl/berth/internal/types"
	"gopkg.in/yaml.v3"
)

// Config is the full declarative input for one reconciliation run.
type Config struct {
	GitURL        string `yaml:"git_url"`
	GitAuthMethod string `yaml:"git_auth_method"`
	GitToken      string `yaml:"git_token"`
	GitSSHKey     string `yaml:"git_ssh_key"`

	Environment string `yaml:"environment"`

	RemoteHost     string `yaml:"remote_host"`
	RemotePort     int    `yaml:"remote_port"`
	RemoteUser     string `yaml:"remote_user"`
	RemotePassword string `yaml:"remote_password"`
	SSHKey         string `yaml:"ssh_key"`

	RemoteDir   string `yaml:"remote_dir"`
	ProjectName string `yaml:"project_name"`

	K8sManifestPath string `yaml:"k8s_manifest_path"`
	K8sNamespace    string `yaml:"k8s_namespace"`
}

// Lookup resolves one environment variable, in the manner of os.LookupEnv.
type Lookup func(key string) (string, bool)

// Load reads the optional YAML file, overlays the environment, fills
// defaults and validates. file may be empty.
func Load(file string, lookup Lookup) (*Config, error) {
	const op errors.Op = "config.load"

	cfg := &Config{
		Environment:  "dev",
		RemoteUser:   "root",
		RemotePort:   22,
		RemoteDir:    "/opt/deploy",
		K8sNamespace: "default",
	}

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.E(op, errors.IO, fmt.Errorf("reading config file %s: %w", file, err))
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.E(op, errors.Config, fmt.Errorf("parsing config file %s: %w", file, err))
		}
	}

	if err := overlayEnv(cfg, lookup); err != nil {
		return nil, errors.E(op, err)
	}

	if cfg.ProjectName == "" && cfg.GitURL != "" {
		cfg.ProjectName = projectNameFromURL(cfg.GitURL)
	}

	if err := cfg.validate(); err != nil {
		return nil, errors.E(op, err)
	}
	return cfg, nil
}

// LoadFromEnv is Load with the process environment.
func LoadFromEnv(file string) (*Config, error) {
	return Load(file, os.LookupEnv)
}

func overlayEnv(cfg *Config, lookup Lookup) error {
	const op errors.Op = "config.overlayEnv"
	if lookup == nil {
		return nil
	}

	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	set("GIT_URL", &cfg.GitURL)
	set("GIT_AUTH_METHOD", &cfg.GitAuthMethod)
	set("GIT_TOKEN", &cfg.GitToken)
	set("GIT_SSH_KEY", &cfg.GitSSHKey)
	set("ENVIRONMENT", &cfg.Environment)
	set("REMOTE_HOST", &cfg.RemoteHost)
	set("REMOTE_USER", &cfg.RemoteUser)
	set("REMOTE_PASSWORD", &cfg.RemotePassword)
	set("SSH_KEY", &cfg.SSHKey)
	set("REMOTE_DIR", &cfg.RemoteDir)
	set("PROJECT_NAME", &cfg.ProjectName)
	set("K8S_MANIFEST_PATH", &cfg.K8sManifestPath)
	set("K8S_NAMESPACE", &cfg.K8sNamespace)

	if v, ok := lookup("REMOTE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.E(op, errors.Config, fmt.Errorf("REMOTE_PORT %q is not a number", v))
		}
		cfg.RemotePort = port
	}
	return nil
}

// projectNameFromURL derives the checkout directory name from the last
// path element of the repository URL.
func projectNameFromURL(gitURL string) string {
	s := strings.TrimSuffix(strings.TrimSuffix(gitURL, "/"), ".git")
	if i := strings.LastIndex(s, ":"); i >= 0 && !strings.Contains(s[i:], "/") {
		// scp-like syntax with no path separator after the colon
		return s[i+1:]
	}
	return path.Base(s)
}

func (c *Config) validate() error {
	const op errors.Op = "config.validate"

	if c.GitURL == "" {
		return errors.E(op, errors.Config, fmt.Errorf("GIT_URL is required"))
	}
	if c.RemoteHost == "" {
		return errors.E(op, errors.Config, fmt.Errorf("REMOTE_HOST is required"))
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return errors.E(op, errors.Config, fmt.Errorf("REMOTE_PORT %d is out of range", c.RemotePort))
	}
	if c.ProjectName == "" {
		return errors.E(op, errors.Config, fmt.Errorf("PROJECT_NAME could not be derived from %q", c.GitURL))
	}
	if !strings.HasPrefix(c.RemoteDir, "/") {
		return errors.E(op, errors.Config, fmt.Errorf("REMOTE_DIR %q must be absolute", c.RemoteDir))
	}
	if c.SSHKey == "" && c.RemotePassword == "" {
		return errors.E(op, errors.Config, fmt.Errorf("either SSH_KEY or REMOTE_PASSWORD is required to reach %s", c.RemoteHost))
	}

	method, err := gitsync.ParseMethod(c.GitAuthMethod)
	if err != nil {
		return errors.E(op, err)
	}
	switch method {
	case gitsync.MethodToken:
		if c.GitToken == "" {
			return errors.E(op, errors.Config, fmt.Errorf("git auth method is token but GIT_TOKEN is empty"))
		}
	case gitsync.MethodSSH:
		if c.GitSSHKey == "" {
			return errors.E(op, errors.Config, fmt.Errorf("git auth method is ssh but GIT_SSH_KEY is empty"))
		}
	}
	return nil
}

// GitDir is the checkout directory on the remote host.
func (c *Config) GitDir() types.RemotePath {
	return types.RemotePath(c.RemoteDir).Join(c.ProjectName)
}

// Source is the declared git source. The method string was validated at
// load time.
func (c *Config) Source() gitsync.Source {
	method, _ := gitsync.ParseMethod(c.GitAuthMethod)
	src := gitsync.Source{URL: c.GitURL, Method: method, Token: c.GitToken}
	if c.GitSSHKey != "" {
		src.SSHKey = []byte(c.GitSSHKey)
	}
	return src
}

// SSHConfig is the channel dial configuration.
func (c *Config) SSHConfig() channel.SSHConfig {
	sc := channel.SSHConfig{
		Host:     c.RemoteHost,
		Port:     c.RemotePort,
		User:     c.RemoteUser,
		Password: c.RemotePassword,
	}
	if c.SSHKey != "" {
		sc.PrivateKey = []byte(c.SSHKey)
	}
	return sc
}
