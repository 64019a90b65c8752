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

// Package cmdutil holds the small pieces shared by every berth command:
// the common flags, the channel dial helper, and error display.
package cmdutil

import (
	"fmt"
	"os"
	"time"

	"github.com/berthctl/berth/internal/channel"
	"github.com/berthctl/berth/internal/config"
	goerrors "github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	StackTraceOnErrors = "BERTH_STACK_TRACE_ON_ERRORS"
	trueString         = "true"
)

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

func PrintErrorStacktrace() bool {
	e := os.Getenv(StackTraceOnErrors)
	if StackOnError || e == trueString || e == "1" {
		return true
	}
	return false
}

// HandleError prints a stack trace when enabled and passes the error back
// for resolution in main.
func HandleError(c *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if PrintErrorStacktrace() {
		fmt.Fprintf(c.ErrOrStderr(), "%s", goerrors.Wrap(err, 1).ErrorStack())
	}
	return err
}

// AddFlags registers the flags every berth command accepts.
func AddFlags(fs *pflag.FlagSet, cfgFile *string, timeout *time.Duration) {
	fs.StringVar(cfgFile, "config", "",
		"Path to an optional YAML config file. The environment overrides it.")
	fs.DurationVar(timeout, "timeout", 0,
		"Abort the run after this duration. Zero means no limit.")
}

// DialChannel opens the SSH channel to the configured remote host. The
// caller owns the returned channel and must Close it.
func DialChannel(cfg *config.Config) (channel.Channel, error) {
	return channel.DialSSH(cfg.SSHConfig())
}
