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

package resolver

import (
	goerrors "errors"
	"fmt"

	"github.com/berthctl/berth/internal/channel"
)

// transportErrorResolver produces error messages for errors of the
// channel.TransportError type.
type transportErrorResolver struct{}

func (*transportErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var transportErr *channel.TransportError
	if !goerrors.As(err, &transportErr) {
		return ResolvedResult{}, false
	}

	if transportErr.Timeout {
		return ResolvedResult{
			Message:  fmt.Sprintf("Error: Remote operation timed out: %v", transportErr.Err),
			ExitCode: exitTimeout,
		}, true
	}
	return ResolvedResult{
		Message:  fmt.Sprintf("Error: Lost the connection to the remote host: %v", transportErr.Err),
		ExitCode: exitChannel,
	}, true
}
