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

	"github.com/berthctl/berth/internal/errors"
)

// Exit codes per failure class. Zero is success, one is any error no
// resolver can classify.
const (
	exitConfig   = 2
	exitConflict = 3
	exitChannel  = 4
	exitInstall  = 5
	exitTimeout  = 6
)

// kindResolver classifies any *errors.Error by the first concrete kind in
// its chain.
type kindResolver struct{}

func (*kindResolver) Resolve(err error) (ResolvedResult, bool) {
	var berthErr *errors.Error
	if !goerrors.As(err, &berthErr) {
		return ResolvedResult{}, false
	}

	rr := ResolvedResult{Message: fmt.Sprintf("Error: %v", err)}
	switch firstKind(err) {
	case errors.Config:
		rr.ExitCode = exitConfig
	case errors.Conflict:
		rr.ExitCode = exitConflict
	case errors.Channel:
		rr.ExitCode = exitChannel
	case errors.Install:
		rr.ExitCode = exitInstall
	case errors.Timeout:
		rr.ExitCode = exitTimeout
	}
	return rr, true
}

// firstKind walks the chain outside-in and returns the first kind that is
// not Other.
func firstKind(err error) errors.Kind {
	for err != nil {
		var berthErr *errors.Error
		if goerrors.As(err, &berthErr) {
			if berthErr.Kind != errors.Other {
				return berthErr.Kind
			}
			err = berthErr.Err
			continue
		}
		err = goerrors.Unwrap(err)
	}
	return errors.Other
}
