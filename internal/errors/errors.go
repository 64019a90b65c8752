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

// Package errors defines the error handling used by the berth codebase.
package errors

import (
	goerrors "errors"
	"fmt"
	"strings"

	"github.com/berthctl/berth/internal/types"
)

// Error is an implementation of the error interface used in the berth
// codebase.
// It is based on the design in https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
type Error struct {
	// Path is the remote path involved in the operation, if any.
	Path types.RemotePath

	// Op is the operation being performed, for ex. gitsync.run, deploy.apply
	Op Op

	// Kind refers to the class of error
	Kind Kind

	// Err refers to wrapped error (if any)
	Err error
}

func (e *Error) Error() string {
	b := new(strings.Builder)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Path != "" {
		pad(b, ": ")
		b.WriteString("path ")
		b.WriteString(string(e.Path))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		if wrappedErr, ok := e.Err.(*Error); ok {
			if !wrappedErr.Zero() {
				pad(b, ":\n\t")
				b.WriteString(wrappedErr.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// pad appends given str to the string buffer.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Zero() bool {
	return e.Op == "" && e.Path == "" && e.Kind == 0 && e.Err == nil
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Op describes the operation being performed.
type Op string

// Kind describes the class of errors encountered.
type Kind int

const (
	Other    Kind = iota // Unclassified. Will not be printed.
	Config               // Declared configuration is missing or contradictory.
	Conflict             // Remote state would require an unauthorized destructive action.
	Channel              // Transport-level failure executing a remote command.
	Install              // Tool installation failed after retry.
	Timeout              // A remote command exceeded its deadline.
	Git                  // Errors from git.
	Exist                // Item already exists.
	Internal             // Internal error.
	IO                   // Local I/O error.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Config:
		return "configuration error"
	case Conflict:
		return "remote state conflict"
	case Channel:
		return "transport error"
	case Install:
		return "install error"
	case Timeout:
		return "deadline exceeded"
	case Git:
		return "git error"
	case Exist:
		return "item already exist"
	case Internal:
		return "internal error"
	case IO:
		return "I/O error"
	}
	return "unknown kind"
}

func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E must have at least one argument")
	}

	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case types.RemotePath:
			e.Path = a
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case string:
			e.Err = goerrors.New(a)
		default:
			panic(fmt.Errorf("unknown type %T for value %v in call to error.E", a, a))
		}
	}

	wrappedErr, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	if e.Path == wrappedErr.Path {
		wrappedErr.Path = ""
	}

	if e.Op == wrappedErr.Op {
		wrappedErr.Op = ""
	}

	if e.Kind == wrappedErr.Kind {
		wrappedErr.Kind = 0
	}

	return e
}

// IsKind reports whether any error in err's chain is an *Error carrying the
// given kind.
func IsKind(kind Kind, err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = goerrors.Unwrap(err)
	}
	return false
}

// As is a thin wrapper around the standard library so that callers don't
// need a second errors import.
func As(err error, target interface{}) bool {
	return goerrors.As(err, target)
}

// Is is a thin wrapper around the standard library so that callers don't
// need a second errors import.
func Is(err, target error) bool {
	return goerrors.Is(err, target)
}
