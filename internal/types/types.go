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

// Package types defines the basic types used by the berth codebase.
package types

import "path"

// RemotePath represents an absolute POSIX path on the remote host targeted
// by a reconciliation run. Remote paths are always slash-separated,
// regardless of the platform berth itself runs on.
type RemotePath string

// String returns the remote path in string format.
func (p RemotePath) String() string {
	return string(p)
}

// Empty returns true when no path has been set.
func (p RemotePath) Empty() bool {
	return p == ""
}

// Join appends elements to the remote path.
func (p RemotePath) Join(elem ...string) RemotePath {
	return RemotePath(path.Join(append([]string{string(p)}, elem...)...))
}
