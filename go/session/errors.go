// Copyright 2025 The Pqlink Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import "github.com/pqlink/pqlink/go/pqerrors"

// Thin wrappers so call sites in this package stay compact.

func errBroken(msg string) error {
	return pqerrors.New(pqerrors.Broken, msg)
}

func errBrokenf(format string, args ...any) error {
	return pqerrors.Errorf(pqerrors.Broken, format, args...)
}

func errDatabase(msg string) error {
	return pqerrors.New(pqerrors.Database, msg)
}

func errUsage(msg string) error {
	return pqerrors.New(pqerrors.Usage, msg)
}

func errArgument(msg string) error {
	return pqerrors.New(pqerrors.Argument, msg)
}

func errUnsupported(msg string) error {
	return pqerrors.New(pqerrors.Unsupported, msg)
}

func errInternal(msg string) error {
	return pqerrors.New(pqerrors.Internal, msg)
}

func isBrokenErr(err error) bool {
	return pqerrors.IsBroken(err)
}
