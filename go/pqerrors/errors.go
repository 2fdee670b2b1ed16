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

package pqerrors

import (
	"errors"
	"fmt"
)

// codedError is the concrete error type. It wraps an underlying cause so
// errors.Is/As keep working through the code layer.
type codedError struct {
	code Code
	err  error
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

// New returns an error with the given code and message.
func New(code Code, msg string) error {
	return &codedError{code: code, err: errors.New(msg)}
}

// Errorf returns an error with the given code and formatted message.
// The format may wrap a cause with %w.
func Errorf(code Code, format string, args ...any) error {
	return &codedError{code: code, err: fmt.Errorf(format, args...)}
}

// Wrap annotates err with a code, preserving it as the cause.
// Returns nil if err is nil.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// CodeOf extracts the code from err, walking the wrap chain.
// Returns Unknown for nil or uncoded errors.
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return Unknown
}

// IsBroken reports whether err is classified as a broken connection.
func IsBroken(err error) bool {
	return CodeOf(err) == Broken
}

// IsDatabase reports whether err carries a server-reported failure.
func IsDatabase(err error) bool {
	return CodeOf(err) == Database
}

// IsUsage reports whether err is a caller precondition violation.
func IsUsage(err error) bool {
	return CodeOf(err) == Usage
}

// IsArgument reports whether err is an invalid-input error.
func IsArgument(err error) bool {
	return CodeOf(err) == Argument
}

// IsUnsupported reports whether err is a version-floor violation.
func IsUnsupported(err error) bool {
	return CodeOf(err) == Unsupported
}

// IsInternal reports whether err is an internal-invariant violation.
func IsInternal(err error) bool {
	return CodeOf(err) == Internal
}
