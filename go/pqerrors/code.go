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

// Package pqerrors defines the error taxonomy shared by the pqlink
// connection core. Every error produced by the core carries one of the
// codes below, so callers can classify failures without string matching.
package pqerrors

// Code classifies a connection-core error.
type Code int

const (
	// Unknown is the zero value; errors from outside the core map here.
	Unknown Code = iota

	// Broken means the physical socket or session is gone. Transient:
	// eligible for retry or reconnection.
	Broken

	// Database means the server rejected a command. Carries the
	// server-provided message text. Not retried automatically.
	Database

	// Usage means the caller violated a precondition, such as
	// deactivating while a transaction is registered.
	Usage

	// Argument means invalid input, such as an unknown prepared-statement
	// name or a nil receiver.
	Argument

	// Unsupported means the server or protocol version is below the
	// supported floor.
	Unsupported

	// Internal means the underlying protocol produced a state the design
	// declares impossible. Always fatal, never recovered.
	Internal
)

// String returns the code's name for logging and error text.
func (c Code) String() string {
	switch c {
	case Broken:
		return "BROKEN_CONNECTION"
	case Database:
		return "DATABASE_ERROR"
	case Usage:
		return "USAGE_ERROR"
	case Argument:
		return "ARGUMENT_ERROR"
	case Unsupported:
		return "UNSUPPORTED_FEATURE"
	case Internal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}
