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

import (
	"io"
	"time"
)

// Param is a single query parameter for parameterized or prepared
// execution. A nil Value is sent as SQL NULL.
type Param struct {
	Value  []byte
	Binary bool
}

// CopyReadStatus classifies one GetCopyData round trip.
type CopyReadStatus int

const (
	// CopyReadError means the copy stream failed at the protocol level.
	CopyReadError CopyReadStatus = iota
	// CopyReadDone means the server finished sending copy data.
	CopyReadDone
	// CopyReadAsync means no data was available synchronously. The
	// connections this core drives are blocking, so seeing this is an
	// internal-invariant violation.
	CopyReadAsync
	// CopyReadLine means one row of copy data was returned.
	CopyReadLine
)

// CopyEndStatus classifies the result of sending the copy terminator.
type CopyEndStatus int

const (
	// CopyEndFailed means the server rejected the terminator.
	CopyEndFailed CopyEndStatus = iota
	// CopyEndAsync means the send could not complete synchronously;
	// impossible on a blocking connection.
	CopyEndAsync
	// CopyEndOK means the terminator was accepted and a final command
	// result is pending.
	CopyEndOK
)

// Notification is one pub/sub event received from the server.
type Notification struct {
	Channel    string
	Payload    string
	BackendPID int
}

// RawResult is the opaque protocol-level result produced by the Client.
// The session core never inspects rows beyond what GetVariable needs.
type RawResult interface {
	// OK reports whether the server completed the command without error.
	OK() bool
	// ErrorText returns the server error text when OK is false.
	ErrorText() string
	// Tag returns the command tag, such as "SELECT 1".
	Tag() string
	// Value returns the text of one cell, reporting whether it exists.
	Value(row, col int) (string, bool)
}

// Client is the wire-protocol capability a session drives. It corresponds
// to one physical connection; the session obtains and releases instances
// through its Policy. Implementations are stateful and not reentrant: the
// session serializes all calls on a single handle.
type Client interface {
	// IsLive reports whether the physical link is still usable.
	IsLive() bool
	// ServerVersion returns the backend version in libpq integer form
	// (e.g. 150002 for 15.2), or 0 if unknown.
	ServerVersion() int
	// ProtocolVersion returns the frontend/backend protocol major
	// version, or 0 if the connection is bad.
	ProtocolVersion() int
	// ErrorMessage returns the last connection-level error text.
	ErrorMessage() string

	// Exec runs one command through the simple protocol and returns its
	// result, or nil if the round trip failed entirely.
	Exec(sql string) RawResult
	// SendQuery dispatches a command without waiting for results.
	SendQuery(sql string) error
	// GetResult returns the next pending result, or nil once the
	// command's results are exhausted.
	GetResult() RawResult
	// Prepare registers a named statement with the backend.
	Prepare(name, definition string) RawResult
	// ExecPrepared executes a previously prepared statement.
	ExecPrepared(name string, params []Param) RawResult
	// ExecParams executes a one-shot parameterized statement.
	ExecParams(sql string, params []Param) RawResult
	// CloseStatement deallocates a statement registered with Prepare.
	CloseStatement(name string) RawResult

	// ConsumeInput drains any input available on the socket without
	// blocking, reporting false on a hard I/O failure.
	ConsumeInput() bool
	// Notifies pops one queued notification, or nil if none are pending.
	Notifies() *Notification
	// SetNoticeHandler installs the callback invoked for asynchronous
	// server notices. A nil handler detaches.
	SetNoticeHandler(func(msg string))
	// SetTrace directs a protocol trace to w; nil disables tracing.
	SetTrace(w io.Writer)

	// GetCopyData reads one row of copy-out data.
	GetCopyData() (line string, status CopyReadStatus)
	// PutCopyData sends one chunk of copy-in data, reporting whether the
	// chunk was queued.
	PutCopyData(data []byte) bool
	// PutCopyEnd sends the copy-in terminator.
	PutCopyEnd() CopyEndStatus
	// EndCopy force-terminates a copy operation after a write failure.
	EndCopy()

	// Cancel interrupts the command currently executing server-side. It
	// uses a separate short-lived connection and is safe to call from a
	// goroutine other than the one blocked in execution.
	Cancel() error
	// Reset re-establishes the physical link in place, preserving the
	// handle. Liveness afterward is reported by IsLive.
	Reset()

	// WaitRead blocks until the socket is readable. A nil timeout blocks
	// indefinitely.
	WaitRead(timeout *time.Duration) error
	// WaitWrite blocks until the socket is writable.
	WaitWrite(timeout *time.Duration) error

	// EscapeString escapes s for inclusion in a quoted SQL literal using
	// the connection's encoding rules.
	EscapeString(s string) (string, error)
	// EscapeBytea encodes arbitrary bytes in bytea escape format.
	EscapeBytea(b []byte) string
	// UnescapeBytea decodes a bytea escape produced by EscapeBytea or the
	// server.
	UnescapeBytea(s string) ([]byte, error)
	// EscapeIdentifier quotes an SQL identifier.
	EscapeIdentifier(s string) (string, error)
}

// Policy decides how physical connections are established and torn down.
// All handles passed in and returned are Clients; a nil handle means "no
// physical connection".
type Policy interface {
	// StartConnect begins establishing a connection, possibly completing
	// it eagerly depending on the policy.
	StartConnect(handle Client) (Client, error)
	// CompleteConnect finishes a connection begun by StartConnect.
	CompleteConnect(handle Client) (Client, error)
	// DropConnect abandons a half-open connection attempt.
	DropConnect(handle Client) Client
	// Disconnect tears down an established connection.
	Disconnect(handle Client) Client
	// IsReady reports whether the handle is fully connected.
	IsReady(handle Client) bool
}

// Transaction is the capability a transaction object exposes to its
// connection. At most one may be registered at a time; while registered,
// variable assignment routes to it.
type Transaction interface {
	// Description names the transaction for diagnostics.
	Description() string
	// SetVariable sets a variable within the transaction's scope.
	SetVariable(name, value string) error
	// GetVariable reads a variable within the transaction's scope.
	GetVariable(name string) (string, error)
}

// ErrorHandler receives asynchronous notices. Returning false stops
// propagation to handlers registered earlier.
type ErrorHandler interface {
	HandleNotice(msg string) bool
}

// Receiver is a pub/sub notification listener bound to one channel.
type Receiver interface {
	// Channel returns the LISTEN channel this receiver is bound to.
	Channel() string
	// Notify delivers one notification. An error is converted into a
	// notice by the session; it never reaches the polling caller.
	Notify(payload string, backendPID int) error
}
