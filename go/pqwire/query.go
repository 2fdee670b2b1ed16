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

package pqwire

import (
	"fmt"
)

// ResultStatus classifies the outcome of one command.
type ResultStatus int

const (
	// StatusCommandOK is a command that returns no rows.
	StatusCommandOK ResultStatus = iota
	// StatusTuplesOK is a completed query with a (possibly empty) row set.
	StatusTuplesOK
	// StatusCopyIn means the server is waiting for copy-in data.
	StatusCopyIn
	// StatusCopyOut means the server is about to send copy-out data.
	StatusCopyOut
	// StatusEmptyQuery is the response to an empty query string.
	StatusEmptyQuery
	// StatusError is a command the server rejected.
	StatusError
)

// Field describes one column of a row set.
type Field struct {
	Name         string
	TableOID     uint32
	AttrNumber   int16
	DataTypeOID  uint32
	DataTypeSize int16
	TypeModifier int32
	Format       int16
}

// Result is the outcome of one command: its status, command tag, row
// set, and server error if any.
type Result struct {
	Status ResultStatus
	Fields []Field
	Rows   [][][]byte
	Err    *Error

	tag string
}

// OK reports whether the server completed the command without error.
func (r *Result) OK() bool {
	return r.Status != StatusError
}

// ErrorText returns the server's error text for a failed command.
func (r *Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Tag returns the command tag, such as "SELECT 1".
func (r *Result) Tag() string {
	return r.tag
}

// Value returns the text of one cell, reporting whether it exists. NULL
// cells report false.
func (r *Result) Value(row, col int) (string, bool) {
	if row < 0 || row >= len(r.Rows) || col < 0 || col >= len(r.Rows[row]) {
		return "", false
	}
	v := r.Rows[row][col]
	if v == nil {
		return "", false
	}
	return string(v), true
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Diagnostic carries the structured fields of an error or notice.
type Diagnostic struct {
	Severity   string
	Code       string
	Message    string
	Detail     string
	Hint       string
	Position   string
	Where      string
	Schema     string
	Table      string
	Column     string
	Constraint string
}

// Error is a PostgreSQL error response.
type Error struct {
	Diagnostic
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (SQLSTATE %s)\nDETAIL: %s", e.Severity, e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

// IsSQLState checks whether the error carries the given SQLSTATE code.
func (e *Error) IsSQLState(code string) bool {
	return e.Code == code
}

func parseDiagnostic(body []byte) Diagnostic {
	r := newMessageReader(body)
	var d Diagnostic
	for r.remaining() > 0 {
		fieldType, err := r.readByte()
		if err != nil || fieldType == 0 {
			break
		}
		value, err := r.readString()
		if err != nil {
			break
		}
		switch fieldType {
		case fieldSeverity:
			d.Severity = value
		case fieldCode:
			d.Code = value
		case fieldMessage:
			d.Message = value
		case fieldDetail:
			d.Detail = value
		case fieldHint:
			d.Hint = value
		case fieldPosition:
			d.Position = value
		case fieldWhere:
			d.Where = value
		case fieldSchema:
			d.Schema = value
		case fieldTable:
			d.Table = value
		case fieldColumn:
			d.Column = value
		case fieldConstraint:
			d.Constraint = value
		}
	}
	return d
}

// SendQuery dispatches a simple-protocol command without waiting for
// results. Drain them with GetResult.
func (c *Conn) SendQuery(sql string) error {
	if err := c.checkIdle(); err != nil {
		return err
	}

	w := newMessageWriter()
	w.writeString(sql)
	if err := c.writeMessage(msgQuery, w.bytes()); err != nil {
		c.fail(err)
		return err
	}
	if err := c.flush(); err != nil {
		c.fail(err)
		return err
	}
	c.busy = true
	return nil
}

// GetResult returns the next pending result of the command in flight,
// or nil once its results are exhausted (or on I/O failure, recorded in
// ErrorMessage). A result with StatusCopyIn or StatusCopyOut hands
// control of the stream to the copy methods.
func (c *Conn) GetResult() *Result {
	if !c.busy || !c.IsLive() {
		return nil
	}

	var res *Result
	for {
		msgType, body, err := c.readMessage()
		if err != nil {
			c.fail(err)
			return nil
		}

		switch msgType {
		case msgRowDescription:
			fields, err := parseRowDescription(body)
			if err != nil {
				c.fail(err)
				return nil
			}
			res = &Result{Status: StatusTuplesOK, Fields: fields}

		case msgDataRow:
			if res == nil {
				res = &Result{Status: StatusTuplesOK}
			}
			row, err := parseDataRow(body)
			if err != nil {
				c.fail(err)
				return nil
			}
			res.Rows = append(res.Rows, row)

		case msgCommandComplete:
			tag, err := newMessageReader(body).readString()
			if err != nil {
				c.fail(err)
				return nil
			}
			if res == nil {
				res = &Result{Status: StatusCommandOK}
			}
			res.tag = tag
			return res

		case msgEmptyQueryResponse:
			return &Result{Status: StatusEmptyQuery}

		case msgErrorResponse:
			e := &Error{Diagnostic: parseDiagnostic(body)}
			c.lastErr = e.Error()
			return &Result{Status: StatusError, Err: e}

		case msgReadyForQuery:
			if len(body) < 1 {
				c.fail(fmt.Errorf("ready for query message too short"))
				return nil
			}
			c.txnStatus = body[0]
			c.busy = false
			return res

		case msgCopyInResponse:
			c.copying = copyIn
			return &Result{Status: StatusCopyIn}

		case msgCopyOutResponse:
			c.copying = copyOut
			return &Result{Status: StatusCopyOut}

		case msgParseComplete, msgBindComplete, msgCloseComplete,
			msgNoData, msgParameterDescription, msgPortalSuspended:
			// Extended-protocol bookkeeping; nothing to surface.

		default:
			if !c.dispatchAsync(msgType, body) {
				c.fail(fmt.Errorf("unexpected message type in response: %c (0x%02x)", msgType, msgType))
				return nil
			}
		}
	}
}

// Exec runs one command through the simple protocol and returns its last
// result, or nil if the round trip failed entirely. A multi-statement
// command's earlier results are discarded, matching the behavior callers
// of a single-result API expect.
//
// When the command starts a COPY operation, the copy-in/copy-out result
// is returned immediately and the caller must drive the data transfer.
func (c *Conn) Exec(sql string) *Result {
	if err := c.SendQuery(sql); err != nil {
		return nil
	}
	var last *Result
	for {
		r := c.GetResult()
		if r == nil {
			return last
		}
		last = r
		if r.Status == StatusCopyIn || r.Status == StatusCopyOut {
			return r
		}
	}
}

func parseRowDescription(body []byte) ([]Field, error) {
	r := newMessageReader(body)
	count, err := r.readInt16()
	if err != nil {
		return nil, fmt.Errorf("reading field count: %w", err)
	}

	fields := make([]Field, count)
	for i := range fields {
		f := &fields[i]
		if f.Name, err = r.readString(); err != nil {
			return nil, fmt.Errorf("reading field name: %w", err)
		}
		if f.TableOID, err = r.readUint32(); err != nil {
			return nil, err
		}
		if f.AttrNumber, err = r.readInt16(); err != nil {
			return nil, err
		}
		if f.DataTypeOID, err = r.readUint32(); err != nil {
			return nil, err
		}
		if f.DataTypeSize, err = r.readInt16(); err != nil {
			return nil, err
		}
		if f.TypeModifier, err = r.readInt32(); err != nil {
			return nil, err
		}
		if f.Format, err = r.readInt16(); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func parseDataRow(body []byte) ([][]byte, error) {
	r := newMessageReader(body)
	count, err := r.readInt16()
	if err != nil {
		return nil, fmt.Errorf("reading column count: %w", err)
	}

	row := make([][]byte, count)
	for i := range row {
		v, err := r.readByteString()
		if err != nil {
			return nil, fmt.Errorf("reading column value: %w", err)
		}
		row[i] = v
	}
	return row, nil
}
