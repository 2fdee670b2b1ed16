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
	"errors"
	"fmt"
)

// The COPY sub-protocol. A copy operation starts when Exec (or
// GetResult) surfaces a StatusCopyIn or StatusCopyOut result; these
// methods then move the data. CopyRead serves copy-out, CopyWrite /
// CopyDone / CopyFail serve copy-in.

var errNoCopy = errors.New("no COPY operation in progress")

// CopyRead reads one data row of a copy-out operation, with the
// terminating newline stripped. done reports the end of the stream; the
// trailing command results remain pending for GetResult.
func (c *Conn) CopyRead() (line string, done bool, err error) {
	if !c.IsLive() {
		return "", false, errNotLive
	}
	if c.copying != copyOut {
		return "", false, errNoCopy
	}

	for {
		msgType, body, err := c.readMessage()
		if err != nil {
			c.fail(err)
			return "", false, err
		}

		switch msgType {
		case msgCopyData:
			if n := len(body); n > 0 && body[n-1] == '\n' {
				body = body[:n-1]
			}
			return string(body), false, nil

		case msgCopyDone:
			c.copying = copyNone
			return "", true, nil

		case msgErrorResponse:
			// The server aborted the copy. Drain to ReadyForQuery so
			// the connection is usable again.
			e := &Error{Diagnostic: parseDiagnostic(body)}
			c.lastErr = e.Error()
			c.copying = copyNone
			c.drainAfterCopyError()
			return "", false, e

		default:
			if !c.dispatchAsync(msgType, body) {
				err := fmt.Errorf("unexpected message during COPY OUT: %c", msgType)
				c.fail(err)
				return "", false, err
			}
		}
	}
}

// CopyWrite sends one chunk of copy-in data.
func (c *Conn) CopyWrite(data []byte) error {
	if !c.IsLive() {
		return errNotLive
	}
	if c.copying != copyIn {
		return errNoCopy
	}
	if err := c.writeMessage(msgCopyData, data); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// CopyDone terminates a copy-in operation normally. The command's final
// result remains pending for GetResult.
func (c *Conn) CopyDone() error {
	if !c.IsLive() {
		return errNotLive
	}
	if c.copying != copyIn {
		return errNoCopy
	}
	c.copying = copyNone
	if err := c.writeMessage(msgCopyDone, nil); err != nil {
		c.fail(err)
		return err
	}
	if err := c.flush(); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// CopyFail aborts a copy-in operation with the given error message. The
// server responds with an error result, pending for GetResult.
func (c *Conn) CopyFail(reason string) error {
	if !c.IsLive() {
		return errNotLive
	}
	if c.copying != copyIn {
		return errNoCopy
	}
	c.copying = copyNone
	w := newMessageWriter()
	w.writeString(reason)
	if err := c.writeMessage(msgCopyFail, w.bytes()); err != nil {
		c.fail(err)
		return err
	}
	if err := c.flush(); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// drainAfterCopyError consumes messages until ReadyForQuery after the
// server aborted a copy, swallowing further errors.
func (c *Conn) drainAfterCopyError() {
	for c.busy {
		if c.GetResult() == nil && !c.IsLive() {
			return
		}
	}
}
