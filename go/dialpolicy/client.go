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

package dialpolicy

import (
	"io"
	"time"

	"github.com/pqlink/pqlink/go/pqwire"
	"github.com/pqlink/pqlink/go/session"
)

// wireClient adapts one pqwire connection to the capability surface a
// session drives.
type wireClient struct {
	conn *pqwire.Conn
}

var _ session.Client = (*wireClient)(nil)

// wrapResult converts a *pqwire.Result to the session's result
// interface. A nil pointer must become an untyped nil, or the session's
// nil checks would see a non-nil interface holding nothing.
func wrapResult(r *pqwire.Result) session.RawResult {
	if r == nil {
		return nil
	}
	return r
}

func wireParams(params []session.Param) []pqwire.Param {
	if params == nil {
		return nil
	}
	out := make([]pqwire.Param, len(params))
	for i, p := range params {
		out[i] = pqwire.Param{Value: p.Value, Binary: p.Binary}
	}
	return out
}

func (c *wireClient) IsLive() bool         { return c.conn.IsLive() }
func (c *wireClient) ServerVersion() int   { return c.conn.ServerVersion() }
func (c *wireClient) ProtocolVersion() int { return c.conn.ProtocolVersion() }
func (c *wireClient) ErrorMessage() string { return c.conn.ErrorMessage() }

func (c *wireClient) Exec(sql string) session.RawResult {
	return wrapResult(c.conn.Exec(sql))
}

func (c *wireClient) SendQuery(sql string) error {
	return c.conn.SendQuery(sql)
}

func (c *wireClient) GetResult() session.RawResult {
	return wrapResult(c.conn.GetResult())
}

func (c *wireClient) Prepare(name, definition string) session.RawResult {
	return wrapResult(c.conn.Prepare(name, definition))
}

func (c *wireClient) ExecPrepared(name string, params []session.Param) session.RawResult {
	return wrapResult(c.conn.ExecPrepared(name, wireParams(params)))
}

func (c *wireClient) ExecParams(sql string, params []session.Param) session.RawResult {
	return wrapResult(c.conn.ExecParams(sql, wireParams(params)))
}

func (c *wireClient) CloseStatement(name string) session.RawResult {
	return wrapResult(c.conn.CloseStatement(name))
}

func (c *wireClient) ConsumeInput() bool {
	return c.conn.ConsumeInput()
}

func (c *wireClient) Notifies() *session.Notification {
	n := c.conn.Notifies()
	if n == nil {
		return nil
	}
	return &session.Notification{
		Channel:    n.Channel,
		Payload:    n.Payload,
		BackendPID: n.BackendPID,
	}
}

func (c *wireClient) SetNoticeHandler(h func(msg string)) {
	c.conn.SetNoticeHandler(h)
}

func (c *wireClient) SetTrace(w io.Writer) {
	c.conn.SetTrace(w)
}

// GetCopyData maps the blocking copy-out read onto the session's status
// codes. CopyReadAsync never occurs: the underlying read blocks until a
// full row is available.
func (c *wireClient) GetCopyData() (string, session.CopyReadStatus) {
	line, done, err := c.conn.CopyRead()
	switch {
	case err != nil:
		return "", session.CopyReadError
	case done:
		return "", session.CopyReadDone
	default:
		return line, session.CopyReadLine
	}
}

func (c *wireClient) PutCopyData(data []byte) bool {
	return c.conn.CopyWrite(data) == nil
}

func (c *wireClient) PutCopyEnd() session.CopyEndStatus {
	if err := c.conn.CopyDone(); err != nil {
		return session.CopyEndFailed
	}
	return session.CopyEndOK
}

func (c *wireClient) EndCopy() {
	_ = c.conn.CopyFail("canceled by client")
}

func (c *wireClient) Cancel() error {
	return c.conn.Cancel()
}

func (c *wireClient) Reset() {
	c.conn.Reset()
}

func (c *wireClient) WaitRead(timeout *time.Duration) error {
	return c.conn.WaitRead(timeout)
}

func (c *wireClient) WaitWrite(timeout *time.Duration) error {
	return c.conn.WaitWrite(timeout)
}

func (c *wireClient) EscapeString(s string) (string, error) {
	return c.conn.EscapeString(s)
}

func (c *wireClient) EscapeBytea(b []byte) string {
	return c.conn.EscapeBytea(b)
}

func (c *wireClient) UnescapeBytea(s string) ([]byte, error) {
	return c.conn.UnescapeBytea(s)
}

func (c *wireClient) EscapeIdentifier(s string) (string, error) {
	return c.conn.EscapeIdentifier(s)
}
