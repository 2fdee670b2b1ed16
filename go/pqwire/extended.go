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

// Param is one query parameter for the extended protocol. A nil Value
// is sent as SQL NULL.
type Param struct {
	Value  []byte
	Binary bool
}

// Prepare registers a named statement with the backend via Parse+Sync.
// The empty name denotes the unnamed statement. Returns the command
// outcome, or nil on I/O failure.
func (c *Conn) Prepare(name, definition string) *Result {
	if err := c.checkIdle(); err != nil {
		return nil
	}
	if err := c.writeParse(name, definition); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.syncAndFlush(); err != nil {
		return nil
	}
	return c.drainCommand()
}

// ExecPrepared executes a previously prepared statement through
// Bind+Execute+Sync on the unnamed portal.
func (c *Conn) ExecPrepared(name string, params []Param) *Result {
	if err := c.checkIdle(); err != nil {
		return nil
	}
	if err := c.writeBind("", name, params); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.writeExecute("", 0); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.syncAndFlush(); err != nil {
		return nil
	}
	return c.drainCommand()
}

// ExecParams executes a one-shot parameterized statement: Parse of the
// unnamed statement, Bind, Execute, Sync in one round trip.
func (c *Conn) ExecParams(sql string, params []Param) *Result {
	if err := c.checkIdle(); err != nil {
		return nil
	}
	if err := c.writeParse("", sql); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.writeBind("", "", params); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.writeExecute("", 0); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.syncAndFlush(); err != nil {
		return nil
	}
	return c.drainCommand()
}

// CloseStatement deallocates a named statement server-side via
// Close('S')+Sync.
func (c *Conn) CloseStatement(name string) *Result {
	if err := c.checkIdle(); err != nil {
		return nil
	}
	w := newMessageWriter()
	w.writeByte('S')
	w.writeString(name)
	if err := c.writeMessage(msgClose, w.bytes()); err != nil {
		c.fail(err)
		return nil
	}
	if err := c.syncAndFlush(); err != nil {
		return nil
	}
	return c.drainCommand()
}

func (c *Conn) checkIdle() error {
	if !c.IsLive() {
		return errNotLive
	}
	if c.busy {
		c.lastErr = "another command is already in progress"
		return errBusy
	}
	return nil
}

func (c *Conn) syncAndFlush() error {
	if err := c.writeMessage(msgSync, nil); err != nil {
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

// drainCommand pulls results until the command in flight completes,
// keeping the last meaningful one. Commands like Parse or Close emit no
// CommandComplete; those succeed with a plain command-ok result.
func (c *Conn) drainCommand() *Result {
	var last *Result
	for {
		r := c.GetResult()
		if r == nil {
			break
		}
		last = r
	}
	if !c.IsLive() {
		return nil
	}
	if last == nil {
		last = &Result{Status: StatusCommandOK}
	}
	return last
}

func (c *Conn) writeParse(name, definition string) error {
	w := newMessageWriter()
	w.writeString(name)
	w.writeString(definition)
	w.writeInt16(0) // no pre-specified parameter types
	return c.writeMessage(msgParse, w.bytes())
}

func (c *Conn) writeBind(portalName, stmtName string, params []Param) error {
	w := newMessageWriter()
	w.writeString(portalName)
	w.writeString(stmtName)

	// Per-parameter format codes.
	w.writeInt16(int16(len(params)))
	for _, p := range params {
		if p.Binary {
			w.writeInt16(1)
		} else {
			w.writeInt16(0)
		}
	}

	w.writeInt16(int16(len(params)))
	for _, p := range params {
		w.writeByteString(p.Value)
	}

	// All result columns in text format.
	w.writeInt16(0)

	return c.writeMessage(msgBind, w.bytes())
}

func (c *Conn) writeExecute(portalName string, maxRows int32) error {
	w := newMessageWriter()
	w.writeString(portalName)
	w.writeInt32(maxRows)
	return c.writeMessage(msgExecute, w.bytes())
}
