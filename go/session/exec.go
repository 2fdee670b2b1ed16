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

// Result pairs a protocol-level result with the query that produced it,
// for diagnostics.
type Result struct {
	Raw   RawResult
	Query string
}

// Valid reports whether a protocol-level result exists at all. An invalid
// result means the round trip failed entirely, usually because the
// connection broke.
func (r Result) Valid() bool {
	return r.Raw != nil
}

func (c *Conn) makeResult(raw RawResult, query string) Result {
	return Result{Raw: raw, Query: query}
}

// checkResult validates a result against the connection and the server's
// verdict, converting failure into the error taxonomy.
func (c *Conn) checkResult(r Result) error {
	if !c.IsOpen() {
		return errBroken(c.errMsg())
	}
	if !r.Valid() {
		return errDatabase(c.errMsg())
	}
	if !r.Raw.OK() {
		return errDatabase(r.Raw.ErrorText())
	}
	return nil
}

// clientExec runs sql through the client, tolerating the handle being
// absent (the result is simply invalid then).
func (c *Conn) clientExec(sql string) Result {
	if c.client == nil {
		return Result{Query: sql}
	}
	return c.makeResult(c.client.Exec(sql), sql)
}

// Exec runs a query, transparently reconnecting on transient connection
// loss up to retries times. retries=0 fails immediately on loss.
//
// A retry resends the original query text verbatim after the reset; if
// the reset invalidated session state the query depended on (such as
// temp tables), the outcome is server-dependent. Inherited limitation.
func (c *Conn) Exec(query string, retries int) (Result, error) {
	if err := c.Activate(); err != nil {
		return Result{}, err
	}

	r := c.clientExec(query)

	for retries > 0 && !r.Valid() && !c.IsOpen() {
		retries--
		if err := c.Reset(); err != nil {
			return Result{}, err
		}
		if c.IsOpen() {
			r = c.clientExec(query)
		}
	}

	if err := c.checkResult(r); err != nil {
		return Result{}, err
	}
	if _, err := c.GetNotifs(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// PreparedExec executes a prepared statement by name, registering it with
// the backend first if the current physical connection has not seen it.
func (c *Conn) PreparedExec(statement string, params []Param) (Result, error) {
	if _, err := c.registerPrepared(statement); err != nil {
		return Result{}, err
	}
	if err := c.Activate(); err != nil {
		return Result{}, err
	}
	r := Result{Query: statement}
	if c.client != nil {
		r = c.makeResult(c.client.ExecPrepared(statement, params), statement)
	}
	if err := c.checkResult(r); err != nil {
		return Result{}, err
	}
	if _, err := c.GetNotifs(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// ParameterizedExec executes a one-shot parameterized query without
// creating a named statement.
func (c *Conn) ParameterizedExec(query string, params []Param) (Result, error) {
	if err := c.Activate(); err != nil {
		return Result{}, err
	}
	r := Result{Query: query}
	if c.client != nil {
		r = c.makeResult(c.client.ExecParams(query, params), query)
	}
	if err := c.checkResult(r); err != nil {
		return Result{}, err
	}
	if _, err := c.GetNotifs(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// StartExec dispatches a query without waiting for its results. Pair
// with GetResult to drain them.
func (c *Conn) StartExec(query string) error {
	if err := c.Activate(); err != nil {
		return err
	}
	if c.client == nil {
		return errBroken(c.errMsg())
	}
	if err := c.client.SendQuery(query); err != nil {
		return errDatabase(c.errMsg())
	}
	return nil
}

// GetResult returns the next pending result of a StartExec, or an
// invalid Result once exhausted.
func (c *Conn) GetResult(query string) (Result, error) {
	if c.client == nil {
		return Result{}, errBroken("no connection")
	}
	return c.makeResult(c.client.GetResult(), query), nil
}
