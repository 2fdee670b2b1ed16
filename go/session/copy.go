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

// The COPY adapter drives the line-oriented bulk transfer sub-protocol.
// A copy operation is started by executing a COPY ... FROM STDIN or
// COPY ... TO STDOUT command through Exec; these methods then move the
// data itself.

const endCopyQuery = "[END COPY]"

// ReadCopyLine fetches one row of copy-out data. It returns the line and
// true while data remains; on end-of-data it drains and validates the
// command's remaining results and returns false.
func (c *Conn) ReadCopyLine() (string, bool, error) {
	if !c.IsOpen() {
		return "", false, errInternal("ReadCopyLine without connection")
	}

	line, status := c.client.GetCopyData()
	switch status {
	case CopyReadError:
		return "", false, errDatabase("reading of table data failed: " + c.errMsg())

	case CopyReadDone:
		for r := c.makeResult(c.client.GetResult(), endCopyQuery); r.Valid(); r = c.makeResult(c.client.GetResult(), endCopyQuery) {
			if err := c.checkResult(r); err != nil {
				return "", false, err
			}
		}
		return "", false, nil

	case CopyReadAsync:
		// The protocol is synchronous here; anything else is a
		// contract breach by the underlying client.
		return "", false, errInternal("table read inexplicably went asynchronous")

	default:
		return line, true, nil
	}
}

// WriteCopyLine sends one row of copy-in data. The line is terminated
// with a newline and sent as a single chunk. A failed send terminates
// the copy operation server-side before the error is returned.
func (c *Conn) WriteCopyLine(line string) error {
	if !c.IsOpen() {
		return errInternal("WriteCopyLine without connection")
	}
	if !c.client.PutCopyData([]byte(line + "\n")) {
		msg := "error writing to table: " + c.errMsg()
		c.client.EndCopy()
		return errDatabase(msg)
	}
	return nil
}

// EndCopyWrite terminates a copy-in operation and validates the final
// command result.
func (c *Conn) EndCopyWrite() error {
	if c.client == nil {
		return errInternal("EndCopyWrite without connection")
	}
	switch c.client.PutCopyEnd() {
	case CopyEndFailed:
		return errDatabase("write to table failed: " + c.errMsg())
	case CopyEndAsync:
		return errInternal("table write is inexplicably asynchronous")
	case CopyEndOK:
		// Normal termination; retrieve the final result.
	}
	return c.checkResult(c.makeResult(c.client.GetResult(), endCopyQuery))
}
