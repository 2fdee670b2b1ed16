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

import "time"

// WaitRead blocks the calling goroutine until the connection's socket is
// readable.
func (c *Conn) WaitRead() error {
	return c.waitRead(nil)
}

// WaitReadTimeout blocks until the socket is readable or the timeout
// elapses. A timeout is not an error; the caller decides whether to
// retry.
func (c *Conn) WaitReadTimeout(timeout time.Duration) error {
	return c.waitRead(&timeout)
}

// WaitWrite blocks until the socket is writable.
func (c *Conn) WaitWrite() error {
	if c.client == nil {
		return errBroken("no connection to wait on")
	}
	return c.client.WaitWrite(nil)
}

// WaitWriteTimeout blocks until the socket is writable or the timeout
// elapses.
func (c *Conn) WaitWriteTimeout(timeout time.Duration) error {
	if c.client == nil {
		return errBroken("no connection to wait on")
	}
	return c.client.WaitWrite(&timeout)
}

func (c *Conn) waitRead(timeout *time.Duration) error {
	if c.client == nil {
		return errBroken("no connection to wait on")
	}
	return c.client.WaitRead(timeout)
}
