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
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
)

// Cancel asks the server to abandon the command currently executing on
// this connection. It opens a separate short-lived connection carrying
// the backend key data from startup, so it is safe to call from a
// goroutine other than the one blocked in execution. Cancellation is a
// hint: the server may have finished the command already.
func (c *Conn) Cancel() error {
	if c.netConn == nil {
		return errNotLive
	}

	address := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	cancelConn, err := dialer.Dial("tcp", address)
	if err != nil {
		return fmt.Errorf("connecting for cancel: %w", err)
	}
	defer cancelConn.Close()

	// CancelRequest: length 16, request code, process ID, secret key.
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], 16)
	binary.BigEndian.PutUint32(buf[4:8], cancelRequestCode)
	binary.BigEndian.PutUint32(buf[8:12], c.processID)
	binary.BigEndian.PutUint32(buf[12:16], c.secretKey)
	if _, err := cancelConn.Write(buf[:]); err != nil {
		return fmt.Errorf("sending cancel request: %w", err)
	}

	// The server closes the connection without replying; wait for EOF so
	// the request is known to have arrived.
	var one [1]byte
	if _, err := cancelConn.Read(one[:]); err != nil && err != io.EOF {
		return fmt.Errorf("completing cancel request: %w", err)
	}
	return nil
}
