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

// Package pqwire implements a blocking PostgreSQL wire-protocol client:
// startup and authentication (cleartext, MD5, SCRAM-SHA-256), the simple
// and extended query protocols, COPY data transfer, asynchronous notices
// and notifications, and out-of-band query cancellation.
//
// A Conn is driven by a single goroutine; Cancel is the only method safe
// to call concurrently, since it opens its own short-lived connection.
package pqwire

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	errNotLive = errors.New("no usable connection")
	errBusy    = errors.New("another command is already in progress")
)

const (
	// connBufferSize is the size of the read and write buffers.
	connBufferSize = 16 * 1024

	// consumePollInterval bounds the non-blocking probe in ConsumeInput.
	consumePollInterval = time.Millisecond
)

// Config holds the parameters for connecting to a PostgreSQL server.
type Config struct {
	// Host is the server hostname or IP address.
	Host string

	// Port is the server port number.
	Port int

	// User is the PostgreSQL user name.
	User string

	// Password is the user's password (optional for trust auth).
	Password string

	// Database is the database name to connect to. Defaults to the user
	// name server-side when empty.
	Database string

	// Parameters are additional startup parameters, such as
	// application_name.
	Parameters map[string]string

	// TLSConfig enables SSL negotiation when non-nil.
	TLSConfig *tls.Config

	// DialTimeout bounds establishing the TCP connection.
	DialTimeout time.Duration
}

// Notification is one asynchronous NOTIFY event.
type Notification struct {
	Channel    string
	Payload    string
	BackendPID int
}

type copyState int

const (
	copyNone copyState = iota
	copyIn
	copyOut
)

// Conn is one physical connection to a PostgreSQL server.
type Conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	config  *Config

	// Backend key data, needed for query cancellation.
	processID uint32
	secretKey uint32

	serverParams map[string]string
	txnStatus    byte

	// alive is false after any protocol or I/O failure; the connection
	// is unusable until Reset.
	alive bool

	// busy is true between dispatching a command and consuming its final
	// ReadyForQuery.
	busy    bool
	copying copyState

	lastErr string

	notices       func(string)
	notifications []*Notification

	trace io.Writer
}

// Connect establishes a connection and performs the startup handshake.
func Connect(ctx context.Context, config *Config) (*Conn, error) {
	c := &Conn{config: config}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// dial opens the TCP connection and runs the handshake, replacing any
// previous link state.
func (c *Conn) dial(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	address := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", address, err)
	}

	c.netConn = netConn
	c.reader = bufio.NewReaderSize(netConn, connBufferSize)
	c.writer = bufio.NewWriterSize(netConn, connBufferSize)
	c.serverParams = make(map[string]string)
	c.txnStatus = TxnStatusIdle
	c.busy = false
	c.copying = copyNone
	c.notifications = nil
	c.alive = true
	c.lastErr = ""

	if err := c.startup(ctx); err != nil {
		c.alive = false
		c.lastErr = err.Error()
		netConn.Close()
		return fmt.Errorf("startup failed: %w", err)
	}
	return nil
}

// Close sends Terminate (best effort) and closes the connection.
func (c *Conn) Close() error {
	if c.netConn == nil {
		return nil
	}
	if c.alive {
		_ = c.writeMessage(msgTerminate, nil)
		_ = c.flush()
	}
	c.alive = false
	err := c.netConn.Close()
	c.netConn = nil
	return err
}

// Reset tears down the physical link and re-establishes it in place.
// Liveness afterward is reported by IsLive.
func (c *Conn) Reset() {
	if c.netConn != nil {
		c.netConn.Close()
		c.netConn = nil
	}
	if err := c.dial(context.Background()); err != nil {
		c.alive = false
		c.lastErr = err.Error()
	}
}

// IsLive reports whether the connection is usable.
func (c *Conn) IsLive() bool {
	return c.netConn != nil && c.alive
}

// ErrorMessage returns the text of the last connection-level error.
func (c *Conn) ErrorMessage() string {
	return c.lastErr
}

// ProtocolVersion returns the frontend/backend protocol major version,
// or 0 when the connection is bad.
func (c *Conn) ProtocolVersion() int {
	if !c.IsLive() {
		return 0
	}
	return protocolMajor
}

// ServerVersion returns the backend version as a single integer, e.g.
// 160004 for 16.4 and 90624 for 9.6.24. Returns 0 when unknown.
func (c *Conn) ServerVersion() int {
	return parseServerVersion(c.serverParams["server_version"])
}

// parseServerVersion converts a server_version string to integer form.
// Development suffixes ("17beta1", "18devel") count as .0 releases.
func parseServerVersion(v string) int {
	var nums [3]int
	part := 0
	for i := 0; i < len(v) && part < 3; {
		if v[i] < '0' || v[i] > '9' {
			break
		}
		j := i
		for j < len(v) && v[j] >= '0' && v[j] <= '9' {
			j++
		}
		n, _ := strconv.Atoi(v[i:j])
		nums[part] = n
		part++
		if j >= len(v) || v[j] != '.' {
			break
		}
		i = j + 1
	}
	if part == 0 {
		return 0
	}
	if nums[0] >= 10 {
		// Two-part numbering since v10: major.patch.
		return nums[0]*10000 + nums[1]
	}
	return nums[0]*10000 + nums[1]*100 + nums[2]
}

// TxnStatus returns the transaction status byte from the most recent
// ReadyForQuery.
func (c *Conn) TxnStatus() byte {
	return c.txnStatus
}

// BackendPID returns the server process ID of this connection.
func (c *Conn) BackendPID() int {
	return int(c.processID)
}

// ServerParameter returns a parameter reported by the server, such as
// server_version or standard_conforming_strings.
func (c *Conn) ServerParameter(name string) string {
	return c.serverParams[name]
}

// SetNoticeHandler installs the callback invoked for asynchronous server
// notices. A nil handler discards them.
func (c *Conn) SetNoticeHandler(h func(msg string)) {
	c.notices = h
}

// SetTrace directs a line-per-message protocol trace to w; nil disables.
func (c *Conn) SetTrace(w io.Writer) {
	c.trace = w
}

// Notifies pops one queued notification, or nil when none are pending.
// Notifications are queued as a side effect of any message processing.
func (c *Conn) Notifies() *Notification {
	if len(c.notifications) == 0 {
		return nil
	}
	n := c.notifications[0]
	c.notifications = c.notifications[1:]
	return n
}

// ConsumeInput drains input available on the socket without blocking,
// queueing notifications and relaying notices. Reports false on a hard
// I/O failure.
func (c *Conn) ConsumeInput() bool {
	if !c.IsLive() {
		return false
	}
	for {
		if c.reader.Buffered() == 0 {
			if err := c.netConn.SetReadDeadline(time.Now().Add(consumePollInterval)); err != nil {
				return !c.failed(err)
			}
			_, err := c.reader.Peek(1)
			_ = c.netConn.SetReadDeadline(time.Time{})
			if err != nil {
				if isTimeout(err) {
					return true
				}
				return !c.failed(err)
			}
		}
		// Results of an in-flight command stay in the buffer for
		// GetResult; only async traffic is consumed here.
		if c.busy {
			return true
		}
		msgType, body, err := c.readMessage()
		if err != nil {
			return !c.failed(err)
		}
		if !c.dispatchAsync(msgType, body) {
			c.fail(fmt.Errorf("unexpected message %c while idle", msgType))
			return false
		}
	}
}

// WaitRead blocks until input is available on the socket. A nil timeout
// blocks indefinitely; an expired timeout is not an error.
func (c *Conn) WaitRead(timeout *time.Duration) error {
	if !c.IsLive() {
		return errNotLive
	}
	if c.reader.Buffered() > 0 {
		return nil
	}
	deadline := time.Time{}
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}
	if err := c.netConn.SetReadDeadline(deadline); err != nil {
		c.fail(err)
		return err
	}
	_, err := c.reader.Peek(1)
	_ = c.netConn.SetReadDeadline(time.Time{})
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		c.fail(err)
		return err
	}
	return nil
}

// WaitWrite blocks until the socket accepts writes. On a streams
// transport the kernel buffer makes this nearly always immediate; the
// call degenerates to a liveness check.
func (c *Conn) WaitWrite(timeout *time.Duration) error {
	if !c.IsLive() {
		return errNotLive
	}
	return nil
}

// dispatchAsync handles a message type that can arrive outside any
// command: notifications, notices, parameter changes. Reports whether
// the message was one of those.
func (c *Conn) dispatchAsync(msgType byte, body []byte) bool {
	switch msgType {
	case msgNotificationResponse:
		c.handleNotification(body)
	case msgNoticeResponse:
		c.handleNotice(body)
	case msgParameterStatus:
		c.handleParameterStatus(body)
	default:
		return false
	}
	return true
}

func (c *Conn) handleNotification(body []byte) {
	r := newMessageReader(body)
	pid, err := r.readUint32()
	if err != nil {
		return
	}
	channel, err := r.readString()
	if err != nil {
		return
	}
	payload, _ := r.readString()
	c.notifications = append(c.notifications, &Notification{
		Channel:    channel,
		Payload:    payload,
		BackendPID: int(pid),
	})
}

func (c *Conn) handleNotice(body []byte) {
	if c.notices == nil {
		return
	}
	diag := parseDiagnostic(body)
	var b strings.Builder
	b.WriteString(diag.Severity)
	b.WriteString(":  ")
	b.WriteString(diag.Message)
	b.WriteString("\n")
	if diag.Detail != "" {
		b.WriteString("DETAIL:  " + diag.Detail + "\n")
	}
	if diag.Hint != "" {
		b.WriteString("HINT:  " + diag.Hint + "\n")
	}
	c.notices(b.String())
}

func (c *Conn) handleParameterStatus(body []byte) {
	r := newMessageReader(body)
	name, err := r.readString()
	if err != nil {
		return
	}
	value, err := r.readString()
	if err != nil {
		return
	}
	c.serverParams[name] = value
}

// fail marks the connection dead and records the error.
func (c *Conn) fail(err error) {
	c.alive = false
	c.lastErr = err.Error()
}

// failed is fail returning true, for use in boolean returns.
func (c *Conn) failed(err error) bool {
	c.fail(err)
	return true
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
