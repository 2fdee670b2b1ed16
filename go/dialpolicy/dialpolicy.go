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

// Package dialpolicy provides the standard connection policies for
// sessions: Direct connects during StartConnect, Lazy defers the dial
// to CompleteConnect, and Null never connects at all. All three hand
// the session wire clients backed by pqwire connections.
package dialpolicy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pqlink/pqlink/go/pqwire"
	"github.com/pqlink/pqlink/go/session"
	"github.com/pqlink/pqlink/go/tools/retry"
)

const (
	defaultDialAttempts = 3
	defaultRetryBase    = 100 * time.Millisecond
	defaultRetryMax     = 2 * time.Second
)

// dialer establishes physical connections with bounded, jittered
// retries.
type dialer struct {
	config       *pqwire.Config
	dialAttempts int
	retryBase    time.Duration
	retryMax     time.Duration
}

// Option configures a policy's dialing behavior.
type Option func(*dialer)

// WithDialAttempts bounds how many times a single establish tries to
// reach the server before giving up.
func WithDialAttempts(n int) Option {
	return func(d *dialer) {
		if n > 0 {
			d.dialAttempts = n
		}
	}
}

// WithRetryDelays sets the backoff window between dial attempts.
func WithRetryDelays(base, max time.Duration) Option {
	return func(d *dialer) {
		d.retryBase = base
		d.retryMax = max
	}
}

func newDialer(config *pqwire.Config, opts ...Option) dialer {
	d := dialer{
		config:       config,
		dialAttempts: defaultDialAttempts,
		retryBase:    defaultRetryBase,
		retryMax:     defaultRetryMax,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// establish dials the server, retrying transient failures with
// exponential backoff.
func (d *dialer) establish() (session.Client, error) {
	r := retry.New(d.retryBase, d.retryMax)
	ctx := context.Background()

	var lastErr error
	for {
		if err := r.StartAttempt(ctx); err != nil {
			return nil, err
		}
		conn, err := pqwire.Connect(ctx, d.config)
		if err == nil {
			return &wireClient{conn: conn}, nil
		}
		lastErr = err
		if r.Attempt() >= d.dialAttempts {
			break
		}
	}
	addr := net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
	return nil, fmt.Errorf("connecting to %s (after %d attempts): %w",
		addr, d.dialAttempts, lastErr)
}

// Direct connects eagerly: the session is usable as soon as Init
// returns.
type Direct struct {
	dialer
}

// NewDirect returns a policy that dials during StartConnect.
func NewDirect(config *pqwire.Config, opts ...Option) *Direct {
	return &Direct{dialer: newDialer(config, opts...)}
}

// StartConnect dials unless a handle already exists.
func (p *Direct) StartConnect(handle session.Client) (session.Client, error) {
	if handle != nil {
		return handle, nil
	}
	return p.establish()
}

// CompleteConnect is a no-op: StartConnect already finished the work.
func (p *Direct) CompleteConnect(handle session.Client) (session.Client, error) {
	if handle == nil {
		return nil, errors.New("no connection established")
	}
	return handle, nil
}

// DropConnect keeps the handle; an established connection has nothing
// half-open to abandon.
func (p *Direct) DropConnect(handle session.Client) session.Client {
	return handle
}

// Disconnect closes the physical link.
func (p *Direct) Disconnect(handle session.Client) session.Client {
	return closeHandle(handle)
}

// IsReady reports whether the handle is fully connected.
func (p *Direct) IsReady(handle session.Client) bool {
	return handle != nil
}

// Lazy defers the dial until the session first needs the server:
// StartConnect does nothing, CompleteConnect establishes the link.
type Lazy struct {
	dialer
}

// NewLazy returns a policy that dials on first use.
func NewLazy(config *pqwire.Config, opts ...Option) *Lazy {
	return &Lazy{dialer: newDialer(config, opts...)}
}

// StartConnect records nothing; the dial happens in CompleteConnect.
func (p *Lazy) StartConnect(handle session.Client) (session.Client, error) {
	return handle, nil
}

// CompleteConnect dials unless a handle already exists.
func (p *Lazy) CompleteConnect(handle session.Client) (session.Client, error) {
	if handle != nil {
		return handle, nil
	}
	return p.establish()
}

// DropConnect abandons the pending attempt; there is no half-open
// socket to close before CompleteConnect has run.
func (p *Lazy) DropConnect(handle session.Client) session.Client {
	return handle
}

// Disconnect closes the physical link.
func (p *Lazy) Disconnect(handle session.Client) session.Client {
	return closeHandle(handle)
}

// IsReady reports whether the deferred dial has completed.
func (p *Lazy) IsReady(handle session.Client) bool {
	return handle != nil
}

// Null never produces a connection. Sessions carrying this policy fail
// every operation that needs the server; useful as a placeholder and in
// tests.
type Null struct{}

// NewNull returns the never-connecting policy.
func NewNull() *Null {
	return &Null{}
}

var errNullPolicy = errors.New("null connection policy in effect: connections are not allowed")

// StartConnect fails: this policy cannot connect.
func (p *Null) StartConnect(handle session.Client) (session.Client, error) {
	if handle != nil {
		return handle, errNullPolicy
	}
	return nil, errNullPolicy
}

// CompleteConnect fails: this policy cannot connect.
func (p *Null) CompleteConnect(handle session.Client) (session.Client, error) {
	return handle, errNullPolicy
}

// DropConnect discards the handle.
func (p *Null) DropConnect(handle session.Client) session.Client {
	return nil
}

// Disconnect discards the handle.
func (p *Null) Disconnect(handle session.Client) session.Client {
	return closeHandle(handle)
}

// IsReady is always false.
func (p *Null) IsReady(handle session.Client) bool {
	return false
}

func closeHandle(handle session.Client) session.Client {
	if wc, ok := handle.(*wireClient); ok && wc != nil {
		wc.conn.Close()
	}
	return nil
}
