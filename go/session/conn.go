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

// Package session manages the lifecycle of a single logical database
// connection on top of a wire-protocol Client capability. A Conn can lose
// its physical link and silently re-establish it, replaying session-level
// state (variables, LISTEN registrations, prepared statements) that only
// exists server-side.
//
// A Conn is a single logical thread of use: no two operations may be in
// flight concurrently. Multi-goroutine callers must synchronize
// externally; the one exception is CancelQuery, which is safe to call
// from another goroutine.
package session

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Capability identifies an optional backend feature the connected server
// is known to support.
type Capability int

const (
	CapPreparedStatements Capability = iota
	CapParameterizedStatements
	CapPrepareUnnamedStatement
	CapCursorScroll
	CapCursorWithHold
	CapCursorFetchZero
	CapNestedTransactions
	CapReadOnlyTransactions
	CapNotifyPayload
	capCount
)

// Version floors enforced during setup.
const (
	minServerVersion   = 90000 // 9.0
	minProtocolVersion = 3
)

// receiverEntry pairs a channel name with one registered receiver.
// Registration order is preserved so LISTEN replay is deterministic.
type receiverEntry struct {
	channel  string
	receiver Receiver
}

// preparedDef is one prepared-statement registry entry.
type preparedDef struct {
	definition string
	// registered is true iff the name has been prepared against the
	// current physical connection. Reset whenever the link is replaced.
	registered bool
}

// Conn is a logical connection to the database backend.
type Conn struct {
	policy Policy
	client Client // physical handle; nil when absent

	// completed is true iff the handle finished its handshake and the
	// last setup pass succeeded.
	completed bool

	// inhibitReactivation blocks all silent reconnection when set.
	inhibitReactivation bool

	// avoidance counts outstanding objects whose server-side state
	// cannot survive a reconnect. While nonzero the connection is never
	// silently deactivated or reactivated.
	avoidance int

	serverVersion int
	caps          [capCount]bool

	prepared  map[string]*preparedDef
	vars      map[string]string
	receivers []receiverEntry
	handlers  []ErrorHandler
	txn       Transaction

	trace    io.Writer
	logger   *slog.Logger
	uniqueID int
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for lifecycle warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// New creates a logical connection governed by the given policy. No
// physical connection is made; call Init or let the first operation
// activate lazily.
func New(policy Policy, opts ...Option) *Conn {
	c := &Conn{
		policy:   policy,
		prepared: make(map[string]*preparedDef),
		vars:     make(map[string]string),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init begins establishing the physical connection according to the
// policy. If the policy connects eagerly, activation runs to completion.
func (c *Conn) Init() error {
	handle, err := c.policy.StartConnect(c.client)
	c.client = handle
	if err != nil {
		return err
	}
	if c.policy.IsReady(c.client) {
		return c.Activate()
	}
	return nil
}

// IsOpen reports whether the connection is fully usable: a physical
// handle exists, setup completed, and the link reports live.
func (c *Conn) IsOpen() bool {
	return c.client != nil && c.completed && c.client.IsLive()
}

// Activate establishes (or re-establishes) the physical connection and
// replays logical session state onto it. A no-op when already open.
//
// Activation is refused with a broken-connection error when reactivation
// has been inhibited. When the reactivation-avoidance counter is nonzero
// the call returns nil without connecting; callers observe IsOpen()
// still false.
func (c *Conn) Activate() error {
	if c.IsOpen() {
		return nil
	}
	if c.inhibitReactivation {
		return errBroken("could not reactivate connection; reactivation is inhibited")
	}
	if c.avoidance > 0 {
		// Objects are outstanding that would not survive the
		// reconnect. Leave the connection closed.
		return nil
	}

	err := c.connectAndSetup()
	if err == nil {
		return nil
	}
	if isBrokenErr(err) {
		c.Disconnect()
		c.completed = false
		return err
	}
	// Leave the handle as StartConnect left it so a later retry can
	// still complete the handshake.
	c.completed = false
	return err
}

func (c *Conn) connectAndSetup() error {
	handle, err := c.policy.StartConnect(c.client)
	c.client = handle
	if err != nil {
		return errBrokenf("starting connection: %v", err)
	}
	handle, err = c.policy.CompleteConnect(c.client)
	c.client = handle
	if err != nil {
		return errBrokenf("completing connection: %v", err)
	}
	c.completed = true // retracted by Activate if anything below fails

	if !c.IsOpen() {
		return errBroken(c.errMsg())
	}
	return c.setupState()
}

// setupState recovers the parts of logical connection state that live
// server-side, after the physical link was (re-)established or reset.
func (c *Conn) setupState() error {
	if c.client == nil {
		return errInternal("setup on no connection")
	}
	if !c.client.IsLive() {
		msg := c.errMsg()
		c.client = c.policy.Disconnect(c.client)
		return errDatabase(msg)
	}

	if err := c.readCapabilities(); err != nil {
		return err
	}

	// The server forgot every statement the old link had prepared.
	for _, p := range c.prepared {
		p.registered = false
	}

	c.client.SetNoticeHandler(c.ProcessNotice)
	c.client.SetTrace(c.trace)

	if len(c.receivers) > 0 || len(c.vars) > 0 {
		// Batch everything needed to restore receivers and variables
		// into one multi-statement command.
		var restore strings.Builder
		seen := make(map[string]bool, len(c.receivers))
		for _, e := range c.receivers {
			// Multiple receivers may share a channel; LISTEN once each.
			if !seen[e.channel] {
				seen[e.channel] = true
				restore.WriteString("LISTEN \"" + e.channel + "\"; ")
			}
		}
		for name, value := range c.vars {
			restore.WriteString("SET " + name + "=" + value + "; ")
		}

		if err := c.client.SendQuery(restore.String()); err != nil {
			return errBrokenf("replaying session state: %v", err)
		}
		// Drain without validating each result; the open check below
		// catches anything fatal.
		for r := c.client.GetResult(); r != nil; r = c.client.GetResult() {
		}
	}

	c.completed = true
	if !c.IsOpen() {
		return errBroken(c.errMsg())
	}
	return nil
}

// readCapabilities refreshes the cached server version, protocol version
// and capability flags from the live handle.
func (c *Conn) readCapabilities() error {
	c.serverVersion = c.client.ServerVersion()
	if c.serverVersion <= minServerVersion {
		return errUnsupported("unsupported server version; 9.0 is the minimum")
	}
	switch pv := c.client.ProtocolVersion(); {
	case pv == 0:
		return errBroken(c.errMsg())
	case pv < minProtocolVersion:
		return errUnsupported("unsupported frontend/backend protocol version; 3.0 is the minimum")
	}
	for i := range c.caps {
		c.caps[i] = true
	}
	return nil
}

func (c *Conn) clearCaps() {
	c.caps = [capCount]bool{}
}

// Supports reports whether the connected server offers the capability.
// Meaningful only while a connection has been established at least once.
func (c *Conn) Supports(cap Capability) bool {
	if cap < 0 || cap >= capCount {
		return false
	}
	return c.caps[cap]
}

// Deactivate disconnects the physical link while retaining all logical
// session state for a later Activate. Fails if a transaction is open;
// no-ops with a notice while the avoidance counter is nonzero.
func (c *Conn) Deactivate() error {
	if c.client == nil {
		return nil
	}
	if c.txn != nil {
		return errUsage("attempt to deactivate connection while " +
			c.txn.Description() + " still open")
	}
	if c.avoidance > 0 {
		c.warn("ignoring deactivation; connection holds state that cannot be recovered later")
		c.ProcessNotice("Attempt to deactivate connection while it is in a state " +
			"that cannot be fully recovered later (ignoring)")
		return nil
	}
	c.completed = false
	c.client = c.policy.Disconnect(c.client)
	return nil
}

// Reset discards any half-open connection attempt and re-establishes the
// physical link, replaying session state. Refused while reactivation is
// inhibited; a no-op while the avoidance counter is nonzero.
func (c *Conn) Reset() error {
	if c.inhibitReactivation {
		return errBroken("could not reset connection: reactivation is inhibited")
	}
	if c.avoidance > 0 {
		return nil
	}

	c.client = c.policy.DropConnect(c.client)
	c.completed = false

	if c.client != nil {
		c.client.Reset()
		return c.setupState()
	}
	return c.Activate()
}

// Disconnect drops the physical connection unconditionally. Logical
// session state is retained.
func (c *Conn) Disconnect() {
	// The server may be a different one when we activate again.
	c.clearCaps()
	c.client = c.policy.Disconnect(c.client)
}

// Close tears the connection down for good. It never returns an error:
// internal failures are swallowed, since Close must always leave the
// object in a consistent closed state.
func (c *Conn) Close() {
	c.completed = false
	c.InhibitReactivation(false)
	c.avoidance = 0

	if c.txn != nil {
		c.warn("closing connection with transaction still open", "transaction", c.txn.Description())
		c.ProcessNotice("Closing connection while " + c.txn.Description() + " still open")
	}
	if len(c.receivers) > 0 {
		c.warn("closing connection with outstanding receivers", "receivers", len(c.receivers))
		c.ProcessNotice("Closing connection with outstanding receivers.")
		c.receivers = nil
	}

	if c.client != nil {
		c.client.SetNoticeHandler(nil)
	}

	// Release handlers in reverse order of registration.
	old := c.handlers
	c.handlers = nil
	for i := len(old) - 1; i >= 0; i-- {
		if closer, ok := old[i].(io.Closer); ok {
			_ = closer.Close()
		}
	}

	c.client = c.policy.Disconnect(c.client)
}

// SimulateFailure force-drops the physical connection and inhibits
// reactivation. Fault-injection hook for exercising broken-connection
// handling.
func (c *Conn) SimulateFailure() {
	if c.client != nil {
		c.client = c.policy.Disconnect(c.client)
		c.InhibitReactivation(true)
	}
}

// InhibitReactivation controls whether the connection may silently
// re-establish a lost physical link.
func (c *Conn) InhibitReactivation(inhibit bool) {
	c.inhibitReactivation = inhibit
}

// ServerVersion returns the backend version recorded at the last setup,
// in libpq integer form.
func (c *Conn) ServerVersion() int {
	return c.serverVersion
}

// ProtocolVersion returns the wire protocol version of the current
// handle, or 0 when there is none.
func (c *Conn) ProtocolVersion() int {
	if c.client == nil {
		return 0
	}
	return c.client.ProtocolVersion()
}

// Trace directs a protocol trace to w for the current and all future
// physical connections. nil disables tracing.
func (c *Conn) Trace(w io.Writer) {
	c.trace = w
	if c.client != nil {
		c.client.SetTrace(w)
	}
}

// CancelQuery interrupts the command currently executing on the server.
// Safe to call from a different goroutine than the one executing.
func (c *Conn) CancelQuery() error {
	if c.client == nil {
		return errBroken("no connection to cancel on")
	}
	return c.client.Cancel()
}

// RegisterTransaction installs t as the active transaction. Only one may
// be active at a time.
func (c *Conn) RegisterTransaction(t Transaction) error {
	if t == nil {
		return errArgument("nil transaction registered")
	}
	if c.txn != nil {
		return errUsage("attempt to start " + t.Description() +
			" while " + c.txn.Description() + " still open")
	}
	c.txn = t
	return nil
}

// UnregisterTransaction clears the active transaction slot. A mismatch is
// reported as a notice rather than an error.
func (c *Conn) UnregisterTransaction(t Transaction) {
	if c.txn != t {
		c.ProcessNotice("attempt to unregister transaction that is not active")
		return
	}
	c.txn = nil
}

// SetVariable assigns a session variable. While a transaction is
// registered the assignment routes to it; otherwise the value is applied
// to the live connection (if open) and remembered for replay after any
// reconnect.
func (c *Conn) SetVariable(name, value string) error {
	if c.txn != nil {
		return c.txn.SetVariable(name, value)
	}
	if c.IsOpen() {
		if err := c.rawSetVar(name, value); err != nil {
			return err
		}
	}
	c.vars[name] = value
	return nil
}

// GetVariable reads a session variable, through the active transaction
// when one is registered.
func (c *Conn) GetVariable(name string) (string, error) {
	if c.txn != nil {
		return c.txn.GetVariable(name)
	}
	return c.rawGetVar(name)
}

// AddVariables merges variables into the replay set without touching the
// live connection.
func (c *Conn) AddVariables(vars map[string]string) {
	for name, value := range vars {
		c.vars[name] = value
	}
}

func (c *Conn) rawSetVar(name, value string) error {
	_, err := c.Exec("SET "+name+"="+value, 0)
	return err
}

func (c *Conn) rawGetVar(name string) (string, error) {
	if v, ok := c.vars[name]; ok {
		return v, nil
	}
	r, err := c.Exec("SHOW "+name, 0)
	if err != nil {
		return "", err
	}
	v, ok := r.Raw.Value(0, 0)
	if !ok {
		return "", errDatabase("no value returned for variable " + name)
	}
	return v, nil
}

// AdornName decorates a caller-supplied name with a serial number unique
// within this connection, for server-side objects that need distinct
// names (cursors, nested transactions).
func (c *Conn) AdornName(name string) string {
	c.uniqueID++
	id := strconv.Itoa(c.uniqueID)
	if name == "" {
		return "x" + id
	}
	return name + "_" + id
}

// warn emits a lifecycle warning to the configured logger.
func (c *Conn) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// errMsg returns the client's last error text, or a placeholder when no
// handle exists.
func (c *Conn) errMsg() string {
	if c.client == nil {
		return "no connection to database"
	}
	return c.client.ErrorMessage()
}
