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

// noticeChunkSize bounds one fallback chunk of an overlong notice. Each
// chunk except the last is tagged with a continuation marker so no part
// of the message is lost.
const noticeChunkSize = 1000

const noticeContinuation = "[...]\n"

// RegisterErrorHandler adds a handler to the notice relay. Handlers are
// invoked most-recently-registered first.
func (c *Conn) RegisterErrorHandler(h ErrorHandler) error {
	if h == nil {
		return errArgument("nil error handler registered")
	}
	c.handlers = append(c.handlers, h)
	return nil
}

// UnregisterErrorHandler removes a previously registered handler. Unknown
// handlers are ignored.
func (c *Conn) UnregisterErrorHandler(h ErrorHandler) {
	for i, reg := range c.handlers {
		if reg == h {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return
		}
	}
}

// ErrorHandlers returns the registered handlers in registration order.
func (c *Conn) ErrorHandlers() []ErrorHandler {
	out := make([]ErrorHandler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

// processNoticeRaw fans one already-normalized message out to the
// handlers, newest first, stopping when a handler declines propagation.
func (c *Conn) processNoticeRaw(msg string) {
	if msg == "" {
		return
	}
	for i := len(c.handlers) - 1; i >= 0; i-- {
		if !c.handlers[i].HandleNotice(msg) {
			return
		}
	}
}

// ProcessNotice routes an asynchronous notice to every registered error
// handler. Messages are normalized to end in a newline. Messages longer
// than the chunk limit are split into fixed-size chunks, each tagged with
// a continuation marker, so that no handler ever sees an unbounded
// string and no part of the message is dropped.
//
// ProcessNotice never fails; it is also the sink for the relay's own
// internal errors.
func (c *Conn) ProcessNotice(msg string) {
	if msg == "" {
		return
	}

	if len(msg) <= noticeChunkSize {
		if msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
		c.processNoticeRaw(msg)
		return
	}

	// Fallback path: fixed-size chunks with an explicit continuation
	// marker. Unavoidably this breaks up overly long messages.
	chunk := noticeChunkSize - len(noticeContinuation)
	var written int
	for ; written+chunk < len(msg); written += chunk {
		c.processNoticeRaw(msg[written:written+chunk] + noticeContinuation)
	}
	rest := msg[written:]
	if rest[len(rest)-1] != '\n' {
		rest += "\n"
	}
	c.processNoticeRaw(rest)
}

// AddReceiver registers a pub/sub listener. The first listener on a
// channel issues a LISTEN to the server (when open); later listeners on
// the same channel piggyback on it. A broken connection during the
// LISTEN is tolerated: the registration is replayed on reconnect.
func (c *Conn) AddReceiver(r Receiver) error {
	if r == nil {
		return errArgument("nil receiver registered")
	}

	channel := r.Channel()
	if !c.listeningOn(channel) && c.IsOpen() {
		lq := "LISTEN \"" + channel + "\""
		res := c.clientExec(lq)
		if err := c.checkResult(res); err != nil && !isBrokenErr(err) {
			return err
		}
	}
	c.receivers = append(c.receivers, receiverEntry{channel: channel, receiver: r})
	return nil
}

// RemoveReceiver deregisters a listener. Removing the last listener for
// a channel issues exactly one UNLISTEN; removing one of several issues
// none. Never fails: problems are downgraded to notices.
func (c *Conn) RemoveReceiver(r Receiver) {
	if r == nil {
		return
	}

	channel := r.Channel()
	idx := -1
	count := 0
	for i, e := range c.receivers {
		if e.channel == channel {
			count++
			if idx < 0 && e.receiver == r {
				idx = i
			}
		}
	}
	if idx < 0 {
		c.ProcessNotice("Attempt to remove unknown receiver '" + channel + "'")
		return
	}

	// Erase first; a notification for the same receiver may still be
	// queued and must not reach it.
	gone := c.client != nil && count == 1
	c.receivers = append(c.receivers[:idx], c.receivers[idx+1:]...)
	if gone {
		if _, err := c.Exec("UNLISTEN \""+channel+"\"", 0); err != nil {
			c.ProcessNotice(err.Error())
		}
	}
}

func (c *Conn) listeningOn(channel string) bool {
	for _, e := range c.receivers {
		if e.channel == channel {
			return true
		}
	}
	return false
}

// GetNotifs polls for pending pub/sub notifications and dispatches them
// to their channels' receivers. Returns the number of notifications
// consumed.
//
// While a transaction is registered, notifications are deferred: input
// is consumed but the queue is left untouched.
func (c *Conn) GetNotifs() (int, error) {
	if !c.IsOpen() {
		return 0, nil
	}
	if !c.client.ConsumeInput() {
		return 0, errBroken(c.errMsg())
	}
	if c.txn != nil {
		return 0, nil
	}

	notifs := 0
	for n := c.client.Notifies(); n != nil; n = c.client.Notifies() {
		notifs++
		for _, e := range c.receivers {
			if e.channel != n.Channel {
				continue
			}
			if err := e.receiver.Notify(n.Payload, n.BackendPID); err != nil {
				// Receiver failures must never reach the polling
				// caller; degrade to a warning and a notice.
				c.warn("notification receiver failed", "channel", e.channel, "error", err)
				c.ProcessNotice("Error in notification receiver '" +
					e.channel + "': " + err.Error() + "\n")
			}
		}
	}
	return notifs, nil
}

// AwaitNotification blocks until at least one notification has been
// dispatched, activating the connection first if necessary. Returns the
// number of notifications seen.
func (c *Conn) AwaitNotification() (int, error) {
	return c.awaitNotification(nil)
}

// AwaitNotificationTimeout is AwaitNotification bounded by a timeout. A
// result of 0 with nil error means the wait timed out.
func (c *Conn) AwaitNotificationTimeout(timeout time.Duration) (int, error) {
	return c.awaitNotification(&timeout)
}

func (c *Conn) awaitNotification(timeout *time.Duration) (int, error) {
	if err := c.Activate(); err != nil {
		return 0, err
	}
	notifs, err := c.GetNotifs()
	if err != nil || notifs > 0 {
		return notifs, err
	}
	if err := c.waitRead(timeout); err != nil {
		return 0, err
	}
	return c.GetNotifs()
}
