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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationBody(pid uint32, channel, payload string) []byte {
	w := newMessageWriter()
	w.writeUint32(pid)
	w.writeString(channel)
	w.writeString(payload)
	return w.bytes()
}

func parameterStatusBody(name, value string) []byte {
	w := newMessageWriter()
	w.writeString(name)
	w.writeString(value)
	return w.bytes()
}

func TestConsumeInputQueuesAsyncTraffic(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgNotificationResponse, notificationBody(99, "jobs", "one"))
	script = appendMsg(script, msgParameterStatus, parameterStatusBody("TimeZone", "UTC"))
	script = appendMsg(script, msgNotificationResponse, notificationBody(99, "jobs", "two"))

	c, _ := testConn(script)
	var notices []string
	c.SetNoticeHandler(func(msg string) { notices = append(notices, msg) })

	require.True(t, c.ConsumeInput())
	assert.True(t, c.IsLive())

	n := c.Notifies()
	require.NotNil(t, n)
	assert.Equal(t, "one", n.Payload)
	n = c.Notifies()
	require.NotNil(t, n)
	assert.Equal(t, "two", n.Payload)
	assert.Nil(t, c.Notifies())

	assert.Equal(t, "UTC", c.ServerParameter("TimeZone"))
	assert.Empty(t, notices)
}

func TestConsumeInputIdleNoData(t *testing.T) {
	c, _ := testConn(nil)
	assert.True(t, c.ConsumeInput(), "no pending input is not a failure")
	assert.True(t, c.IsLive())
}

func TestConsumeInputLeavesResultsWhileBusy(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 0"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	require.NoError(t, c.SendQuery("SELECT 1"))

	require.True(t, c.ConsumeInput())

	// The command's results were left alone for GetResult.
	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, "SELECT 0", r.Tag())
}

func TestConsumeInputRejectsResultTrafficWhileIdle(t *testing.T) {
	script := appendMsg(nil, msgCommandComplete, commandCompleteBody("SELECT 0"))

	c, _ := testConn(script)
	assert.False(t, c.ConsumeInput())
	assert.False(t, c.IsLive())
	assert.Contains(t, c.ErrorMessage(), "unexpected message")
}

func TestWaitRead(t *testing.T) {
	t.Run("buffered data returns immediately", func(t *testing.T) {
		script := appendMsg(nil, msgNotificationResponse, notificationBody(1, "ch", ""))
		c, _ := testConn(script)
		assert.NoError(t, c.WaitRead(nil))
	})

	t.Run("expired timeout is not an error", func(t *testing.T) {
		c, _ := testConn(nil)
		timeout := 5 * time.Millisecond
		assert.NoError(t, c.WaitRead(&timeout))
		assert.True(t, c.IsLive())
	})

	t.Run("dead connection", func(t *testing.T) {
		c, _ := testConn(nil)
		c.alive = false
		assert.ErrorIs(t, c.WaitRead(nil), errNotLive)
	})
}

func TestWaitWrite(t *testing.T) {
	c, _ := testConn(nil)
	assert.NoError(t, c.WaitWrite(nil))

	c.alive = false
	assert.ErrorIs(t, c.WaitWrite(nil), errNotLive)
}

func TestNoticeFormatting(t *testing.T) {
	c, _ := testConn(nil)
	var got string
	c.SetNoticeHandler(func(msg string) { got = msg })

	w := newMessageWriter()
	w.writeByte(fieldSeverity)
	w.writeString("WARNING")
	w.writeByte(fieldMessage)
	w.writeString("nonstandard use of escape")
	w.writeByte(fieldHint)
	w.writeString("Use the escape string syntax.")
	w.writeByte(0)
	c.handleNotice(w.bytes())

	assert.Equal(t, "WARNING:  nonstandard use of escape\nHINT:  Use the escape string syntax.\n", got)
}

func TestProtocolVersion(t *testing.T) {
	c, _ := testConn(nil)
	assert.Equal(t, 3, c.ProtocolVersion())

	c.alive = false
	assert.Equal(t, 0, c.ProtocolVersion())
}

func TestCancelWithoutConnection(t *testing.T) {
	c := &Conn{config: &Config{}}
	assert.ErrorIs(t, c.Cancel(), errNotLive)
}
