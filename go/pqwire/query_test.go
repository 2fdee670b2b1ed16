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
	"bufio"
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptConn is an in-memory net.Conn: reads come from a pre-scripted
// buffer, writes are captured. Reading past the script behaves like a
// socket read deadline expiring, so the polling paths see a timeout
// rather than EOF.
type scriptConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "read would block" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func (s *scriptConn) Read(p []byte) (int, error) {
	if s.in.Len() == 0 {
		return 0, timeoutError{}
	}
	return s.in.Read(p)
}

func (s *scriptConn) Write(p []byte) (int, error)        { return s.out.Write(p) }
func (s *scriptConn) Close() error                       { return nil }
func (s *scriptConn) LocalAddr() net.Addr                { return nil }
func (s *scriptConn) RemoteAddr() net.Addr               { return nil }
func (s *scriptConn) SetDeadline(t time.Time) error      { return nil }
func (s *scriptConn) SetReadDeadline(t time.Time) error  { return nil }
func (s *scriptConn) SetWriteDeadline(t time.Time) error { return nil }

// testConn builds a live Conn whose reader is fed by script.
func testConn(script []byte) (*Conn, *scriptConn) {
	sc := &scriptConn{in: bytes.NewBuffer(script), out: &bytes.Buffer{}}
	c := &Conn{
		netConn:      sc,
		reader:       bufio.NewReaderSize(sc, connBufferSize),
		writer:       bufio.NewWriterSize(sc, connBufferSize),
		config:       &Config{},
		serverParams: make(map[string]string),
		txnStatus:    TxnStatusIdle,
		alive:        true,
	}
	return c, sc
}

// appendMsg appends one backend message to a script.
func appendMsg(script []byte, msgType byte, body []byte) []byte {
	script = append(script, msgType)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(4+len(body)))
	script = append(script, lenBuf[:]...)
	return append(script, body...)
}

func rowDescriptionBody(names ...string) []byte {
	w := newMessageWriter()
	w.writeInt16(int16(len(names)))
	for i, name := range names {
		w.writeString(name)
		w.writeUint32(0)             // table OID
		w.writeInt16(int16(i + 1))   // attribute number
		w.writeUint32(25)            // text
		w.writeInt16(-1)             // variable size
		w.writeInt32(-1)             // no type modifier
		w.writeInt16(0)              // text format
	}
	return w.bytes()
}

func dataRowBody(values ...[]byte) []byte {
	w := newMessageWriter()
	w.writeInt16(int16(len(values)))
	for _, v := range values {
		w.writeByteString(v)
	}
	return w.bytes()
}

func commandCompleteBody(tag string) []byte {
	w := newMessageWriter()
	w.writeString(tag)
	return w.bytes()
}

func errorBody(severity, code, message string) []byte {
	w := newMessageWriter()
	w.writeByte(fieldSeverity)
	w.writeString(severity)
	w.writeByte(fieldCode)
	w.writeString(code)
	w.writeByte(fieldMessage)
	w.writeString(message)
	w.writeByte(0)
	return w.bytes()
}

func copyResponseBody(cols int) []byte {
	w := newMessageWriter()
	w.writeByte(0) // text format
	w.writeInt16(int16(cols))
	for range cols {
		w.writeInt16(0)
	}
	return w.bytes()
}

func TestExecSimpleQuery(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgRowDescription, rowDescriptionBody("answer"))
	script = appendMsg(script, msgDataRow, dataRowBody([]byte("42")))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 1"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, sc := testConn(script)
	r := c.Exec("SELECT 42")
	require.NotNil(t, r)
	assert.Equal(t, StatusTuplesOK, r.Status)
	assert.Equal(t, "SELECT 1", r.Tag())
	require.Len(t, r.Fields, 1)
	assert.Equal(t, "answer", r.Fields[0].Name)

	v, ok := r.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, "42", v)

	assert.False(t, c.busy, "ReadyForQuery must clear the busy flag")
	assert.True(t, c.IsLive())
	assert.Equal(t, byte(msgQuery), sc.out.Bytes()[0])
}

func TestExecNullValue(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgRowDescription, rowDescriptionBody("v"))
	script = appendMsg(script, msgDataRow, dataRowBody(nil))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 1"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Exec("SELECT NULL")
	require.NotNil(t, r)
	_, ok := r.Value(0, 0)
	assert.False(t, ok, "NULL cells must report absence")
}

func TestExecServerError(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgErrorResponse, errorBody("ERROR", "42601", "syntax error"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Exec("SELEC 1")
	require.NotNil(t, r)
	assert.Equal(t, StatusError, r.Status)
	assert.False(t, r.OK())
	assert.Contains(t, r.ErrorText(), "syntax error")
	assert.Contains(t, r.ErrorText(), "42601")

	assert.True(t, c.IsLive(), "a server error does not break the connection")
	assert.False(t, c.busy)
	assert.Contains(t, c.ErrorMessage(), "syntax error")
}

func TestExecMultiStatementKeepsLastResult(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SET"))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("LISTEN"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Exec("SET x=1; LISTEN ch")
	require.NotNil(t, r)
	assert.Equal(t, "LISTEN", r.Tag())
}

func TestSendQueryWhileBusy(t *testing.T) {
	c, _ := testConn(nil)
	require.NoError(t, c.SendQuery("SELECT 1"))
	err := c.SendQuery("SELECT 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestNotificationQueuedDuringQuery(t *testing.T) {
	notif := newMessageWriter()
	notif.writeUint32(4242)
	notif.writeString("jobs")
	notif.writeString("payload-1")

	var script []byte
	script = appendMsg(script, msgNotificationResponse, notif.bytes())
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 0"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Exec("SELECT 1")
	require.NotNil(t, r)

	n := c.Notifies()
	require.NotNil(t, n)
	assert.Equal(t, "jobs", n.Channel)
	assert.Equal(t, "payload-1", n.Payload)
	assert.Equal(t, 4242, n.BackendPID)
	assert.Nil(t, c.Notifies())
}

func TestNoticeRelayedDuringQuery(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgNoticeResponse, errorBody("NOTICE", "01000", "something advisory"))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 0"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	var notices []string
	c.SetNoticeHandler(func(msg string) { notices = append(notices, msg) })

	require.NotNil(t, c.Exec("SELECT 1"))
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "NOTICE:  something advisory")
}

func TestCopyOutFlow(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCopyOutResponse, copyResponseBody(2))
	script = appendMsg(script, msgCopyData, []byte("1\talice\n"))
	script = appendMsg(script, msgCopyData, []byte("2\tbob\n"))
	script = appendMsg(script, msgCopyDone, nil)
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("COPY 2"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Exec("COPY users TO STDOUT")
	require.NotNil(t, r)
	require.Equal(t, StatusCopyOut, r.Status)

	line, done, err := c.CopyRead()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "1\talice", line, "the terminating newline is stripped")

	line, done, err = c.CopyRead()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "2\tbob", line)

	_, done, err = c.CopyRead()
	require.NoError(t, err)
	assert.True(t, done)

	final := c.GetResult()
	require.NotNil(t, final)
	assert.Equal(t, "COPY 2", final.Tag())
	assert.Nil(t, c.GetResult())
	assert.False(t, c.busy)
}

func TestCopyInFlow(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCopyInResponse, copyResponseBody(2))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("COPY 2"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, sc := testConn(script)
	r := c.Exec("COPY users FROM STDIN")
	require.NotNil(t, r)
	require.Equal(t, StatusCopyIn, r.Status)

	require.NoError(t, c.CopyWrite([]byte("1\talice\n")))
	require.NoError(t, c.CopyWrite([]byte("2\tbob\n")))
	require.NoError(t, c.CopyDone())

	final := c.GetResult()
	require.NotNil(t, final)
	assert.Equal(t, "COPY 2", final.Tag())

	sent := sc.out.Bytes()
	assert.Contains(t, string(sent), "1\talice\n")
	assert.Contains(t, string(sent), "2\tbob\n")
}

func TestCopyWriteOutsideCopy(t *testing.T) {
	c, _ := testConn(nil)
	err := c.CopyWrite([]byte("x"))
	assert.ErrorIs(t, err, errNoCopy)
}

func TestPrepareSynthesizesResult(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgParseComplete, nil)
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.Prepare("find_user", "SELECT * FROM users WHERE id=$1")
	require.NotNil(t, r)
	assert.True(t, r.OK())
	assert.Equal(t, StatusCommandOK, r.Status)
}

func TestCloseStatementDeallocates(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCloseComplete, nil)
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, sc := testConn(script)
	r := c.CloseStatement("find_user")
	require.NotNil(t, r)
	assert.True(t, r.OK())
	assert.Equal(t, StatusCommandOK, r.Status)
	assert.False(t, c.busy)

	sent := sc.out.Bytes()
	require.NotEmpty(t, sent)
	assert.Equal(t, byte(msgClose), sent[0])
	assert.Contains(t, string(sent), "S"+"find_user\x00")
}

func TestMalformedReadyForQueryKillsConnection(t *testing.T) {
	var script []byte
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 1"))
	script = appendMsg(script, msgReadyForQuery, nil)

	c, _ := testConn(script)
	require.NoError(t, c.SendQuery("SELECT 1"))

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, "SELECT 1", r.Tag())

	assert.Nil(t, c.GetResult())
	assert.False(t, c.IsLive())
	assert.Contains(t, c.ErrorMessage(), "too short")
}

func TestExecPreparedRows(t *testing.T) {
	// Execute responses carry DataRow without a RowDescription.
	var script []byte
	script = appendMsg(script, msgBindComplete, nil)
	script = appendMsg(script, msgDataRow, dataRowBody([]byte("7")))
	script = appendMsg(script, msgCommandComplete, commandCompleteBody("SELECT 1"))
	script = appendMsg(script, msgReadyForQuery, []byte{TxnStatusIdle})

	c, _ := testConn(script)
	r := c.ExecPrepared("find_user", []Param{{Value: []byte("7")}})
	require.NotNil(t, r)
	assert.True(t, r.OK())
	v, ok := r.Value(0, 0)
	require.True(t, ok)
	assert.Equal(t, "7", v)
}

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"16.4", 160004},
		{"10.1", 100001},
		{"9.6.24", 90624},
		{"9.4.0", 90400},
		{"17beta1", 170000},
		{"18devel", 180000},
		{"14.2 (Debian 14.2-1.pgdg110+1)", 140002},
		{"", 0},
		{"weird", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseServerVersion(tt.in))
		})
	}
}

func TestParseDiagnostic(t *testing.T) {
	w := newMessageWriter()
	w.writeByte(fieldSeverity)
	w.writeString("ERROR")
	w.writeByte(fieldCode)
	w.writeString("23505")
	w.writeByte(fieldMessage)
	w.writeString("duplicate key value")
	w.writeByte(fieldDetail)
	w.writeString("Key (id)=(1) already exists.")
	w.writeByte(fieldTable)
	w.writeString("users")
	w.writeByte(fieldConstraint)
	w.writeString("users_pkey")
	w.writeByte(0)

	d := parseDiagnostic(w.bytes())
	assert.Equal(t, "ERROR", d.Severity)
	assert.Equal(t, "23505", d.Code)
	assert.Equal(t, "duplicate key value", d.Message)
	assert.Equal(t, "Key (id)=(1) already exists.", d.Detail)
	assert.Equal(t, "users", d.Table)
	assert.Equal(t, "users_pkey", d.Constraint)

	e := &Error{Diagnostic: d}
	assert.True(t, e.IsSQLState("23505"))
	assert.False(t, e.IsSQLState("42601"))
}

func TestMessageReaderWriterRoundTrip(t *testing.T) {
	w := newMessageWriter()
	w.writeByte(7)
	w.writeUint16(512)
	w.writeInt32(-9)
	w.writeString("hello")
	w.writeByteString([]byte{1, 2, 3})
	w.writeByteString(nil)

	r := newMessageReader(w.bytes())
	b, err := r.readByte()
	require.NoError(t, err)
	assert.Equal(t, byte(7), b)

	u16, err := r.readUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(512), u16)

	i32, err := r.readInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-9), i32)

	s, err := r.readString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	bs, err := r.readByteString()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, bs)

	null, err := r.readByteString()
	require.NoError(t, err)
	assert.Nil(t, null)
	assert.Zero(t, r.remaining())
}

func TestReadMessageRejectsBadLength(t *testing.T) {
	script := []byte{msgCommandComplete, 0, 0, 0, 2} // length < 4
	c, _ := testConn(script)
	_, _, err := c.readMessage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid message length")
}
