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

import (
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeResult is a scripted RawResult.
type fakeResult struct {
	ok      bool
	errText string
	tag     string
	rows    [][]string
}

func (r *fakeResult) OK() bool          { return r.ok }
func (r *fakeResult) ErrorText() string { return r.errText }
func (r *fakeResult) Tag() string       { return r.tag }

func (r *fakeResult) Value(row, col int) (string, bool) {
	if row < 0 || row >= len(r.rows) || col < 0 || col >= len(r.rows[row]) {
		return "", false
	}
	return r.rows[row][col], true
}

func okResult() *fakeResult {
	return &fakeResult{ok: true, tag: "OK"}
}

type copyEvent struct {
	line   string
	status CopyReadStatus
}

// fakeClient is a scripted wire client. Zero scripting yields a healthy
// connection that succeeds at everything.
type fakeClient struct {
	live            bool
	serverVersion   int
	protocolVersion int
	errText         string

	execed []string // commands through Exec
	sent   []string // commands through SendQuery

	// execHook, when set, decides the outcome of Exec per call.
	execHook func(sql string) RawResult
	// results feeds GetResult; nil entries mean "exhausted".
	results []RawResult

	noticeHandler func(string)
	trace         io.Writer

	consumeOK bool
	notifs    []*Notification

	prepares    []string // "name=definition"
	deallocated []string // statements released via CloseStatement
	prepareHook func(name, definition string) RawResult

	copyScript []copyEvent
	copySent   []string
	putCopyOK  bool
	putEnd     CopyEndStatus
	endCopied  bool

	resets    int
	cancels   int
	cancelErr error

	waitReadErr  error
	waitWriteErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		live:            true,
		serverVersion:   170000,
		protocolVersion: 3,
		consumeOK:       true,
		putCopyOK:       true,
		putEnd:          CopyEndOK,
	}
}

func (f *fakeClient) IsLive() bool         { return f.live }
func (f *fakeClient) ServerVersion() int   { return f.serverVersion }
func (f *fakeClient) ProtocolVersion() int { return f.protocolVersion }
func (f *fakeClient) ErrorMessage() string { return f.errText }

func (f *fakeClient) Exec(sql string) RawResult {
	f.execed = append(f.execed, sql)
	if f.execHook != nil {
		return f.execHook(sql)
	}
	return okResult()
}

func (f *fakeClient) SendQuery(sql string) error {
	f.sent = append(f.sent, sql)
	return nil
}

func (f *fakeClient) GetResult() RawResult {
	if len(f.results) == 0 {
		return nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeClient) Prepare(name, definition string) RawResult {
	f.prepares = append(f.prepares, name+"="+definition)
	if f.prepareHook != nil {
		return f.prepareHook(name, definition)
	}
	return okResult()
}

func (f *fakeClient) ExecPrepared(name string, params []Param) RawResult {
	f.execed = append(f.execed, "[EXEC "+name+"]")
	return okResult()
}

func (f *fakeClient) ExecParams(sql string, params []Param) RawResult {
	f.execed = append(f.execed, sql)
	return okResult()
}

func (f *fakeClient) CloseStatement(name string) RawResult {
	f.deallocated = append(f.deallocated, name)
	return okResult()
}

func (f *fakeClient) ConsumeInput() bool { return f.consumeOK }

func (f *fakeClient) Notifies() *Notification {
	if len(f.notifs) == 0 {
		return nil
	}
	n := f.notifs[0]
	f.notifs = f.notifs[1:]
	return n
}

func (f *fakeClient) SetNoticeHandler(h func(string)) { f.noticeHandler = h }
func (f *fakeClient) SetTrace(w io.Writer)            { f.trace = w }

func (f *fakeClient) GetCopyData() (string, CopyReadStatus) {
	if len(f.copyScript) == 0 {
		return "", CopyReadDone
	}
	ev := f.copyScript[0]
	f.copyScript = f.copyScript[1:]
	return ev.line, ev.status
}

func (f *fakeClient) PutCopyData(data []byte) bool {
	if !f.putCopyOK {
		return false
	}
	f.copySent = append(f.copySent, string(data))
	return true
}

func (f *fakeClient) PutCopyEnd() CopyEndStatus { return f.putEnd }
func (f *fakeClient) EndCopy()                  { f.endCopied = true }

func (f *fakeClient) Cancel() error {
	f.cancels++
	return f.cancelErr
}

func (f *fakeClient) Reset() {
	f.resets++
	f.live = true
}

func (f *fakeClient) WaitRead(timeout *time.Duration) error  { return f.waitReadErr }
func (f *fakeClient) WaitWrite(timeout *time.Duration) error { return f.waitWriteErr }

func (f *fakeClient) EscapeString(s string) (string, error) {
	return strings.ReplaceAll(s, "'", "''"), nil
}

func (f *fakeClient) EscapeBytea(b []byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 0, 2+2*len(b))
	out = append(out, '\\', 'x')
	for _, c := range b {
		out = append(out, hex[c>>4], hex[c&0x0f])
	}
	return string(out)
}

func (f *fakeClient) UnescapeBytea(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "\\x")
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		hi := strings.IndexByte("0123456789abcdef", s[i])
		lo := strings.IndexByte("0123456789abcdef", s[i+1])
		out = append(out, byte(hi<<4|lo))
	}
	return out, nil
}

func (f *fakeClient) EscapeIdentifier(s string) (string, error) {
	return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\"", nil
}

// fakePolicy hands out one scripted client.
type fakePolicy struct {
	client      *fakeClient
	startErr    error
	completeErr error
	eager       bool
	keepOnDrop  bool

	starts      int
	completes   int
	drops       int
	disconnects int
}

func (p *fakePolicy) StartConnect(h Client) (Client, error) {
	p.starts++
	if p.startErr != nil {
		return h, p.startErr
	}
	if h != nil {
		return h, nil
	}
	if p.client == nil {
		return nil, nil
	}
	return p.client, nil
}

func (p *fakePolicy) CompleteConnect(h Client) (Client, error) {
	p.completes++
	if p.completeErr != nil {
		return h, p.completeErr
	}
	return h, nil
}

func (p *fakePolicy) DropConnect(h Client) Client {
	p.drops++
	if p.keepOnDrop {
		return h
	}
	return nil
}

func (p *fakePolicy) Disconnect(h Client) Client {
	p.disconnects++
	return nil
}

func (p *fakePolicy) IsReady(h Client) bool {
	return p.eager && h != nil
}

// openConn returns a connected Conn backed by a fresh fake client.
func openConn(t *testing.T) (*Conn, *fakeClient, *fakePolicy) {
	t.Helper()
	fc := newFakeClient()
	fp := &fakePolicy{client: fc, eager: true}
	c := New(fp)
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !c.IsOpen() {
		t.Fatal("connection did not open")
	}
	return c, fc, fp
}

type fakeHandler struct {
	notices []string
	stop    bool
}

func (h *fakeHandler) HandleNotice(msg string) bool {
	h.notices = append(h.notices, msg)
	return !h.stop
}

// closingHandler additionally records teardown order through a shared log.
type closingHandler struct {
	fakeHandler
	name string
	log  *[]string
}

func (h *closingHandler) Close() error {
	*h.log = append(*h.log, h.name)
	return nil
}

type fakeReceiver struct {
	channel  string
	payloads []string
	pids     []int
	err      error
}

func (r *fakeReceiver) Channel() string { return r.channel }

func (r *fakeReceiver) Notify(payload string, backendPID int) error {
	r.payloads = append(r.payloads, payload)
	r.pids = append(r.pids, backendPID)
	return r.err
}

type fakeTxn struct {
	desc string
	vars map[string]string
}

func (t *fakeTxn) Description() string { return t.desc }

func (t *fakeTxn) SetVariable(name, value string) error {
	if t.vars == nil {
		t.vars = make(map[string]string)
	}
	t.vars[name] = value
	return nil
}

func (t *fakeTxn) GetVariable(name string) (string, error) {
	return t.vars[name], nil
}
