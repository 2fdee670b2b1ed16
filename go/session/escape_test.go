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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqlink/pqlink/go/pqerrors"
)

func TestEsc(t *testing.T) {
	c, _, _ := openConn(t)
	out, err := c.Esc("it's")
	require.NoError(t, err)
	assert.Equal(t, "it''s", out)
}

func TestEscActivatesClosedConnection(t *testing.T) {
	c := New(&fakePolicy{client: newFakeClient()})
	require.False(t, c.IsOpen())

	// Escaping rules are connection-scoped, so escaping connects.
	_, err := c.Esc("x")
	require.NoError(t, err)
	assert.True(t, c.IsOpen())
}

func TestEscWhileInhibitedFails(t *testing.T) {
	c := New(&fakePolicy{client: newFakeClient()})
	c.InhibitReactivation(true)

	_, err := c.Esc("x")
	require.Error(t, err)
	assert.True(t, pqerrors.IsBroken(err))
}

func TestQuote(t *testing.T) {
	c, _, _ := openConn(t)
	out, err := c.Quote("o'clock")
	require.NoError(t, err)
	assert.Equal(t, "'o''clock'", out)
}

func TestEscRawRoundTrip(t *testing.T) {
	c, _, _ := openConn(t)
	in := []byte{0x00, 0xff, 'a'}

	escaped, err := c.EscRaw(in)
	require.NoError(t, err)
	out, err := c.UnescRaw(escaped)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestQuoteRaw(t *testing.T) {
	c, _, _ := openConn(t)
	out, err := c.QuoteRaw([]byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "'\\xdead'::bytea", out)
}

func TestQuoteName(t *testing.T) {
	c, _, _ := openConn(t)
	out, err := c.QuoteName("weird \"table\"")
	require.NoError(t, err)
	assert.Equal(t, "\"weird \"\"table\"\"\"", out)
}

func TestQuoteNameActivates(t *testing.T) {
	c := New(&fakePolicy{client: newFakeClient()})
	_, err := c.QuoteName("t")
	require.NoError(t, err)
	assert.True(t, c.IsOpen())
}
