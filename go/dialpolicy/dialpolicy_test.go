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

package dialpolicy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqlink/pqlink/go/pqwire"
	"github.com/pqlink/pqlink/go/session"
)

// stubClient stands in for an established handle in policy tests.
type stubClient struct {
	session.Client
}

// unreachableConfig points at a port nothing listens on, so dials fail
// fast with connection refused.
func unreachableConfig() *pqwire.Config {
	return &pqwire.Config{
		Host:        "127.0.0.1",
		Port:        1,
		User:        "test",
		DialTimeout: 100 * time.Millisecond,
	}
}

func fastRetry() Option {
	return WithRetryDelays(time.Microsecond, time.Millisecond)
}

func TestDirectKeepsExistingHandle(t *testing.T) {
	p := NewDirect(unreachableConfig())
	existing := &stubClient{}

	h, err := p.StartConnect(existing)
	require.NoError(t, err)
	assert.Same(t, existing, h, "an existing handle must not be re-dialed")

	h, err = p.CompleteConnect(existing)
	require.NoError(t, err)
	assert.Same(t, existing, h)

	assert.True(t, p.IsReady(existing))
	assert.False(t, p.IsReady(nil))
}

func TestDirectDialFailure(t *testing.T) {
	p := NewDirect(unreachableConfig(), WithDialAttempts(2), fastRetry())

	h, err := p.StartConnect(nil)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestDirectCompleteWithoutHandle(t *testing.T) {
	p := NewDirect(unreachableConfig())
	_, err := p.CompleteConnect(nil)
	assert.Error(t, err)
}

func TestLazyDefersDial(t *testing.T) {
	p := NewLazy(unreachableConfig(), WithDialAttempts(1), fastRetry())

	// StartConnect must not touch the network.
	h, err := p.StartConnect(nil)
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.False(t, p.IsReady(h))

	// The dial happens (and here fails) in CompleteConnect.
	_, err = p.CompleteConnect(nil)
	assert.Error(t, err)
}

func TestLazyKeepsExistingHandle(t *testing.T) {
	p := NewLazy(unreachableConfig())
	existing := &stubClient{}

	h, err := p.CompleteConnect(existing)
	require.NoError(t, err)
	assert.Same(t, existing, h)
	assert.True(t, p.IsReady(existing))
}

func TestNullPolicyRefusesEverything(t *testing.T) {
	p := NewNull()

	h, err := p.StartConnect(nil)
	assert.Error(t, err)
	assert.Nil(t, h)

	_, err = p.CompleteConnect(nil)
	assert.Error(t, err)

	assert.Nil(t, p.DropConnect(&stubClient{}))
	assert.Nil(t, p.Disconnect(&stubClient{}))
	assert.False(t, p.IsReady(&stubClient{}))
}

func TestDisconnectReturnsNilHandle(t *testing.T) {
	p := NewDirect(unreachableConfig())
	assert.Nil(t, p.Disconnect(&stubClient{}))
	assert.Nil(t, p.Disconnect(nil))
}

func TestWrapResultNilStaysNil(t *testing.T) {
	var r *pqwire.Result
	wrapped := wrapResult(r)
	assert.Nil(t, wrapped, "a typed nil must not leak through the interface")

	got := wrapResult(&pqwire.Result{Status: pqwire.StatusCommandOK})
	require.NotNil(t, got)
	assert.True(t, got.OK())
}

func TestWireParams(t *testing.T) {
	assert.Nil(t, wireParams(nil))

	in := []session.Param{
		{Value: []byte("7")},
		{Value: nil},
		{Value: []byte{0x01}, Binary: true},
	}
	out := wireParams(in)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("7"), out[0].Value)
	assert.Nil(t, out[1].Value)
	assert.True(t, out[2].Binary)
}
