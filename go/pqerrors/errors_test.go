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

package pqerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"broken", New(Broken, "connection lost"), Broken},
		{"database", Errorf(Database, "server said: %s", "no"), Database},
		{"wrapped cause", fmt.Errorf("outer: %w", New(Usage, "bad call")), Usage},
		{"double wrap", Wrap(Internal, New(Broken, "inner")), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(Broken, nil))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(Database, cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "root cause", err.Error())
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsBroken(New(Broken, "x")))
	assert.True(t, IsDatabase(New(Database, "x")))
	assert.True(t, IsUsage(New(Usage, "x")))
	assert.True(t, IsArgument(New(Argument, "x")))
	assert.True(t, IsUnsupported(New(Unsupported, "x")))
	assert.True(t, IsInternal(New(Internal, "x")))
	assert.False(t, IsBroken(New(Database, "x")))
	assert.False(t, IsInternal(nil))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "BROKEN_CONNECTION", Broken.String())
	assert.Equal(t, "UNKNOWN", Unknown.String())
}
