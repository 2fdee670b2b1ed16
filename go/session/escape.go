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

// Escaping requires a live handle because the encoding rules are
// connection-scoped. Each method activates the connection as a side
// effect when it is not already open; callers must not assume these
// functions are connection-neutral.

// Esc escapes a string for inclusion in a quoted SQL literal. Activates
// the connection if no handle exists.
func (c *Conn) Esc(s string) (string, error) {
	if c.client == nil {
		if err := c.Activate(); err != nil {
			return "", err
		}
		if c.client == nil {
			return "", errBroken(c.errMsg())
		}
	}
	escaped, err := c.client.EscapeString(s)
	if err != nil {
		return "", errArgument(err.Error())
	}
	return escaped, nil
}

// EscRaw encodes arbitrary bytes in bytea escape format. Activates the
// connection as a side effect.
func (c *Conn) EscRaw(b []byte) (string, error) {
	if err := c.Activate(); err != nil {
		return "", err
	}
	if c.client == nil {
		return "", errBroken(c.errMsg())
	}
	return c.client.EscapeBytea(b), nil
}

// UnescRaw reverses EscRaw (or server-side bytea output).
func (c *Conn) UnescRaw(text string) ([]byte, error) {
	if c.client == nil {
		if err := c.Activate(); err != nil {
			return nil, err
		}
		if c.client == nil {
			return nil, errBroken(c.errMsg())
		}
	}
	b, err := c.client.UnescapeBytea(text)
	if err != nil {
		return nil, errArgument(err.Error())
	}
	return b, nil
}

// QuoteRaw returns a complete bytea literal for the given bytes,
// including quotes and cast.
func (c *Conn) QuoteRaw(b []byte) (string, error) {
	escaped, err := c.EscRaw(b)
	if err != nil {
		return "", err
	}
	return "'" + escaped + "'::bytea", nil
}

// Quote returns a complete quoted literal for the given string.
func (c *Conn) Quote(s string) (string, error) {
	escaped, err := c.Esc(s)
	if err != nil {
		return "", err
	}
	return "'" + escaped + "'", nil
}

// QuoteName quotes an SQL identifier such as a table or column name.
// Activates the connection as a side effect.
func (c *Conn) QuoteName(identifier string) (string, error) {
	if err := c.Activate(); err != nil {
		return "", err
	}
	if c.client == nil {
		return "", errBroken(c.errMsg())
	}
	quoted, err := c.client.EscapeIdentifier(identifier)
	if err != nil {
		return "", errDatabase(c.errMsg())
	}
	return quoted, nil
}
