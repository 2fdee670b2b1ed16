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
	"encoding/hex"
	"fmt"
	"strings"
)

// Escaping is connection-scoped: the rules depend on the
// standard_conforming_strings setting the server reported for this
// session.

// stdStrings reports whether the session treats backslashes in string
// literals literally.
func (c *Conn) stdStrings() bool {
	return c.serverParams["standard_conforming_strings"] == "on"
}

// EscapeString escapes s for interpolation into a quoted SQL literal.
// The surrounding quotes are not included. Embedded NUL bytes are
// rejected, since the server would silently truncate at them.
func (c *Conn) EscapeString(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("string contains a NUL byte")
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\'' || (ch == '\\' && !c.stdStrings()) {
			b.WriteByte(ch)
		}
		b.WriteByte(ch)
	}
	return b.String(), nil
}

// EscapeIdentifier quotes an SQL identifier such as a table or column
// name, including the surrounding double quotes.
func (c *Conn) EscapeIdentifier(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", fmt.Errorf("identifier contains a NUL byte")
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			b.WriteByte('"')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String(), nil
}

// EscapeBytea encodes arbitrary bytes in bytea hex format. When the
// session does not use standard conforming strings, the leading
// backslash is doubled so the value survives literal parsing.
func (c *Conn) EscapeBytea(data []byte) string {
	prefix := `\x`
	if !c.stdStrings() {
		prefix = `\\x`
	}
	return prefix + hex.EncodeToString(data)
}

// UnescapeBytea decodes bytea text output in either the hex format
// (PostgreSQL 9.0+) or the legacy octal escape format.
func (c *Conn) UnescapeBytea(s string) ([]byte, error) {
	if strings.HasPrefix(s, `\x`) {
		return hex.DecodeString(s[2:])
	}
	return unescapeByteaOctal(s)
}

func unescapeByteaOctal(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			out = append(out, s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '\\' {
			out = append(out, '\\')
			i += 2
			continue
		}
		if i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			v := (s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0')
			out = append(out, v)
			i += 4
			continue
		}
		return nil, fmt.Errorf("invalid bytea escape sequence at offset %d", i)
	}
	return out, nil
}

func isOctal(b byte) bool {
	return b >= '0' && b <= '7'
}
