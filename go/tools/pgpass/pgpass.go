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

// Package pgpass reads PostgreSQL password files. Each line has the
// form hostname:port:database:username:password, where the first four
// fields may be the wildcard "*" and literal ':' or '\' characters are
// backslash-escaped.
package pgpass

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPath returns the password file libpq would consult: the
// PGPASSFILE environment variable if set, otherwise ~/.pgpass.
func DefaultPath() string {
	if p := os.Getenv("PGPASSFILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgpass")
}

// LookupPassword returns the password of the first entry matching the
// given connection parameters, or "" when the file is absent or nothing
// matches. A file with group or world access is ignored entirely, as
// the server tooling does.
func LookupPassword(fs afero.Fs, path, host string, port int, database, user string) (string, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("password file %s has group or world access (mode %04o); permissions must be 0600 or less",
			path, info.Mode().Perm())
	}

	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	portStr := strconv.Itoa(port)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields, ok := splitEntry(line)
		if !ok {
			continue // malformed lines are skipped, not fatal
		}

		if fieldMatches(fields[0], host) &&
			fieldMatches(fields[1], portStr) &&
			fieldMatches(fields[2], database) &&
			fieldMatches(fields[3], user) {
			return fields[4], nil
		}
	}
	return "", scanner.Err()
}

func fieldMatches(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

// splitEntry splits one line into its five colon-separated fields,
// honoring backslash escapes of ':' and '\'.
func splitEntry(line string) ([5]string, bool) {
	var fields [5]string
	field := 0
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if i+1 < len(line) {
				i++
				b.WriteByte(line[i])
			}
		case ':':
			if field >= 4 {
				// Colons in the password field are literal.
				b.WriteByte(':')
				continue
			}
			fields[field] = b.String()
			b.Reset()
			field++
		default:
			b.WriteByte(line[i])
		}
	}
	if field != 4 {
		return fields, false
	}
	fields[4] = b.String()
	return fields, true
}
