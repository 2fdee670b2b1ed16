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

// Prepare records a statement definition under the given name. The
// statement is not sent to the server until first execution (or
// PrepareNow).
//
// The empty name denotes the anonymous statement, which may be redefined
// freely; redefining a named statement with different text is an error,
// since named statements are assumed immutable once declared.
func (c *Conn) Prepare(name, definition string) error {
	p, ok := c.prepared[name]
	if ok {
		if definition != p.definition {
			if name != "" {
				return errUsage("inconsistent redefinition of prepared statement " + name)
			}
			p.registered = false
			p.definition = definition
		}
		return nil
	}
	c.prepared[name] = &preparedDef{definition: definition}
	return nil
}

// PrepareAnonymous records the anonymous statement's definition.
func (c *Conn) PrepareAnonymous(definition string) error {
	return c.Prepare("", definition)
}

// Unprepare removes a statement from the registry, deallocating it
// server-side (through a protocol-level Close) if it was registered with
// the current connection. Unknown names are ignored silently.
func (c *Conn) Unprepare(name string) error {
	p, ok := c.prepared[name]
	if !ok {
		return nil
	}
	if p.registered {
		r := Result{Query: "[DEALLOCATE " + name + "]"}
		if c.client != nil {
			r = c.makeResult(c.client.CloseStatement(name), r.Query)
		}
		if err := c.checkResult(r); err != nil {
			return err
		}
	}
	delete(c.prepared, name)
	return nil
}

// PreparedExists reports whether a statement definition is on record.
func (c *Conn) PreparedExists(name string) bool {
	_, ok := c.prepared[name]
	return ok
}

// PrepareNow forces registration of a statement with the backend instead
// of waiting for first execution.
func (c *Conn) PrepareNow(name string) error {
	_, err := c.registerPrepared(name)
	return err
}

// registerPrepared defines the statement with the backend on demand.
// Anonymous statements are never marked registered, since they do not
// persist a server-side name.
func (c *Conn) registerPrepared(name string) (*preparedDef, error) {
	if err := c.Activate(); err != nil {
		return nil, err
	}
	p, ok := c.prepared[name]
	if !ok {
		return nil, errArgument("unknown prepared statement '" + name + "'")
	}
	if p.registered {
		return p, nil
	}

	r := Result{Query: "[PREPARE " + name + "]"}
	if c.client != nil {
		r = c.makeResult(c.client.Prepare(name, p.definition), r.Query)
	}
	if err := c.checkResult(r); err != nil {
		return nil, err
	}
	p.registered = name != ""
	return p, nil
}
