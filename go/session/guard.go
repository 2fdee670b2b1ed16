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

// AddAvoidanceCount adjusts the reactivation-avoidance counter by n.
// Objects holding server-side state that cannot be replayed (open
// cursors, for example) increment it on creation and decrement it on
// destruction. While the counter is nonzero the connection is never
// silently deactivated or reactivated.
func (c *Conn) AddAvoidanceCount(n int) {
	c.avoidance += n
	if c.avoidance < 0 {
		c.avoidance = 0
	}
}

// AvoidanceCount returns the current counter value.
func (c *Conn) AvoidanceCount() int {
	return c.avoidance
}

// Exemption temporarily lifts reactivation avoidance. Obtain one with
// BeginExemption and release it with End on every exit path.
type Exemption struct {
	conn    *Conn
	count   int
	wasOpen bool
	ended   bool
}

// BeginExemption snapshots and zeroes the avoidance counter, then
// activates the connection if it was not already open. The returned
// Exemption must be ended exactly once.
func (c *Conn) BeginExemption() (*Exemption, error) {
	e := &Exemption{
		conn:    c,
		count:   c.avoidance,
		wasOpen: c.IsOpen(),
	}
	c.avoidance = 0
	if !e.wasOpen {
		if err := c.Activate(); err != nil {
			c.avoidance = e.count
			return nil, err
		}
	}
	return e, nil
}

// End restores the avoidance counter and, if the connection was
// activated solely for this exemption's duration, deactivates it again.
// Idempotent.
func (e *Exemption) End() {
	if e.ended {
		return
	}
	e.ended = true
	if e.count > 0 && !e.wasOpen {
		// Don't leave the connection open when avoidance is back in
		// effect and the activation was exemption-only.
		if err := e.conn.Deactivate(); err != nil {
			e.conn.ProcessNotice(err.Error())
		}
	}
	e.conn.avoidance += e.count
}

// WithExemption runs fn under a scoped exemption, guaranteeing release
// on every exit path.
func (c *Conn) WithExemption(fn func() error) error {
	e, err := c.BeginExemption()
	if err != nil {
		return err
	}
	defer e.End()
	return fn()
}
