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
	"context"
	"crypto/md5" //nolint:gosec // MD5 is required by PostgreSQL's legacy authentication protocol
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"slices"
)

// startup performs the connection handshake: SSL negotiation if
// configured, the startup message, authentication, and the initial
// parameter exchange up to ReadyForQuery.
func (c *Conn) startup(ctx context.Context) error {
	if c.config.TLSConfig != nil {
		if err := c.negotiateSSL(); err != nil {
			return fmt.Errorf("SSL negotiation failed: %w", err)
		}
	}

	if err := c.sendStartupMessage(); err != nil {
		return fmt.Errorf("sending startup message: %w", err)
	}

	return c.processStartupResponses(ctx)
}

// negotiateSSL requests SSL from the server and upgrades the link.
func (c *Conn) negotiateSSL() error {
	// SSLRequest is lengths-only: no message type byte.
	if err := c.writeUint32(8); err != nil {
		return err
	}
	if err := c.writeUint32(sslRequestCode); err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}

	// The response is a single byte, 'S' or 'N'.
	response, err := c.reader.ReadByte()
	if err != nil {
		return fmt.Errorf("reading SSL response: %w", err)
	}
	switch response {
	case 'S':
	case 'N':
		return fmt.Errorf("server does not support SSL")
	default:
		return fmt.Errorf("unexpected SSL response: %c", response)
	}

	tlsConn := tls.Client(c.netConn, c.config.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake: %w", err)
	}
	c.netConn = tlsConn
	c.reader = bufio.NewReaderSize(tlsConn, connBufferSize)
	c.writer = bufio.NewWriterSize(tlsConn, connBufferSize)
	return nil
}

// sendStartupMessage sends the startup packet. It has no message type
// byte, just length and body.
func (c *Conn) sendStartupMessage() error {
	w := newMessageWriter()
	w.writeUint32(protocolVersionNumber)

	w.writeString("user")
	w.writeString(c.config.User)
	if c.config.Database != "" {
		w.writeString("database")
		w.writeString(c.config.Database)
	}
	for key, value := range c.config.Parameters {
		w.writeString(key)
		w.writeString(value)
	}
	w.writeByte(0)

	body := w.bytes()
	if err := c.writeUint32(uint32(4 + len(body))); err != nil {
		return err
	}
	if _, err := c.writer.Write(body); err != nil {
		return err
	}
	return c.flush()
}

// processStartupResponses handles all messages until ReadyForQuery.
func (c *Conn) processStartupResponses(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgType, body, err := c.readMessage()
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}

		switch msgType {
		case msgAuthRequest:
			if err := c.handleAuthRequest(body); err != nil {
				return err
			}

		case msgBackendKeyData:
			if err := c.handleBackendKeyData(body); err != nil {
				return err
			}

		case msgParameterStatus:
			c.handleParameterStatus(body)

		case msgReadyForQuery:
			if len(body) < 1 {
				return fmt.Errorf("ready for query message too short")
			}
			c.txnStatus = body[0]
			return nil

		case msgErrorResponse:
			return &Error{Diagnostic: parseDiagnostic(body)}

		case msgNoticeResponse:
			c.handleNotice(body)

		default:
			return fmt.Errorf("unexpected message type during startup: %c (0x%02x)", msgType, msgType)
		}
	}
}

// handleAuthRequest answers one AuthenticationRequest message.
func (c *Conn) handleAuthRequest(body []byte) error {
	if len(body) < 4 {
		return fmt.Errorf("authentication message too short")
	}

	reader := newMessageReader(body)
	authType, err := reader.readInt32()
	if err != nil {
		return fmt.Errorf("reading auth type: %w", err)
	}

	switch authType {
	case authOK:
		return nil

	case authCleartextPassword:
		return c.sendPasswordMessage(c.config.Password)

	case authMD5Password:
		salt, err := reader.readBytes(4)
		if err != nil {
			return fmt.Errorf("reading MD5 salt: %w", err)
		}
		return c.sendMD5PasswordMessage(c.config.Password, salt)

	case authSASL:
		var mechanisms []string
		for reader.remaining() > 0 {
			mech, err := reader.readString()
			if err != nil {
				return fmt.Errorf("reading SASL mechanism: %w", err)
			}
			if mech == "" {
				break
			}
			mechanisms = append(mechanisms, mech)
		}
		if !slices.Contains(mechanisms, scramSHA256Mechanism) {
			return fmt.Errorf("server does not support %s (available: %v)", scramSHA256Mechanism, mechanisms)
		}
		scram := newScramClient(c, c.config.User, c.config.Password)
		return scram.authenticate()

	default:
		return fmt.Errorf("unsupported authentication method: %d", authType)
	}
}

// sendPasswordMessage sends a cleartext password message.
func (c *Conn) sendPasswordMessage(password string) error {
	w := newMessageWriter()
	w.writeString(password)
	if err := c.writeMessage(msgPasswordMsg, w.bytes()); err != nil {
		return err
	}
	return c.flush()
}

// sendMD5PasswordMessage answers MD5 authentication:
// "md5" + md5(md5(password + user) + salt).
func (c *Conn) sendMD5PasswordMessage(password string, salt []byte) error {
	h1 := md5.New() //nolint:gosec // Required by PostgreSQL protocol
	h1.Write([]byte(password))
	h1.Write([]byte(c.config.User))
	hash1 := hex.EncodeToString(h1.Sum(nil))

	h2 := md5.New() //nolint:gosec // Required by PostgreSQL protocol
	h2.Write([]byte(hash1))
	h2.Write(salt)
	hash2 := hex.EncodeToString(h2.Sum(nil))

	return c.sendPasswordMessage("md5" + hash2)
}

// handleBackendKeyData records the cancellation key pair.
func (c *Conn) handleBackendKeyData(body []byte) error {
	if len(body) < 8 {
		return fmt.Errorf("backend key data message too short")
	}
	reader := newMessageReader(body)
	processID, err := reader.readUint32()
	if err != nil {
		return err
	}
	secretKey, err := reader.readUint32()
	if err != nil {
		return err
	}
	c.processID = processID
	c.secretKey = secretKey
	return nil
}
