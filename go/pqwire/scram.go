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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// scramSHA256Mechanism is the SASL mechanism name for SCRAM-SHA-256.
	scramSHA256Mechanism = "SCRAM-SHA-256"

	// scramNonceLength is the length of the client nonce in bytes.
	scramNonceLength = 24
)

// scramClient runs the SCRAM-SHA-256 authentication exchange.
type scramClient struct {
	conn     *Conn
	username string
	password string

	clientNonce            string
	clientFirstMessageBare string
	serverFirstMessage     string
	saltedPassword         []byte
}

func newScramClient(conn *Conn, username, password string) *scramClient {
	return &scramClient{
		conn:     conn,
		username: username,
		password: password,
	}
}

// authenticate performs the four-step SCRAM exchange.
func (s *scramClient) authenticate() error {
	if err := s.sendClientFirst(); err != nil {
		return fmt.Errorf("SCRAM client-first failed: %w", err)
	}
	if err := s.receiveServerFirst(); err != nil {
		return fmt.Errorf("SCRAM server-first failed: %w", err)
	}
	if err := s.sendClientFinal(); err != nil {
		return fmt.Errorf("SCRAM client-final failed: %w", err)
	}
	if err := s.receiveServerFinal(); err != nil {
		return fmt.Errorf("SCRAM server-final failed: %w", err)
	}
	return nil
}

// sendClientFirst sends the SASLInitialResponse with the client-first
// message.
func (s *scramClient) sendClientFirst() error {
	nonceBytes := make([]byte, scramNonceLength)
	if _, err := rand.Read(nonceBytes); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	s.clientNonce = base64.StdEncoding.EncodeToString(nonceBytes)

	// client-first-message-bare: n=<username>,r=<nonce>, with '=' and
	// ',' escaped in the username.
	escapedUsername := strings.ReplaceAll(s.username, "=", "=3D")
	escapedUsername = strings.ReplaceAll(escapedUsername, ",", "=2C")
	s.clientFirstMessageBare = fmt.Sprintf("n=%s,r=%s", escapedUsername, s.clientNonce)

	// The "n,," prefix declares no channel binding.
	clientFirstMessage := "n,," + s.clientFirstMessageBare

	w := newMessageWriter()
	w.writeString(scramSHA256Mechanism)
	w.writeInt32(int32(len(clientFirstMessage)))
	w.writeBytes([]byte(clientFirstMessage))

	if err := s.conn.writeMessage(msgPasswordMsg, w.bytes()); err != nil {
		return err
	}
	return s.conn.flush()
}

// receiveServerFirst reads the AuthenticationSASLContinue message.
func (s *scramClient) receiveServerFirst() error {
	body, err := s.readAuthMessage(authSASLContinue)
	if err != nil {
		return err
	}
	s.serverFirstMessage = string(body)
	return nil
}

// sendClientFinal computes the proof and sends the client-final message.
func (s *scramClient) sendClientFinal() error {
	// server-first-message: r=<nonce>,s=<salt>,i=<iterations>
	var serverNonce, saltB64 string
	var iterations int
	for part := range strings.SplitSeq(s.serverFirstMessage, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			serverNonce = part[2:]
		case strings.HasPrefix(part, "s="):
			saltB64 = part[2:]
		case strings.HasPrefix(part, "i="):
			var err error
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return fmt.Errorf("invalid iteration count: %w", err)
			}
		}
	}

	if !strings.HasPrefix(serverNonce, s.clientNonce) {
		return fmt.Errorf("server nonce doesn't start with client nonce")
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return fmt.Errorf("decoding salt: %w", err)
	}

	s.saltedPassword = pbkdf2.Key([]byte(s.password), salt, iterations, sha256.Size, sha256.New)
	clientKey := hmacSHA256(s.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	clientFinalWithoutProof := fmt.Sprintf("c=%s,r=%s", gs2HeaderB64(), serverNonce)
	authMessage := s.authMessage(clientFinalWithoutProof)
	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	clientFinalMessage := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	w := newMessageWriter()
	w.writeBytes([]byte(clientFinalMessage))
	if err := s.conn.writeMessage(msgPasswordMsg, w.bytes()); err != nil {
		return err
	}
	return s.conn.flush()
}

// receiveServerFinal verifies the server's signature.
func (s *scramClient) receiveServerFinal() error {
	body, err := s.readAuthMessage(authSASLFinal)
	if err != nil {
		return err
	}
	serverFinalMessage := string(body)

	if !strings.HasPrefix(serverFinalMessage, "v=") {
		return fmt.Errorf("invalid server-final-message format")
	}
	serverSignature, err := base64.StdEncoding.DecodeString(serverFinalMessage[2:])
	if err != nil {
		return fmt.Errorf("decoding server signature: %w", err)
	}

	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))

	var serverNonce string
	for part := range strings.SplitSeq(s.serverFirstMessage, ",") {
		if strings.HasPrefix(part, "r=") {
			serverNonce = part[2:]
			break
		}
	}
	clientFinalWithoutProof := fmt.Sprintf("c=%s,r=%s", gs2HeaderB64(), serverNonce)
	expected := hmacSHA256(serverKey, []byte(s.authMessage(clientFinalWithoutProof)))

	if !hmac.Equal(serverSignature, expected) {
		return fmt.Errorf("server signature verification failed")
	}
	return nil
}

// readAuthMessage reads an AuthenticationRequest of the expected SASL
// subtype and returns its payload.
func (s *scramClient) readAuthMessage(wantType int32) ([]byte, error) {
	msgType, body, err := s.conn.readMessage()
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	if msgType == msgErrorResponse {
		return nil, &Error{Diagnostic: parseDiagnostic(body)}
	}
	if msgType != msgAuthRequest {
		return nil, fmt.Errorf("expected AuthenticationRequest, got %c", msgType)
	}

	reader := newMessageReader(body)
	authType, err := reader.readInt32()
	if err != nil {
		return nil, fmt.Errorf("reading auth type: %w", err)
	}
	if authType != wantType {
		return nil, fmt.Errorf("expected SASL auth type %d, got %d", wantType, authType)
	}
	return reader.readBytes(reader.remaining())
}

func (s *scramClient) authMessage(clientFinalWithoutProof string) string {
	return s.clientFirstMessageBare + "," + s.serverFirstMessage + "," + clientFinalWithoutProof
}

// gs2HeaderB64 is base64("n,,"), the channel-binding attribute for a
// client that does not use channel binding.
func gs2HeaderB64() string {
	return base64.StdEncoding.EncodeToString([]byte("n,,"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func xorBytes(a, b []byte) []byte {
	result := make([]byte, len(a))
	for i := range a {
		result[i] = a[i] ^ b[i]
	}
	return result
}
