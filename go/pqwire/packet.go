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
	"encoding/binary"
	"fmt"
	"io"
)

// readMessage reads one complete backend message: type byte, length,
// body. The length on the wire includes itself but not the type byte.
func (c *Conn) readMessage() (byte, []byte, error) {
	msgType, err := c.reader.ReadByte()
	if err != nil {
		return 0, nil, err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.reader, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return 0, nil, fmt.Errorf("invalid message length: %d", length)
	}

	var body []byte
	if bodyLen := int(length - 4); bodyLen > 0 {
		body = make([]byte, bodyLen)
		if _, err := io.ReadFull(c.reader, body); err != nil {
			return 0, nil, err
		}
	}

	if c.trace != nil {
		fmt.Fprintf(c.trace, "<- %c %d\n", msgType, len(body))
	}
	return msgType, body, nil
}

// writeMessage buffers one frontend message. Call flush to send.
func (c *Conn) writeMessage(msgType byte, body []byte) error {
	if err := c.writer.WriteByte(msgType); err != nil {
		return err
	}
	if err := c.writeUint32(uint32(4 + len(body))); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := c.writer.Write(body); err != nil {
			return err
		}
	}
	if c.trace != nil {
		fmt.Fprintf(c.trace, "-> %c %d\n", msgType, len(body))
	}
	return nil
}

func (c *Conn) writeUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := c.writer.Write(buf[:])
	return err
}

func (c *Conn) flush() error {
	return c.writer.Flush()
}

// messageReader walks the fields of one message body.
type messageReader struct {
	buf []byte
	pos int
}

func newMessageReader(buf []byte) *messageReader {
	return &messageReader{buf: buf}
}

func (r *messageReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *messageReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *messageReader) readUint16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, io.EOF
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *messageReader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.EOF
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *messageReader) readInt16() (int16, error) {
	v, err := r.readUint16()
	return int16(v), err
}

func (r *messageReader) readInt32() (int32, error) {
	v, err := r.readUint32()
	return int32(v), err
}

// readString reads a null-terminated string.
func (r *messageReader) readString() (string, error) {
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", io.EOF
}

func (r *messageReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, io.EOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// readByteString reads a 4-byte length followed by that many bytes.
// A length of -1 denotes NULL and yields nil.
func (r *messageReader) readByteString() ([]byte, error) {
	length, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid byte string length: %d", length)
	}
	return r.readBytes(int(length))
}

// messageWriter accumulates one message body.
type messageWriter struct {
	buf []byte
}

func newMessageWriter() *messageWriter {
	return &messageWriter{buf: make([]byte, 0, 128)}
}

func (w *messageWriter) bytes() []byte {
	return w.buf
}

func (w *messageWriter) writeByte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *messageWriter) writeBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *messageWriter) writeUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

func (w *messageWriter) writeUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

func (w *messageWriter) writeInt16(v int16) {
	w.writeUint16(uint16(v))
}

func (w *messageWriter) writeInt32(v int32) {
	w.writeUint32(uint32(v))
}

// writeString writes a null-terminated string.
func (w *messageWriter) writeString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// writeByteString writes a 4-byte length followed by the bytes; nil is
// written as -1 (NULL).
func (w *messageWriter) writeByteString(b []byte) {
	if b == nil {
		w.writeInt32(-1)
		return
	}
	w.writeInt32(int32(len(b)))
	w.writeBytes(b)
}
