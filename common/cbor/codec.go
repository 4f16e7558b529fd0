package cbor

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// Maximum message size.
	maxMessageSize = 104857600 // 100 MiB

	// Size of the message length header in bytes.
	messageHeaderSize = 4
)

var (
	errMessageTooLarge  = errors.New("codec: message too large")
	errMessageMalformed = errors.New("codec: message is malformed")
)

// MessageReader reads length-prefixed CBOR message frames.
type MessageReader struct {
	reader io.Reader
}

// Read deserializes a single CBOR-serialized message from the underlying
// stream.  A clean end of stream surfaces as io.EOF.
func (c *MessageReader) Read(msg interface{}) error {
	// Read the length header.
	header := make([]byte, messageHeaderSize)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxMessageSize {
		return errMessageTooLarge
	}

	// Read and decode the message payload.
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return errMessageMalformed
	}
	if err := Unmarshal(payload, msg); err != nil {
		return errMessageMalformed
	}

	return nil
}

// NewMessageReader creates a message reader over the given stream.
func NewMessageReader(r io.Reader) *MessageReader {
	return &MessageReader{reader: r}
}

// MessageWriter writes length-prefixed CBOR message frames.
type MessageWriter struct {
	writer io.Writer
}

// Write serializes a single message into CBOR and writes it to the
// underlying stream.
func (c *MessageWriter) Write(msg interface{}) error {
	data := Marshal(msg)
	if len(data) > maxMessageSize {
		return errMessageTooLarge
	}

	frame := make([]byte, messageHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame[:messageHeaderSize], uint32(len(data)))
	copy(frame[messageHeaderSize:], data)
	if _, err := c.writer.Write(frame); err != nil {
		return err
	}

	return nil
}

// NewMessageWriter creates a message writer over the given stream.
func NewMessageWriter(w io.Writer) *MessageWriter {
	return &MessageWriter{writer: w}
}
