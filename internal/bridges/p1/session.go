package p1

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame header layout.
const (
	// frameLengthSize is the little-endian payload length prefix.
	frameLengthSize = 4

	// frameMetadataSize is the block following the length that is read and discarded.
	frameMetadataSize = 12

	// frameHeaderSize is the total header preceding each payload.
	frameHeaderSize = frameLengthSize + frameMetadataSize
)

// Session is an authenticated device stream delivering framed images.
//
// A Session is not safe for concurrent use; it is owned by one Worker.
type Session struct {
	conn   io.ReadWriteCloser
	header [frameHeaderSize]byte
}

// ReadFrame reads the next image from the stream.
//
// Wire format of one unit:
//
//	[4 bytes LE length n][12 bytes metadata][n bytes payload]
//
// Any short read fails the whole call and the session must be treated as
// dead. The declared length is not bounded; a device announcing a huge frame
// causes a matching allocation.
//
// Returns:
//   - []byte: The payload, exactly n bytes
//   - error: Wrapping ErrFrameTruncated on EOF, timeout or reset
func (s *Session) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(s.conn, s.header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrFrameTruncated, err)
	}

	size := binary.LittleEndian.Uint32(s.header[:frameLengthSize])

	frame := make([]byte, size)
	if _, err := io.ReadFull(s.conn, frame); err != nil {
		return nil, fmt.Errorf("%w: reading %d byte payload: %w", ErrFrameTruncated, size, err)
	}

	return frame, nil
}

// Close closes the underlying stream.
func (s *Session) Close() error {
	return s.conn.Close()
}

// EncodeFrame produces the wire form of payload with a zeroed metadata block.
// Device simulators and tests use it to feed sessions.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:frameLengthSize], uint32(len(payload))) //nolint:gosec // Payloads are far below 4 GiB
	copy(buf[frameHeaderSize:], payload)
	return buf
}
