// Package wire implements the length-prefixed framing codec used on the
// daemon's local-socket transport: a little-endian uint32 byte count
// followed by that many bytes of UTF-8 JSON payload.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the largest frame (length prefix value) this codec will
// accept or emit. Larger frames are a protocol fault, not a request error.
const MaxMessageSize = 10 * 1024 * 1024 // 10 MiB

// ErrMessageTooLarge is returned by ReadFrame when the length prefix exceeds
// MaxMessageSize. The caller must close the connection without replying.
var ErrMessageTooLarge = errors.New("wire: message exceeds maximum size")

// ErrShortFrame is returned by ReadFrame when the stream ends after the
// length prefix but before the full payload has been read ("EOF mid-frame").
var ErrShortFrame = errors.New("wire: connection closed mid-frame")

// ReadFrame reads one length-prefixed frame from r. A clean EOF before any
// byte of the length prefix has been read returns io.EOF unchanged — that is
// normal disconnection. An EOF after at least one byte of the prefix or
// payload has been read returns ErrShortFrame. A length prefix greater than
// MaxMessageSize returns ErrMessageTooLarge without reading the payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}

	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w. If payload
// exceeds MaxMessageSize it returns ErrMessageTooLarge without writing
// anything; the caller must drop the connection rather than reply.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	bw, ok := w.(*bufio.Writer)
	if ok {
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("wire: write length prefix: %w", err)
		}
		if _, err := bw.Write(payload); err != nil {
			return fmt.Errorf("wire: write payload: %w", err)
		}
		return bw.Flush()
	}

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}
