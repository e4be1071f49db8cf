package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"type":"Ping","db":"galaxy.db"}`)

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrame_CleanEOFAtBoundary(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_EOFMidLengthPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x01, 0x02}))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestReadFrame_EOFMidPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello world")))
	truncated := buf.Bytes()[:buf.Len()-4]

	_, err := ReadFrame(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))
	raw := buf.Bytes()
	// Overwrite the length prefix with MaxMessageSize+1.
	oversized := uint32(MaxMessageSize + 1)
	raw[0] = byte(oversized)
	raw[1] = byte(oversized >> 8)
	raw[2] = byte(oversized >> 16)
	raw[3] = byte(oversized >> 24)

	_, err := ReadFrame(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestFrame_BoundaryAtExactlyMaxMessageSize(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxMessageSize)
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Len(t, got, MaxMessageSize)
}

func TestWriteFrame_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxMessageSize+1))
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Zero(t, buf.Len(), "nothing should be written for an oversized payload")
}
