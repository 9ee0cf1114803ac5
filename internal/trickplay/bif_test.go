package trickplay

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexalabs/nexa/internal/errs"
)

func TestBIFRoundTrip(t *testing.T) {
	frames := []Frame{
		{TimestampMs: 0, JPEG: []byte{0xff, 0xd8, 0x01}},
		{TimestampMs: 2000, JPEG: []byte{0xff, 0xd8, 0x02, 0x02}},
		{TimestampMs: 4000, JPEG: []byte{0xff, 0xd8}},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, frames))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, len(frames))
	for i := range frames {
		assert.Equal(t, frames[i].TimestampMs, decoded[i].TimestampMs)
		assert.Equal(t, frames[i].JPEG, decoded[i].JPEG)
	}
}

func TestBIFEncodeRejectsUnorderedTimestamps(t *testing.T) {
	frames := []Frame{
		{TimestampMs: 2000, JPEG: []byte{1}},
		{TimestampMs: 1000, JPEG: []byte{2}},
	}
	var buf bytes.Buffer
	err := Encode(&buf, frames)
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	// Equal timestamps are rejected too.
	err = Encode(&buf, []Frame{
		{TimestampMs: 1000, JPEG: []byte{1}},
		{TimestampMs: 1000, JPEG: []byte{2}},
	})
	require.Error(t, err)
}

func TestBIFDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a bif file at all")))
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = Decode(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestBIFDecodeRejectsOversizedFrameCount(t *testing.T) {
	// A bare header claiming the maximum frame count must fail the index
	// length check instead of allocating a frame slice for it.
	header := make([]byte, bifHeaderSize)
	copy(header, bifMagic)
	binary.LittleEndian.PutUint32(header[8:], bifVersion)
	binary.LittleEndian.PutUint32(header[12:], 0xffffffff)
	binary.LittleEndian.PutUint32(header[16:], timestampMulMs)

	_, err := Decode(bytes.NewReader(header))
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
	assert.Contains(t, err.Error(), "truncated BIF index")
}

func TestBIFEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
