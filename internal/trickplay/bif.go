// Package trickplay builds and reads BIF scrubbing-preview files: an indexed
// sequence of JPEG frames sampled at a fixed interval from a media part.
package trickplay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nexalabs/nexa/internal/errs"
)

// BIF container layout: magic, version, frame count, timestamp multiplier,
// reserved padding to byte 64, then an index of (timestamp, offset) pairs
// terminated by 0xffffffff, then the frame payloads.
var bifMagic = []byte{0x89, 0x42, 0x49, 0x46, 0x0d, 0x0a, 0x1a, 0x0a}

const (
	bifVersion     = 0
	bifHeaderSize  = 64
	bifIndexEntry  = 8
	bifEndOfIndex  = 0xffffffff
	timestampMulMs = 1 // timestamps stored in milliseconds
)

// Frame is one preview image and the playback position it represents.
type Frame struct {
	TimestampMs uint32
	JPEG        []byte
}

// Encode writes the frames as a BIF document. Frames must be in strictly
// increasing timestamp order.
func Encode(w io.Writer, frames []Frame) error {
	for i := 1; i < len(frames); i++ {
		if frames[i].TimestampMs <= frames[i-1].TimestampMs {
			return errs.Ef(errs.InvalidArgument,
				"frame timestamps must increase: frame %d at %dms after %dms",
				i, frames[i].TimestampMs, frames[i-1].TimestampMs)
		}
	}

	header := make([]byte, bifHeaderSize)
	copy(header, bifMagic)
	binary.LittleEndian.PutUint32(header[8:], bifVersion)
	binary.LittleEndian.PutUint32(header[12:], uint32(len(frames)))
	binary.LittleEndian.PutUint32(header[16:], timestampMulMs)
	if _, err := w.Write(header); err != nil {
		return err
	}

	// Index entries plus the end-of-index sentinel.
	indexSize := (len(frames) + 1) * bifIndexEntry
	index := make([]byte, indexSize)
	offset := uint32(bifHeaderSize + indexSize)
	for i, frame := range frames {
		binary.LittleEndian.PutUint32(index[i*bifIndexEntry:], frame.TimestampMs)
		binary.LittleEndian.PutUint32(index[i*bifIndexEntry+4:], offset)
		offset += uint32(len(frame.JPEG))
	}
	binary.LittleEndian.PutUint32(index[len(frames)*bifIndexEntry:], bifEndOfIndex)
	binary.LittleEndian.PutUint32(index[len(frames)*bifIndexEntry+4:], offset)
	if _, err := w.Write(index); err != nil {
		return err
	}

	for _, frame := range frames {
		if _, err := w.Write(frame.JPEG); err != nil {
			return err
		}
	}
	return nil
}

// Decode parses a BIF document back into its frames.
func Decode(r io.Reader) ([]Frame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < bifHeaderSize || !bytes.Equal(data[:len(bifMagic)], bifMagic) {
		return nil, errs.E(errs.InvalidArgument, "not a BIF document")
	}
	version := binary.LittleEndian.Uint32(data[8:])
	if version != bifVersion {
		return nil, errs.Ef(errs.InvalidArgument, "unsupported BIF version %d", version)
	}
	count := binary.LittleEndian.Uint32(data[12:])

	// 64-bit arithmetic so a huge count cannot wrap past the length check.
	indexEnd := int64(bifHeaderSize) + (int64(count)+1)*bifIndexEntry
	if int64(len(data)) < indexEnd {
		return nil, errs.E(errs.InvalidArgument, "truncated BIF index")
	}

	frames := make([]Frame, 0, count)
	for i := 0; i < int(count); i++ {
		entry := bifHeaderSize + i*bifIndexEntry
		ts := binary.LittleEndian.Uint32(data[entry:])
		start := binary.LittleEndian.Uint32(data[entry+4:])
		end := binary.LittleEndian.Uint32(data[entry+bifIndexEntry+4:])
		if int(end) > len(data) || start > end {
			return nil, fmt.Errorf("BIF frame %d spans invalid range [%d, %d)", i, start, end)
		}
		frames = append(frames, Frame{TimestampMs: ts, JPEG: data[start:end]})
	}
	return frames, nil
}
