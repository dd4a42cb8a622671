package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cbodonnell/roomsync/pkg/messages"
)

// Each frame on a stream is a 4-byte big-endian payload length, one flag byte
// and the payload.
const (
	frameHeaderSize          = 5
	frameFlagCompressed byte = 1 << 0
)

// EncodeFrame wraps an encoded envelope in a frame, compressing it if asked to.
func EncodeFrame(payload []byte, compress bool) ([]byte, error) {
	var flags byte
	if compress {
		payload = messages.Compress(payload)
		flags |= frameFlagCompressed
	}
	if len(payload) > messages.MaxMessageSize {
		return nil, &ErrFrameTooLarge{Size: uint32(len(payload))}
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	frame[4] = flags
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

// FrameReader reassembles frames from a byte stream. Partial reads are
// buffered until a frame is complete and coalesced frames are returned one
// at a time.
type FrameReader struct {
	r      *bufio.Reader
	header [frameHeaderSize]byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r: bufio.NewReaderSize(r, messages.MessageBufferSize),
	}
}

// ReadFrame returns the next payload, decompressed. A stream that ends
// cleanly between frames yields *ErrConnectionClosed.
func (f *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ErrConnectionClosed{}
		}
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(f.header[0:4])
	if size > messages.MaxMessageSize {
		return nil, &ErrFrameTooLarge{Size: size}
	}
	flags := f.header[4]

	payload := make([]byte, size)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	if flags&frameFlagCompressed != 0 {
		return messages.Decompress(payload)
	}
	return payload, nil
}
