// Package stream frames Messages on ordered byte streams. Each frame is an
// 8-byte big-endian length followed by the encoded message.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"pingpong/internal/message"
)

const (
	prefixSize = 8

	// MaxFrameSize bounds the body length a reader accepts.
	MaxFrameSize = 16 << 20
)

// ReadExact reads exactly n bytes from r. A clean end of stream before the
// first byte is reported as io.EOF inside a StreamStopped error, a short read
// as io.ErrUnexpectedEOF. A negative n is a DeserializationFailed error.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, &ReadError{Kind: DeserializationFailed, Err: fmt.Errorf("negative read length %d", n)}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, &ReadError{Kind: classify(err), Size: uint64(n), Err: err}
	}
	return buf, nil
}

// WriteMessage writes m as a single frame.
func WriteMessage(w io.Writer, m message.Message) error {
	body, err := message.Marshal(m)
	if err != nil {
		return &WriteError{Kind: SerializationFailed, Err: err}
	}
	frame := make([]byte, prefixSize, prefixSize+len(body))
	binary.BigEndian.PutUint64(frame, uint64(len(body)))
	frame = append(frame, body...)

	if _, err := w.Write(frame); err != nil {
		return &WriteError{Kind: classify(err), Err: err}
	}
	return nil
}

// ReadNextMessage reads one frame from r and decodes it.
func ReadNextMessage(r io.Reader) (message.Message, error) {
	prefix, err := ReadExact(r, prefixSize)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint64(prefix)
	if size > MaxFrameSize {
		return nil, &ReadError{
			Kind: FrameTooLarge,
			Size: size,
			Err:  fmt.Errorf("frame of %d bytes exceeds limit of %d", size, MaxFrameSize),
		}
	}

	body, err := ReadExact(r, int(size))
	if err != nil {
		var re *ReadError
		if errors.As(err, &re) && errors.Is(re.Err, io.EOF) {
			// the prefix was read, so this is a truncated frame
			re.Err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	m, err := message.Unmarshal(body)
	if err != nil {
		return nil, &ReadError{Kind: serializationKind(err), Size: size, Err: err}
	}
	return m, nil
}
