// Package wire implements the line framing of the robot command protocol.
//
// The protocol is plain ASCII text: one command or one inbound message per
// line, terminated by '\n'. There is no checksum, no length prefix and no
// acknowledgement. Outbound commands are encoded with Encode; the inbound
// byte stream is turned into frames by a Decoder, which copes with partial
// reads and with several frames arriving in a single read.
package wire

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	// Delimiter terminates every frame on the wire.
	Delimiter = '\n'

	// DefaultReadChunkSize is the size of one read from the transport.
	DefaultReadChunkSize = 1024

	// DefaultMaxFrameSize bounds the bytes a Decoder holds while waiting for a delimiter.
	DefaultMaxFrameSize = 4096
)

// FrameTooLargeError reports a peer that sent more than the allowed number
// of bytes without a delimiter. The pending bytes are discarded.
type FrameTooLargeError struct {
	Size  int
	Limit int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("wire: pending frame of %d bytes exceeds limit %d", e.Size, e.Limit)
}

// Decoder reassembles newline-delimited frames from arbitrary chunks.
//
// Decoder is NOT goroutine-safe; it is owned by the single read loop of a link.
type Decoder struct {
	buf          []byte
	maxFrameSize int
}

// NewDecoder creates a Decoder that fails once more than maxFrameSize bytes
// are pending without a delimiter. A non-positive maxFrameSize disables the limit.
func NewDecoder(maxFrameSize int) *Decoder {
	return &Decoder{maxFrameSize: maxFrameSize}
}

// Feed appends chunk to the pending bytes and returns every complete frame,
// in stream order. Frames are trimmed of surrounding whitespace and empty
// frames are dropped.
//
// When the bytes left after the last delimiter exceed the size limit, Feed
// still returns the complete frames found, discards the pending bytes and
// returns a *FrameTooLargeError.
func (d *Decoder) Feed(chunk []byte) ([]string, error) {
	d.buf = append(d.buf, chunk...)

	var frames []string
	start := 0
	for {
		idx := bytes.IndexByte(d.buf[start:], Delimiter)
		if idx < 0 {
			break
		}

		line := strings.TrimSpace(string(d.buf[start : start+idx]))
		start += idx + 1
		if line != "" {
			frames = append(frames, line)
		}
	}

	// drop the consumed span, keep the remainder for the next call.
	rest := len(d.buf) - start
	if start > 0 {
		copy(d.buf, d.buf[start:])
		d.buf = d.buf[:rest]
	}

	if d.maxFrameSize > 0 && rest > d.maxFrameSize {
		d.Reset()
		return frames, &FrameTooLargeError{Size: rest, Limit: d.maxFrameSize}
	}

	return frames, nil
}

// Buffered returns the number of pending bytes not yet forming a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards any pending bytes.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Encode returns the wire form of a command token.
func Encode(token string) []byte {
	out := make([]byte, 0, len(token)+1)
	out = append(out, token...)

	return append(out, Delimiter)
}
