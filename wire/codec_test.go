package wire

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, d *Decoder, chunks ...string) []string {
	t.Helper()

	var frames []string
	for _, c := range chunks {
		got, err := d.Feed([]byte(c))
		require.NoError(t, err)
		frames = append(frames, got...)
	}

	return frames
}

func TestDecoder_Feed(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		pending int
	}{
		{name: "single frame", chunks: []string{"ok\n"}, want: []string{"ok"}},
		{name: "two frames in one read", chunks: []string{"a\nb\n"}, want: []string{"a", "b"}},
		{name: "partial then rest", chunks: []string{"sta", "tus: ready\n"}, want: []string{"status: ready"}},
		{name: "whitespace trimmed", chunks: []string{"  x  \n"}, want: []string{"x"}},
		{name: "carriage return trimmed", chunks: []string{"battery 7.4V\r\n"}, want: []string{"battery 7.4V"}},
		{name: "empty frames dropped", chunks: []string{"\n\n  \n"}, want: nil},
		{name: "remainder kept", chunks: []string{"one\ntw"}, want: []string{"one"}, pending: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(DefaultMaxFrameSize)
			got := feedAll(t, d, tt.chunks...)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.pending, d.Buffered())
		})
	}
}

func TestDecoder_TrailingEmptyFrameSuppressed(t *testing.T) {
	d := NewDecoder(DefaultMaxFrameSize)

	frames, err := d.Feed([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, frames)

	frames, err = d.Feed([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Zero(t, d.Buffered())
}

func TestDecoder_SplitInvariance(t *testing.T) {
	stream := "status\n  m0f ok \n\nbattery 7.4V\r\ntms200-200\nlast"

	whole := NewDecoder(DefaultMaxFrameSize)
	want := feedAll(t, whole, stream)
	require.Equal(t, []string{"status", "m0f ok", "battery 7.4V", "tms200-200"}, want)

	for first := 0; first <= len(stream); first++ {
		for second := first; second <= len(stream); second++ {
			d := NewDecoder(DefaultMaxFrameSize)
			got := feedAll(t, d, stream[:first], stream[first:second], stream[second:])
			require.Equal(t, want, got, "split at %d/%d", first, second)
			require.Equal(t, len("last"), d.Buffered())
		}
	}

	byteWise := NewDecoder(DefaultMaxFrameSize)
	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, feedAll(t, byteWise, stream[i:i+1])...)
	}
	assert.Equal(t, want, got)
}

func TestDecoder_FrameTooLarge(t *testing.T) {
	d := NewDecoder(8)

	frames, err := d.Feed([]byte("ok\n0123456789"))
	assert.Equal(t, []string{"ok"}, frames)

	var tooLarge *FrameTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, 10, tooLarge.Size)
	assert.Equal(t, 8, tooLarge.Limit)
	assert.Zero(t, d.Buffered())

	// the decoder is usable again after the overflow.
	frames, err = d.Feed([]byte("next\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, frames)
}

func TestDecoder_LimitAppliesToRemainderOnly(t *testing.T) {
	d := NewDecoder(4)

	frames, err := d.Feed([]byte(strings.Repeat("x", 32) + "\nab"))
	require.NoError(t, err)
	assert.Equal(t, []string{strings.Repeat("x", 32)}, frames)
	assert.Equal(t, 2, d.Buffered())
}

func TestDecoder_Unlimited(t *testing.T) {
	d := NewDecoder(0)

	frames, err := d.Feed([]byte(strings.Repeat("y", 10000)))
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, 10000, d.Buffered())

	d.Reset()
	assert.Zero(t, d.Buffered())
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("tms100-50\n"), Encode("tms100-50"))
	assert.Equal(t, []byte("\n"), Encode(""))
}
