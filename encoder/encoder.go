package encoder

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096

	WAVHeaderSize = 44
)

// Encoder turns 16-bit mono PCM blocks into a playable container.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// New returns an encoder for the given container format.
func New(format string) (Encoder, error) {
	switch format {
	case "wav":
		return NewWav(), nil
	case "flac":
		return NewFlac()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Extension returns the file extension for a container format.
func Extension(format string) string {
	if format == "flac" {
		return ".flac"
	}
	return ".wav"
}

// MIMEType returns the content type for a container format.
func MIMEType(format string) string {
	if format == "flac" {
		return "audio/flac"
	}
	return "audio/wav"
}
