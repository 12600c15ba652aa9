package encoder

import (
	"encoding/binary"
	"testing"
)

func TestNewKnownFormats(t *testing.T) {
	for _, format := range []string{"wav", "flac"} {
		t.Run(format, func(t *testing.T) {
			enc, err := New(format)
			if err != nil {
				t.Fatalf("New(%q): %v", format, err)
			}
			if enc == nil {
				t.Fatalf("New(%q) returned nil", format)
			}
		})
	}
	t.Run("unknown", func(t *testing.T) {
		if _, err := New("ogg"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestWavHeader(t *testing.T) {
	enc := NewWav()
	block := make([]int16, BlockSize)
	for i := range block {
		block[i] = int16(i % 1000)
	}
	if err := enc.EncodeBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	out := enc.Bytes()
	if len(out) != WAVHeaderSize+BlockSize*2 {
		t.Fatalf("len = %d, want %d", len(out), WAVHeaderSize+BlockSize*2)
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Errorf("bad RIFF magic: %q %q", out[0:4], out[8:12])
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != Channels {
		t.Errorf("channels = %d, want %d", got, Channels)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != BlockSize*2 {
		t.Errorf("data size = %d, want %d", got, BlockSize*2)
	}
	if enc.TotalFrames() != BlockSize {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), BlockSize)
	}

	// Payload must round-trip verbatim.
	for i := 0; i < 10; i++ {
		got := int16(binary.LittleEndian.Uint16(out[WAVHeaderSize+i*2:]))
		if got != block[i] {
			t.Fatalf("sample %d = %d, want %d", i, got, block[i])
		}
	}
}

func TestFlacEncodeBlock(t *testing.T) {
	enc, err := NewFlac()
	if err != nil {
		t.Fatal(err)
	}
	block := make([]int16, BlockSize)
	for i := range block {
		block[i] = int16((i * 37) % 2048)
	}
	if err := enc.EncodeBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	out := enc.Bytes()
	if len(out) == 0 {
		t.Fatal("empty flac output")
	}
	if string(out[0:4]) != "fLaC" {
		t.Errorf("bad flac magic: %q", out[0:4])
	}
	if enc.TotalFrames() != BlockSize {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), BlockSize)
	}
}

func TestExtensionAndMIME(t *testing.T) {
	if Extension("flac") != ".flac" || Extension("wav") != ".wav" {
		t.Error("Extension mapping wrong")
	}
	if MIMEType("flac") != "audio/flac" || MIMEType("wav") != "audio/wav" {
		t.Error("MIMEType mapping wrong")
	}
}
