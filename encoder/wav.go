package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"
)

// WavEncoder accumulates PCM samples and emits a RIFF/WAVE file on Bytes().
// The header is rewritten with final sizes every call, so Bytes() is valid
// after Close() and cheap enough for the single call the recorder makes.
type WavEncoder struct {
	mu          sync.Mutex
	pcm         bytes.Buffer
	totalFrames uint64
	encodeTime  time.Duration
}

func NewWav() *WavEncoder {
	return &WavEncoder{}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	e.pcm.Write(buf)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error { return nil }

func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := e.pcm.Bytes()
	out := make([]byte, WAVHeaderSize+len(data))

	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(data)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(out[22:24], Channels)
	binary.LittleEndian.PutUint32(out[24:28], SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], BitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(data)))
	copy(out[WAVHeaderSize:], data)

	return out
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *WavEncoder) AddEncodeTime(d time.Duration) {
	e.mu.Lock()
	e.encodeTime += d
	e.mu.Unlock()
}

func (e *WavEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}
