package audio

import (
	"errors"
	"sync"
	"sync/atomic"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a fixed PCM payload through the CaptureDevice
// interface for tests. An empty payload simulates a silent device.
type FakeContext struct {
	pcm []byte
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &fakeCapture{pcm: f.pcm}, nil
}

type fakeCapture struct {
	pcm      []byte
	callback atomic.Pointer[DataCallback]

	mu       sync.Mutex
	feedDone chan struct{}
}

func (c *fakeCapture) Start() error {
	c.mu.Lock()
	c.feedDone = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.feedDone)
		for pos := 0; pos < len(c.pcm); {
			cb := c.callback.Load()
			if cb == nil {
				return
			}
			end := min(pos+fakeFrameSize*fakeBytesPerFrame, len(c.pcm))
			chunk := make([]byte, end-pos)
			copy(chunk, c.pcm[pos:end])
			(*cb)(chunk, uint32(len(chunk)/fakeBytesPerFrame))
			pos = end
		}
	}()
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	done := c.feedDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *fakeCapture) Close() {}

func (c *fakeCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *fakeCapture) ClearCallback() {
	c.callback.Store(nil)
}

// BrokenContext fails every capture open, simulating a missing device.
type BrokenContext struct{}

func (BrokenContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (BrokenContext) Close()                         {}

func (BrokenContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return nil, errors.New("no capture device")
}
