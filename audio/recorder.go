package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexa/encoder"
	"lexa/log"
)

var (
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrNotRecording      = errors.New("no recording in progress")
	ErrEmptyRecording    = errors.New("no audio data captured")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrRecordingNotFound = errors.New("recording file not found")
)

// stopGrace is how long Stop keeps accepting device frames before
// cutting delivery off, so reads already in flight reach the encoder.
const stopGrace = 100 * time.Millisecond

// Recording is a finalized audio capture persisted on disk.
type Recording struct {
	ID        string
	FilePath  string
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder owns at most one active microphone session and a directory of
// finalized recordings. All methods are safe for concurrent use.
type Recorder struct {
	ctx    Context
	dir    string
	format string
	device *DeviceInfo

	mu     sync.Mutex
	active *session
}

type session struct {
	id        string
	path      string
	startedAt time.Time
	capture   CaptureDevice
	enc       encoder.Encoder

	bufMu      sync.Mutex
	sampleBuf  []int16
	stopped    bool
	blockChan  chan []int16
	encodeDone chan struct{}
}

func NewRecorder(ctx Context, dir, format string, device *DeviceInfo) (*Recorder, error) {
	if format != "wav" && format != "flac" {
		return nil, fmt.Errorf("unsupported audio format %q", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating recordings directory: %w", err)
	}
	return &Recorder{ctx: ctx, dir: dir, format: format, device: device}, nil
}

// Start opens the capture device and begins accumulating frames. It returns
// once the device is confirmed open; frames keep flowing on the device's own
// goroutine until Stop.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return "", ErrAlreadyRecording
	}

	enc, err := encoder.New(r.format)
	if err != nil {
		return "", err
	}

	id := fmt.Sprintf("audio_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	s := &session{
		id:         id,
		path:       filepath.Join(r.dir, id+encoder.Extension(r.format)),
		startedAt:  time.Now(),
		enc:        enc,
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	capture, err := r.ctx.NewCapture(r.device, CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.capture = capture

	go func() {
		defer close(s.encodeDone)
		for block := range s.blockChan {
			start := time.Now()
			s.enc.EncodeBlock(block)
			s.enc.AddEncodeTime(time.Since(start))
		}
	}()

	capture.SetCallback(s.feed)
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		close(s.blockChan)
		<-s.encodeDone
		return "", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	r.active = s
	log.RecordingStart(id)
	return id, nil
}

// feed runs on the device's delivery goroutine. The stop flag is only
// observed between frame deliveries, never mid-frame.
func (s *session) feed(pcm []byte, _ uint32) {
	s.bufMu.Lock()
	if s.stopped {
		s.bufMu.Unlock()
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s.sampleBuf = append(s.sampleBuf, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	var blocks [][]int16
	for len(s.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, s.sampleBuf[:encoder.BlockSize])
		s.sampleBuf = s.sampleBuf[encoder.BlockSize:]
		blocks = append(blocks, block)
	}
	s.bufMu.Unlock()

	for _, block := range blocks {
		s.blockChan <- block
	}
}

// Stop terminates the active session and finalizes the container file.
// The recorder is idle afterwards whether or not finalization succeeded.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return Recording{}, ErrNotRecording
	}

	// Frames delivered during the grace window still count; the stop
	// flag is raised only after it elapses.
	time.Sleep(stopGrace)

	s.bufMu.Lock()
	s.stopped = true
	s.bufMu.Unlock()

	s.capture.ClearCallback()
	s.capture.Stop()
	s.capture.Close()

	// Flush the partial tail block.
	s.bufMu.Lock()
	if len(s.sampleBuf) > 0 {
		partial := make([]int16, len(s.sampleBuf))
		copy(partial, s.sampleBuf)
		s.blockChan <- partial
		s.sampleBuf = nil
	}
	s.bufMu.Unlock()

	close(s.blockChan)
	<-s.encodeDone

	duration := time.Since(s.startedAt)

	if err := s.enc.Close(); err != nil {
		return Recording{}, fmt.Errorf("finalizing encoder: %w", err)
	}
	if s.enc.TotalFrames() == 0 {
		log.Warnf("recording %s captured no audio", s.id)
		return Recording{}, ErrEmptyRecording
	}

	if err := os.WriteFile(s.path, s.enc.Bytes(), 0644); err != nil {
		return Recording{}, fmt.Errorf("writing recording: %w", err)
	}

	log.RecordingStop(s.id, duration, s.enc.TotalFrames())
	return Recording{
		ID:        s.id,
		FilePath:  s.path,
		StartedAt: s.startedAt,
		Duration:  duration,
	}, nil
}

// Format returns the container format recordings are finalized in.
func (r *Recorder) Format() string {
	return r.format
}

// IsRecording reports whether a session is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Current returns the active recording's id and live duration, or nil.
func (r *Recorder) Current() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return &Recording{
		ID:        r.active.id,
		FilePath:  r.active.path,
		StartedAt: r.active.startedAt,
		Duration:  time.Since(r.active.startedAt),
	}
}

// List returns finalized recordings from disk, newest first.
func (r *Recorder) List() []Recording {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		log.Errorf("reading recordings directory: %v", err)
		return nil
	}

	var recs []Recording
	for _, e := range entries {
		if e.IsDir() || !isRecordingFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		recs = append(recs, Recording{
			ID:        id,
			FilePath:  filepath.Join(r.dir, e.Name()),
			StartedAt: info.ModTime(),
		})
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs
}

// AudioBuffer returns the container bytes of a finalized recording.
func (r *Recorder) AudioBuffer(id string) ([]byte, error) {
	path, err := r.findFile(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recording %s: %w", id, err)
	}
	return data, nil
}

// Delete removes a finalized recording's file.
func (r *Recorder) Delete(id string) error {
	path, err := r.findFile(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting recording %s: %w", id, err)
	}
	return nil
}

// Clear stops any active recording and deletes every recording file.
// Per-file failures are logged and skipped.
func (r *Recorder) Clear() error {
	if r.IsRecording() {
		if _, err := r.Stop(); err != nil && !errors.Is(err, ErrEmptyRecording) {
			log.Warnf("stopping recording before clear: %v", err)
		}
	}

	for _, rec := range r.List() {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			log.Errorf("deleting recording %s: %v", rec.ID, err)
		}
	}
	return nil
}

// CleanupStale deletes recordings older than maxAge, including orphaned
// files that were never tracked. Returns the number removed; individual
// failures never fail the sweep.
func (r *Recorder) CleanupStale(maxAge time.Duration) int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		log.Errorf("cleanup: reading recordings directory: %v", err)
		return 0
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isRecordingFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Errorf("cleanup: deleting %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("cleanup removed %d stale recordings", removed)
	}
	return removed
}

func (r *Recorder) findFile(id string) (string, error) {
	for _, ext := range []string{".wav", ".flac"} {
		path := filepath.Join(r.dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
}

func isRecordingFile(name string) bool {
	return strings.HasSuffix(name, ".wav") || strings.HasSuffix(name, ".flac")
}
