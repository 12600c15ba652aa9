package screenshot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lexa/log"
)

// View decides which queue newly captured screenshots land in.
type View string

const (
	ViewQueue     View = "queue"
	ViewSolutions View = "solutions"
	ViewDebug     View = "debug"
)

var ErrCaptureFailed = errors.New("screen capture failed")

// MaxQueued caps each queue; the oldest entry is evicted and its file
// deleted once the cap is exceeded.
const MaxQueued = 5

// settleDelay gives the window hide/show animation time to finish so the
// overlay itself is not captured.
const settleDelay = 300 * time.Millisecond

// Grabber produces raw PNG bytes of the screen. The platform capture
// implementation lives outside this package.
type Grabber interface {
	Capture() ([]byte, error)
}

// Store owns the two bounded screenshot queues and their backing files.
type Store struct {
	grabber  Grabber
	dir      string
	extraDir string

	// SettleDelay overrides the default hide/show settle wait. Tests set
	// it to zero.
	SettleDelay time.Duration

	mu    sync.Mutex
	queue []string
	extra []string
	view  View
}

// NewStore creates the screenshot directories and sweeps any files left
// over from a previous run so both queues start empty.
func NewStore(grabber Grabber, dir, extraDir string) (*Store, error) {
	s := &Store{
		grabber:     grabber,
		dir:         dir,
		extraDir:    extraDir,
		SettleDelay: settleDelay,
		view:        ViewQueue,
	}
	for _, d := range []string{dir, extraDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("creating screenshot directory: %w", err)
		}
		sweepPNGs(d)
	}
	return s, nil
}

func sweepPNGs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Errorf("sweeping %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			log.Errorf("deleting stale screenshot %s: %v", e.Name(), err)
		}
	}
}

func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetView switches the destination queue for future captures. Existing
// entries stay where they are.
func (s *Store) SetView(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

// Capture hides the overlay, grabs the screen, writes the PNG into the
// queue for the current view, and restores the overlay. hide/show may be
// nil when there is no overlay to manage.
func (s *Store) Capture(hide, show func()) (string, error) {
	if hide != nil {
		hide()
		time.Sleep(s.SettleDelay)
	}
	if show != nil {
		defer func() {
			time.Sleep(s.SettleDelay)
			show()
		}()
	}

	data, err := s.grabber.Capture()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty buffer", ErrCaptureFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir
	target := &s.queue
	if s.view != ViewQueue {
		dir = s.extraDir
		target = &s.extra
	}

	path := filepath.Join(dir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing screenshot: %w", err)
	}

	*target = append(*target, path)
	if len(*target) > MaxQueued {
		oldest := (*target)[0]
		*target = (*target)[1:]
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			log.Errorf("evicting screenshot %s: %v", oldest, err)
		}
	}

	return path, nil
}

// Queue returns the primary queue paths, oldest first.
func (s *Store) Queue() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queue))
	copy(out, s.queue)
	return out
}

// ExtraQueue returns the debug queue paths, oldest first.
func (s *Store) ExtraQueue() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.extra))
	copy(out, s.extra)
	return out
}

// Delete removes the file and drops the matching entry from the queue
// active for the current view. Deleting an absent file succeeds.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting screenshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view == ViewQueue {
		s.queue = remove(s.queue, path)
	} else {
		s.extra = remove(s.extra, path)
	}
	return nil
}

func remove(paths []string, path string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != path {
			out = append(out, p)
		}
	}
	return out
}

// ClearQueue empties the primary queue, deleting files best-effort.
func (s *Store) ClearQueue() {
	s.mu.Lock()
	paths := s.queue
	s.queue = nil
	s.mu.Unlock()
	deleteAll(paths)
}

// ClearExtraQueue empties the debug queue, deleting files best-effort.
func (s *Store) ClearExtraQueue() {
	s.mu.Lock()
	paths := s.extra
	s.extra = nil
	s.mu.Unlock()
	deleteAll(paths)
}

// ClearAll empties both queues.
func (s *Store) ClearAll() {
	s.ClearQueue()
	s.ClearExtraQueue()
}

func deleteAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Errorf("deleting screenshot %s: %v", p, err)
		}
	}
}

// Preview returns the file as a data URL for UI thumbnails.
func (s *Store) Preview(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading screenshot: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
