package processing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lexa/audio"
	"lexa/config"
	"lexa/provider"
	"lexa/screenshot"
)

type fakeClient struct {
	extract func(ctx context.Context) (*provider.ProblemInfo, error)
	solve   func(ctx context.Context) (string, error)
	debug   func(ctx context.Context, images [][]byte) (string, error)
}

func (f *fakeClient) Name() config.Provider { return config.ProviderOpenAI }

func (f *fakeClient) ExtractProblem(ctx context.Context, _ [][]byte, _, transcript string) (*provider.ProblemInfo, error) {
	if f.extract != nil {
		return f.extract(ctx)
	}
	return &provider.ProblemInfo{ProblemStatement: "Two Sum", AudioContext: transcript}, nil
}

func (f *fakeClient) GenerateSolution(ctx context.Context, _ *provider.ProblemInfo, _ string) (string, error) {
	if f.solve != nil {
		return f.solve(ctx)
	}
	return fullSolution, nil
}

func (f *fakeClient) AnalyzeDebug(ctx context.Context, images [][]byte, _ *provider.ProblemInfo, _ string) (string, error) {
	if f.debug != nil {
		return f.debug(ctx, images)
	}
	return "## Issues Identified\n- looks fine", nil
}

type fakeGateway struct {
	mu         sync.Mutex
	available  bool
	reason     string
	transcript string
	calls      int
}

func (g *fakeGateway) Available() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available, g.reason
}

func (g *fakeGateway) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.transcript, nil
}

func (g *fakeGateway) Reinitialize(config.Config) {}

func (g *fakeGateway) transcribeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testSink struct {
	mu            sync.Mutex
	starts        []uint64
	extracted     []*provider.ProblemInfo
	extractedCh   chan struct{}
	solutions     []*Solution
	solutionErrs  []error
	debugStarts   []uint64
	debugResults  []*DebugResult
	debugErrs     []error
	progress      []int
	noShots       int
	notConfigured int
	terminal      chan struct{}
}

func newTestSink() *testSink {
	return &testSink{
		extractedCh: make(chan struct{}, 16),
		terminal:    make(chan struct{}, 16),
	}
}

func (s *testSink) signal() { s.terminal <- struct{}{} }

func (s *testSink) InitialStart(c uint64) {
	s.mu.Lock()
	s.starts = append(s.starts, c)
	s.mu.Unlock()
}

func (s *testSink) ProblemExtracted(_ uint64, info *provider.ProblemInfo) {
	s.mu.Lock()
	s.extracted = append(s.extracted, info)
	s.mu.Unlock()
	s.extractedCh <- struct{}{}
}

func (s *testSink) SolutionSuccess(_ uint64, sol *Solution) {
	s.mu.Lock()
	s.solutions = append(s.solutions, sol)
	s.mu.Unlock()
	s.signal()
}

func (s *testSink) SolutionError(_ uint64, err error) {
	s.mu.Lock()
	s.solutionErrs = append(s.solutionErrs, err)
	s.mu.Unlock()
	s.signal()
}

func (s *testSink) DebugStart(c uint64) {
	s.mu.Lock()
	s.debugStarts = append(s.debugStarts, c)
	s.mu.Unlock()
}

func (s *testSink) DebugSuccess(_ uint64, res *DebugResult) {
	s.mu.Lock()
	s.debugResults = append(s.debugResults, res)
	s.mu.Unlock()
	s.signal()
}

func (s *testSink) DebugError(_ uint64, err error) {
	s.mu.Lock()
	s.debugErrs = append(s.debugErrs, err)
	s.mu.Unlock()
	s.signal()
}

func (s *testSink) Progress(_ uint64, _ string, pct int) {
	s.mu.Lock()
	s.progress = append(s.progress, pct)
	s.mu.Unlock()
}

func (s *testSink) NoScreenshots() {
	s.mu.Lock()
	s.noShots++
	s.mu.Unlock()
	s.signal()
}

func (s *testSink) ProviderNotConfigured() {
	s.mu.Lock()
	s.notConfigured++
	s.mu.Unlock()
}

func waitSignal(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

type testEnv struct {
	coord   *Coordinator
	screens *screenshot.Store
	sink    *testSink
	client  *fakeClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := config.NewStore(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	screens, err := screenshot.NewStore(&screenshot.FakeGrabber{Data: []byte("png-bytes")},
		filepath.Join(dir, "shots"), filepath.Join(dir, "extra"))
	if err != nil {
		t.Fatal(err)
	}
	screens.SettleDelay = 0

	sink := newTestSink()
	client := &fakeClient{}
	coord := NewCoordinator(store, nil, screens, nil, sink)
	coord.mu.Lock()
	coord.client = client
	coord.mu.Unlock()

	return &testEnv{coord: coord, screens: screens, sink: sink, client: client}
}

func (e *testEnv) capture(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := e.screens.Capture(nil, nil); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMainFlowSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 2)

	// Stray debug screenshot that must be cleared on success.
	env.screens.SetView(screenshot.ViewDebug)
	env.capture(t, 1)
	env.screens.SetView(screenshot.ViewQueue)

	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.starts) != 1 {
		t.Fatalf("starts = %d", len(env.sink.starts))
	}
	if len(env.sink.extracted) != 1 || env.sink.extracted[0].ProblemStatement != "Two Sum" {
		t.Fatalf("extracted = %+v", env.sink.extracted)
	}
	if len(env.sink.solutions) != 1 || env.sink.solutions[0].Language != "python" {
		t.Fatalf("solutions = %+v", env.sink.solutions)
	}
	if env.screens.View() != screenshot.ViewSolutions {
		t.Fatalf("view = %v", env.screens.View())
	}
	if n := len(env.screens.ExtraQueue()); n != 0 {
		t.Fatalf("extra queue = %d, want cleared", n)
	}
	if env.coord.State() != StateDone {
		t.Fatalf("state = %v", env.coord.State())
	}
	last := env.sink.progress[len(env.sink.progress)-1]
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
}

func TestMainFlowExtractionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 1)
	env.client.extract = func(context.Context) (*provider.ProblemInfo, error) {
		return nil, errors.New("model unavailable")
	}

	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.solutionErrs) != 1 {
		t.Fatalf("errors = %v", env.sink.solutionErrs)
	}
	if env.screens.View() != screenshot.ViewQueue {
		t.Fatal("failure must restore the queue view")
	}
	if env.coord.State() != StateFailed {
		t.Fatalf("state = %v", env.coord.State())
	}
}

func TestProcessEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if env.sink.noShots != 1 {
		t.Fatalf("noShots = %d", env.sink.noShots)
	}
	if len(env.sink.starts) != 0 {
		t.Fatal("no run should have started")
	}
	if env.coord.State() != StateIdle {
		t.Fatalf("state = %v", env.coord.State())
	}
}

func TestProcessWithoutProvider(t *testing.T) {
	env := newTestEnv(t)
	env.coord.mu.Lock()
	env.coord.client = nil
	env.coord.mu.Unlock()
	env.capture(t, 1)

	env.coord.Process()

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if env.sink.notConfigured != 1 {
		t.Fatalf("notConfigured = %d", env.sink.notConfigured)
	}
}

func TestDebugFlow(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 1)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.screens.SetView(screenshot.ViewDebug)
	env.capture(t, 1)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.debugStarts) != 1 || len(env.sink.debugResults) != 1 {
		t.Fatalf("debug events: starts=%d results=%d errs=%v",
			len(env.sink.debugStarts), len(env.sink.debugResults), env.sink.debugErrs)
	}
	if !env.coord.HasDebugged() {
		t.Fatal("hasDebugged should be set")
	}
	if env.screens.View() != screenshot.ViewDebug {
		t.Fatal("debug flow must not change the view")
	}
}

func TestDebugWithoutProblemInfo(t *testing.T) {
	env := newTestEnv(t)
	env.screens.SetView(screenshot.ViewDebug)
	env.capture(t, 1)

	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.debugErrs) != 1 {
		t.Fatalf("debugErrs = %v", env.sink.debugErrs)
	}
	if len(env.sink.debugStarts) != 0 {
		t.Fatal("no debug run should have started")
	}
}

func TestCancelInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 1)
	env.client.solve = func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", provider.TransportError(config.ProviderOpenAI, ctx.Err())
	}

	env.coord.Process()
	waitSignal(t, env.sink.extractedCh)

	env.coord.Cancel()
	waitSignal(t, env.sink.terminal)

	// Give the aborted goroutine a beat to (incorrectly) emit.
	time.Sleep(50 * time.Millisecond)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if env.sink.noShots != 1 {
		t.Fatalf("noShots = %d", env.sink.noShots)
	}
	if len(env.sink.solutionErrs) != 0 {
		t.Fatalf("stale error leaked: %v", env.sink.solutionErrs)
	}
	if env.coord.State() != StateIdle {
		t.Fatalf("state = %v", env.coord.State())
	}
	if env.coord.ProblemInfo() != nil {
		t.Fatal("problem info must be cleared")
	}
	if env.coord.HasDebugged() {
		t.Fatal("debug flag must be reset")
	}
}

func TestCancelWhenIdle(t *testing.T) {
	env := newTestEnv(t)
	env.coord.Cancel()

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if env.sink.noShots != 0 {
		t.Fatal("idle cancel must stay silent")
	}
}

func TestNewRunSupersedesOld(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 1)

	firstRun := make(chan struct{})
	var once sync.Once
	env.client.solve = func(ctx context.Context) (string, error) {
		first := false
		once.Do(func() { first = true })
		if first {
			close(firstRun)
			<-ctx.Done()
			return "", provider.TransportError(config.ProviderOpenAI, ctx.Err())
		}
		return fullSolution, nil
	}

	env.coord.Process()
	waitSignal(t, env.sink.extractedCh)
	<-firstRun

	env.screens.SetView(screenshot.ViewQueue)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)
	time.Sleep(50 * time.Millisecond)

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()
	if len(env.sink.solutions) != 1 {
		t.Fatalf("solutions = %d, want exactly one", len(env.sink.solutions))
	}
	if len(env.sink.solutionErrs) != 0 {
		t.Fatalf("superseded run leaked an error: %v", env.sink.solutionErrs)
	}
}

func TestDebugFlowCombinesQueues(t *testing.T) {
	env := newTestEnv(t)
	env.capture(t, 2)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	var gotImages int
	env.client.debug = func(_ context.Context, images [][]byte) (string, error) {
		gotImages = len(images)
		return "## Issues Identified\n- looks fine", nil
	}

	env.screens.SetView(screenshot.ViewDebug)
	env.capture(t, 1)
	env.coord.Process()
	waitSignal(t, env.sink.terminal)

	// The debug call sees the original problem screenshots too, not
	// just the debug captures.
	if gotImages != 3 {
		t.Fatalf("debug images = %d, want 3 (2 primary + 1 debug)", gotImages)
	}
}

type audioTestEnv struct {
	coord    *Coordinator
	screens  *screenshot.Store
	recorder *audio.Recorder
	recDir   string
	sink     *testSink
}

func newAudioTestEnv(t *testing.T, gw Gateway) *audioTestEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := config.NewStore(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	screens, err := screenshot.NewStore(&screenshot.FakeGrabber{Data: []byte("png")},
		filepath.Join(dir, "shots"), filepath.Join(dir, "extra"))
	if err != nil {
		t.Fatal(err)
	}
	screens.SettleDelay = 0

	recDir := filepath.Join(dir, "recordings")
	recorder, err := audio.NewRecorder(audio.NewFakeContext(make([]byte, 8192)), recDir, "wav", nil)
	if err != nil {
		t.Fatal(err)
	}

	sink := newTestSink()
	coord := NewCoordinator(store, gw, screens, recorder, sink)
	coord.mu.Lock()
	coord.client = &fakeClient{}
	coord.mu.Unlock()

	return &audioTestEnv{coord: coord, screens: screens, recorder: recorder, recDir: recDir, sink: sink}
}

func (e *audioTestEnv) writeRecording(t *testing.T, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(e.recDir, name)
	if err := os.WriteFile(path, []byte("RIFFdata"), 0644); err != nil {
		t.Fatal(err)
	}
	if age > 0 {
		at := time.Now().Add(-age)
		if err := os.Chtimes(path, at, at); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func (e *audioTestEnv) runMainOnce(t *testing.T) {
	t.Helper()
	if _, err := e.screens.Capture(nil, nil); err != nil {
		t.Fatal(err)
	}
	e.coord.Process()
	waitSignal(t, e.sink.terminal)
}

func TestAudioHousekeepingAfterSuccess(t *testing.T) {
	gw := &fakeGateway{available: true, transcript: "spoken notes"}
	env := newAudioTestEnv(t, gw)

	fresh := env.writeRecording(t, "audio_1_fresh.wav", 0)
	stale := env.writeRecording(t, "audio_0_stale.wav", 2*time.Hour)

	env.runMainOnce(t)

	if gw.transcribeCalls() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", gw.transcribeCalls())
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh recording should survive the post-run sweep")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale recording should be deleted after success")
	}
}

func TestAudioFreshnessBoundary(t *testing.T) {
	t.Run("just inside the window", func(t *testing.T) {
		gw := &fakeGateway{available: true, transcript: "spoken notes"}
		env := newAudioTestEnv(t, gw)
		rec := env.writeRecording(t, "audio_1_recent.wav", audioFreshness-time.Second)

		env.runMainOnce(t)

		if gw.transcribeCalls() != 1 {
			t.Fatalf("transcribe calls = %d, want 1", gw.transcribeCalls())
		}
		if _, err := os.Stat(rec); err != nil {
			t.Fatal("the recording that fed the run must be kept")
		}
	})

	t.Run("exactly at the window", func(t *testing.T) {
		gw := &fakeGateway{available: true, transcript: "spoken notes"}
		env := newAudioTestEnv(t, gw)
		rec := env.writeRecording(t, "audio_1_boundary.wav", audioFreshness)

		env.runMainOnce(t)

		if gw.transcribeCalls() != 0 {
			t.Fatalf("transcribe calls = %d, a recording at the limit is stale", gw.transcribeCalls())
		}
		if _, err := os.Stat(rec); !os.IsNotExist(err) {
			t.Fatal("an unused stale recording should be swept after success")
		}
	})
}

func TestUnavailableGatewayLeavesRecordingActive(t *testing.T) {
	gw := &fakeGateway{available: false, reason: "no speech backend"}
	env := newAudioTestEnv(t, gw)

	if _, err := env.recorder.Start(); err != nil {
		t.Fatal(err)
	}

	env.runMainOnce(t)

	if gw.transcribeCalls() != 0 {
		t.Fatalf("transcribe calls = %d, want 0", gw.transcribeCalls())
	}
	if !env.recorder.IsRecording() {
		t.Fatal("an in-progress recording must not be consumed when transcription is unavailable")
	}
	env.recorder.Stop()
}
