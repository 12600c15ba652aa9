// Package processing drives the capture-to-solution pipeline: it joins
// the screenshot store, the audio recorder, the transcription gateway
// and the configured AI provider into one cancelable state machine.
package processing

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"lexa/audio"
	"lexa/config"
	"lexa/log"
	"lexa/provider"
	"lexa/screenshot"
)

type State int

const (
	StateIdle State = iota
	StateExtracting
	StateSolving
	StateDebugging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateSolving:
		return "solving"
	case StateDebugging:
		return "debugging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Recordings older than this are never attached to a processing run.
// A recording exactly this old is already stale.
const audioFreshness = 10 * time.Minute

// Gateway is the transcription surface the coordinator drives.
// *transcriber.Gateway satisfies it.
type Gateway interface {
	Available() (bool, string)
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
	Reinitialize(cfg config.Config)
}

// Coordinator owns at most one main run and one debug run at a time.
// Starting a new run of a kind cancels the previous one; every run is
// stamped with a cycle ID so events from superseded runs are dropped
// instead of reaching the sink out of order.
type Coordinator struct {
	store    *config.Store
	gateway  Gateway
	screens  *screenshot.Store
	recorder *audio.Recorder
	sink     EventSink

	mu          sync.Mutex
	client      provider.Client
	state       State
	problemInfo *provider.ProblemInfo
	hasDebugged bool

	cycleSeq    uint64
	mainCycle   uint64
	mainCancel  context.CancelFunc
	debugCycle  uint64
	debugCancel context.CancelFunc
}

func NewCoordinator(store *config.Store, gateway Gateway, screens *screenshot.Store, recorder *audio.Recorder, sink EventSink) *Coordinator {
	c := &Coordinator{
		store:    store,
		gateway:  gateway,
		screens:  screens,
		recorder: recorder,
		sink:     sink,
		state:    StateIdle,
	}
	if client, err := provider.New(store.Current()); err == nil {
		c.client = client
	}
	store.OnChange(c.applyConfig)
	return c
}

func (c *Coordinator) applyConfig(cfg config.Config) {
	c.mu.Lock()
	client, err := provider.New(cfg)
	if err != nil {
		c.client = nil
	} else {
		c.client = client
	}
	c.mu.Unlock()

	if c.gateway != nil {
		c.gateway.Reinitialize(cfg)
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) HasDebugged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasDebugged
}

func (c *Coordinator) ProblemInfo() *provider.ProblemInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.problemInfo
}

// ensureClient retries provider construction once, so a key added after
// startup is picked up without restarting.
func (c *Coordinator) ensureClient() provider.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		if client, err := provider.New(c.store.Current()); err == nil {
			c.client = client
		}
	}
	return c.client
}

// Process runs the flow matching the current view: the main queue feeds
// extraction and solution, any other view feeds debug analysis of the
// extra queue.
func (c *Coordinator) Process() {
	client := c.ensureClient()
	if client == nil {
		c.sink.ProviderNotConfigured()
		return
	}

	if c.screens.View() == screenshot.ViewQueue {
		paths := existingFiles(c.screens.Queue())
		if len(paths) == 0 {
			c.sink.NoScreenshots()
			return
		}
		c.startMain(client, paths, false)
		return
	}

	extra := existingFiles(c.screens.ExtraQueue())
	if len(extra) == 0 {
		c.sink.NoScreenshots()
		return
	}
	// Debug analysis also sees the primary queue's screenshots, so the
	// model keeps the original problem in view alongside the new code.
	c.startDebug(client, append(existingFiles(c.screens.Queue()), extra...))
}

// ProcessWithAudio forces the audio context in. With an empty queue the
// transcript alone becomes the problem statement.
func (c *Coordinator) ProcessWithAudio() {
	client := c.ensureClient()
	if client == nil {
		c.sink.ProviderNotConfigured()
		return
	}
	c.startMain(client, existingFiles(c.screens.Queue()), true)
}

func (c *Coordinator) startMain(client provider.Client, paths []string, requireAudio bool) {
	c.mu.Lock()
	if c.mainCancel != nil {
		c.mainCancel()
	}
	c.cycleSeq++
	cycle := c.cycleSeq
	ctx, cancel := context.WithCancel(context.Background())
	c.mainCycle, c.mainCancel = cycle, cancel
	c.state = StateExtracting
	c.mu.Unlock()

	c.screens.SetView(screenshot.ViewSolutions)
	c.sink.InitialStart(cycle)
	go c.runMain(ctx, client, cycle, paths, requireAudio)
}

func (c *Coordinator) runMain(ctx context.Context, client provider.Client, cycle uint64, paths []string, requireAudio bool) {
	start := time.Now()
	cfg := c.store.Current()

	c.progressMain(cycle, "Starting processing...", 1)
	transcript, usedRecording := c.audioContext(ctx, requireAudio)
	withAudio := transcript != ""
	log.CycleStart(cycle, "main", string(cfg.APIProvider), len(paths), withAudio)

	var info *provider.ProblemInfo
	if len(paths) == 0 {
		if transcript == "" {
			c.abandonMain(cycle)
			return
		}
		info = &provider.ProblemInfo{ProblemStatement: transcript, AudioContext: transcript}
	} else {
		c.progressMain(cycle, "Preparing screenshots...", 10)
		images := loadImages(paths)
		if len(images) == 0 {
			c.abandonMain(cycle)
			return
		}

		c.progressMain(cycle, "Analyzing problem from screenshots...", 20)
		extracted, err := client.ExtractProblem(ctx, images, cfg.Language, transcript)
		if err != nil {
			c.failMain(cycle, err, start)
			return
		}
		info = extracted
	}

	c.mu.Lock()
	if c.mainCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.problemInfo = info
	c.state = StateSolving
	c.mu.Unlock()

	c.sink.ProblemExtracted(cycle, info)
	c.progressMain(cycle, "Problem extracted. Generating solution...", 40)

	c.progressMain(cycle, "Waiting on the model...", 60)
	raw, err := client.GenerateSolution(ctx, info, cfg.Language)
	if err != nil {
		c.failMain(cycle, err, start)
		return
	}
	sol := ParseSolution(raw)

	c.mu.Lock()
	if c.mainCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.state = StateDone
	c.mainCancel = nil
	c.mu.Unlock()

	c.screens.ClearExtraQueue()
	c.screens.SetView(screenshot.ViewSolutions)
	c.sink.SolutionSuccess(cycle, sol)
	c.progressMain(cycle, "Complete", 100)
	c.cleanupRecordings(usedRecording)
	log.CycleEnd(cycle, "main", true, time.Since(start), "")
}

// abandonMain unwinds a run that turned out to have nothing to process.
func (c *Coordinator) abandonMain(cycle uint64) {
	c.mu.Lock()
	if c.mainCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.mainCycle, c.mainCancel = 0, nil
	c.state = StateIdle
	c.mu.Unlock()

	c.screens.SetView(screenshot.ViewQueue)
	c.sink.NoScreenshots()
}

func (c *Coordinator) failMain(cycle uint64, err error, start time.Time) {
	c.mu.Lock()
	if c.mainCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.mainCycle, c.mainCancel = 0, nil
	c.state = StateFailed
	c.mu.Unlock()

	c.screens.SetView(screenshot.ViewQueue)
	c.sink.SolutionError(cycle, err)
	log.CycleEnd(cycle, "main", false, time.Since(start), err.Error())
}

func (c *Coordinator) progressMain(cycle uint64, msg string, pct int) {
	c.mu.Lock()
	live := c.mainCycle == cycle
	c.mu.Unlock()
	if live {
		c.sink.Progress(cycle, msg, pct)
	}
}

// audioContext finalizes any active recording, then attaches the most
// recent recording if it is fresh enough. Transcription failures are
// not fatal, a run proceeds without audio.
func (c *Coordinator) audioContext(ctx context.Context, require bool) (transcript, recordingID string) {
	if c.recorder == nil || c.gateway == nil {
		return "", ""
	}
	// Without a speech engine there is nothing to transcribe, and an
	// in-progress recording is left running rather than consumed.
	if ok, reason := c.gateway.Available(); !ok {
		if c.recorder.IsRecording() {
			log.Infof("processing: keeping recording active, transcription unavailable: %s", reason)
		}
		return "", ""
	}

	var id string
	if c.recorder.IsRecording() {
		rec, err := c.recorder.Stop()
		if err != nil {
			if !errors.Is(err, audio.ErrEmptyRecording) {
				log.Warnf("processing: stopping recording: %v", err)
			}
		} else {
			id = rec.ID
		}
	} else if recs := c.recorder.List(); len(recs) > 0 {
		if require || time.Since(recs[0].StartedAt) < audioFreshness {
			id = recs[0].ID
		}
	}
	if id == "" {
		return "", ""
	}

	buf, err := c.recorder.AudioBuffer(id)
	if err != nil {
		log.Warnf("processing: reading recording %s: %v", id, err)
		return "", ""
	}
	text, err := c.gateway.Transcribe(ctx, buf, c.recorder.Format())
	if err != nil {
		log.Warnf("processing: transcription skipped: %v", err)
		return "", id
	}
	return text, id
}

// cleanupRecordings deletes finalized recordings after a successful
// run, keeping only the one that fed it.
func (c *Coordinator) cleanupRecordings(keep string) {
	if c.recorder == nil {
		return
	}
	for _, rec := range c.recorder.List() {
		if rec.ID == keep {
			continue
		}
		if err := c.recorder.Delete(rec.ID); err != nil {
			log.Warnf("processing: deleting recording %s: %v", rec.ID, err)
		}
	}
}

func (c *Coordinator) startDebug(client provider.Client, paths []string) {
	c.mu.Lock()
	info := c.problemInfo
	if info == nil {
		c.cycleSeq++
		cycle := c.cycleSeq
		c.mu.Unlock()
		c.sink.DebugError(cycle, errors.New("no problem info available, process the main queue first"))
		return
	}
	if c.debugCancel != nil {
		c.debugCancel()
	}
	c.cycleSeq++
	cycle := c.cycleSeq
	ctx, cancel := context.WithCancel(context.Background())
	c.debugCycle, c.debugCancel = cycle, cancel
	c.state = StateDebugging
	c.mu.Unlock()

	c.sink.DebugStart(cycle)
	go c.runDebug(ctx, client, cycle, info, paths)
}

func (c *Coordinator) runDebug(ctx context.Context, client provider.Client, cycle uint64, info *provider.ProblemInfo, paths []string) {
	start := time.Now()
	cfg := c.store.Current()
	log.CycleStart(cycle, "debug", string(cfg.APIProvider), len(paths), false)

	images := loadImages(paths)
	if len(images) == 0 {
		c.failDebug(cycle, errors.New("debug screenshots are no longer readable"), start)
		return
	}

	raw, err := client.AnalyzeDebug(ctx, images, info, cfg.Language)
	if err != nil {
		c.failDebug(cycle, err, start)
		return
	}
	res := ParseDebug(raw)

	c.mu.Lock()
	if c.debugCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.debugCycle, c.debugCancel = 0, nil
	c.hasDebugged = true
	c.state = StateDone
	c.mu.Unlock()

	c.sink.DebugSuccess(cycle, res)
	log.CycleEnd(cycle, "debug", true, time.Since(start), "")
}

func (c *Coordinator) failDebug(cycle uint64, err error, start time.Time) {
	c.mu.Lock()
	if c.debugCycle != cycle {
		c.mu.Unlock()
		return
	}
	c.debugCycle, c.debugCancel = 0, nil
	c.state = StateFailed
	c.mu.Unlock()

	c.sink.DebugError(cycle, err)
	log.CycleEnd(cycle, "debug", false, time.Since(start), err.Error())
}

// Cancel aborts any in-flight runs and resets session state. The sink
// learns the pipeline is empty again only if something was actually
// running.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	inFlight := c.mainCancel != nil || c.debugCancel != nil
	if c.mainCancel != nil {
		c.mainCancel()
		c.mainCancel = nil
	}
	if c.debugCancel != nil {
		c.debugCancel()
		c.debugCancel = nil
	}
	c.mainCycle, c.debugCycle = 0, 0
	c.problemInfo = nil
	c.hasDebugged = false
	c.state = StateIdle
	c.mu.Unlock()

	if inFlight {
		c.sink.NoScreenshots()
	}
}

func existingFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func loadImages(paths []string) [][]byte {
	var images [][]byte
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warnf("processing: skipping unreadable screenshot %s: %v", p, err)
			continue
		}
		images = append(images, data)
	}
	return images
}
