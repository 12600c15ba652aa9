package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"lexa/audio"
	"lexa/config"
	"lexa/log"
	"lexa/processing"
	"lexa/screenshot"
	"lexa/shutdown"
	"lexa/transcriber"
)

var version = "dev"

// Recordings and screenshots left behind by a crashed session are
// swept on this cadence (and once at startup).
const staleSweepInterval = time.Hour

var shutdownOnce sync.Once

func gracefulShutdown(recorder *audio.Recorder) {
	shutdownOnce.Do(func() {
		if recorder != nil && recorder.IsRecording() {
			recorder.Stop()
		}
		log.Close()
		os.Exit(0)
	})
}

func main() {
	configFlag := flag.String("config", "", "config file path (default: OS-specific location)")
	dataFlag := flag.String("datadir", "", "data directory for screenshots and recordings")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("lexa %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	store, err := config.NewStore(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loading config: %v\n", err)
		os.Exit(1)
	}
	store.Watch()

	dataDir := *dataFlag
	if dataDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: resolving data directory: %v\n", err)
			os.Exit(1)
		}
		dataDir = filepath.Join(base, "lexa")
	}

	grabber, err := newScreenGrabber()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	screens, err := screenshot.NewStore(grabber,
		filepath.Join(dataDir, "screenshots"),
		filepath.Join(dataDir, "extra_screenshots"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	recorder := initRecorder(store.Current(), dataDir, *setupFlag, *deviceFlag)

	gateway := transcriber.New(store.Current())
	sink := &consoleSink{}
	coord := processing.NewCoordinator(store, gateway, screens, recorder, sink)

	if recorder != nil {
		recorder.CleanupStale(staleSweepInterval)
		go func() {
			ticker := time.NewTicker(staleSweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				if n := recorder.CleanupStale(staleSweepInterval); n > 0 {
					log.Infof("swept %d stale recordings", n)
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(recorder)
	}()

	fmt.Printf("lexa %s — type ? for commands\n", version)
	repl(store, screens, recorder, coord)
	gracefulShutdown(recorder)
}

// initRecorder is best-effort: a missing audio stack degrades to a
// screenshots-only session instead of refusing to start.
func initRecorder(cfg config.Config, dataDir string, setup bool, deviceName string) *audio.Recorder {
	ctx, err := audio.NewContext()
	if err != nil {
		log.Warnf("audio unavailable: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: audio unavailable (%v), recording disabled\n", err)
		return nil
	}

	var device *audio.DeviceInfo
	if deviceName != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == deviceName {
					device = &devices[i]
					break
				}
			}
		}
	} else if setup {
		device, err = pickCaptureDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed (%v), using default\n", err)
			device = nil
		}
	}

	recorder, err := audio.NewRecorder(ctx, filepath.Join(dataDir, "recordings"), cfg.AudioFormat, device)
	if err != nil {
		log.Errorf("recorder init: %v", err)
		fmt.Fprintf(os.Stderr, "Warning: recorder init failed (%v), recording disabled\n", err)
		ctx.Close()
		return nil
	}
	return recorder
}

const replHelp = `commands:
  h              capture a screenshot into the current queue
  p              process the current queue
  pa             process with forced audio context
  r              start/stop recording
  ls             show queues, view and recordings
  rm <n>         delete screenshot n from the current queue
  preview <n>    print screenshot n as a data URL
  view <name>    switch view: queue, solutions, debug
  set <k> <v>    update config (api_provider, api_key, language, ...)
  cancel         abort in-flight processing and reset
  clear          delete all screenshots and recordings
  q              quit`

func repl(store *config.Store, screens *screenshot.Store, recorder *audio.Recorder, coord *processing.Coordinator) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "?", "help":
			fmt.Println(replHelp)

		case "h":
			path, err := screens.Capture(nil, nil)
			if err != nil {
				fmt.Printf("capture failed: %v\n", err)
				continue
			}
			fmt.Printf("captured %s (%d queued)\n", filepath.Base(path), len(activeQueue(screens)))

		case "p":
			coord.Process()

		case "pa":
			coord.ProcessWithAudio()

		case "r":
			toggleRecording(recorder)

		case "ls":
			showStatus(store, screens, recorder)

		case "rm":
			if len(fields) < 2 {
				fmt.Println("usage: rm <n>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			queue := activeQueue(screens)
			if err != nil || n < 1 || n > len(queue) {
				fmt.Println("no such screenshot")
				continue
			}
			if err := screens.Delete(queue[n-1]); err != nil {
				fmt.Printf("delete failed: %v\n", err)
			}

		case "preview":
			if len(fields) < 2 {
				fmt.Println("usage: preview <n>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			queue := activeQueue(screens)
			if err != nil || n < 1 || n > len(queue) {
				fmt.Println("no such screenshot")
				continue
			}
			url, err := screens.Preview(queue[n-1])
			if err != nil {
				fmt.Printf("preview failed: %v\n", err)
				continue
			}
			fmt.Println(url)

		case "view":
			if len(fields) < 2 {
				fmt.Printf("view: %s\n", viewName(screens.View()))
				continue
			}
			switch fields[1] {
			case "queue":
				screens.SetView(screenshot.ViewQueue)
			case "solutions":
				screens.SetView(screenshot.ViewSolutions)
			case "debug":
				screens.SetView(screenshot.ViewDebug)
			default:
				fmt.Println("views: queue, solutions, debug")
			}

		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <key> <value>")
				continue
			}
			if err := setConfig(store, fields[1], strings.Join(fields[2:], " ")); err != nil {
				fmt.Printf("config update failed: %v\n", err)
			}

		case "cancel":
			coord.Cancel()
			screens.SetView(screenshot.ViewQueue)

		case "clear":
			coord.Cancel()
			screens.ClearAll()
			if recorder != nil {
				recorder.Clear()
			}
			screens.SetView(screenshot.ViewQueue)
			fmt.Println("cleared")

		case "q", "quit", "exit":
			return

		default:
			fmt.Println("unknown command, type ? for help")
		}
	}
}

func activeQueue(screens *screenshot.Store) []string {
	if screens.View() == screenshot.ViewQueue {
		return screens.Queue()
	}
	return screens.ExtraQueue()
}

func viewName(v screenshot.View) string {
	switch v {
	case screenshot.ViewQueue:
		return "queue"
	case screenshot.ViewSolutions:
		return "solutions"
	case screenshot.ViewDebug:
		return "debug"
	}
	return "unknown"
}

func toggleRecording(recorder *audio.Recorder) {
	if recorder == nil {
		fmt.Println("recording unavailable")
		return
	}
	if recorder.IsRecording() {
		rec, err := recorder.Stop()
		if errors.Is(err, audio.ErrEmptyRecording) {
			fmt.Println("recording discarded: no audio captured")
			return
		}
		if err != nil {
			fmt.Printf("stop failed: %v\n", err)
			return
		}
		fmt.Printf("recorded %s (%.1fs)\n", rec.ID, rec.Duration.Seconds())
		return
	}
	id, err := recorder.Start()
	if err != nil {
		fmt.Printf("start failed: %v\n", err)
		return
	}
	fmt.Printf("recording %s... (r to stop)\n", id)
}

func showStatus(store *config.Store, screens *screenshot.Store, recorder *audio.Recorder) {
	cfg := store.Current()
	fmt.Printf("provider: %s  language: %s  view: %s\n",
		cfg.APIProvider, cfg.Language, viewName(screens.View()))

	fmt.Printf("queue (%d):\n", len(screens.Queue()))
	for i, p := range screens.Queue() {
		fmt.Printf("  %d. %s\n", i+1, filepath.Base(p))
	}
	if extra := screens.ExtraQueue(); len(extra) > 0 {
		fmt.Printf("extra queue (%d):\n", len(extra))
		for i, p := range extra {
			fmt.Printf("  %d. %s\n", i+1, filepath.Base(p))
		}
	}

	if recorder == nil {
		return
	}
	if cur := recorder.Current(); cur != nil {
		fmt.Printf("recording: %s (%.1fs so far)\n", cur.ID, cur.Duration.Seconds())
	}
	if recs := recorder.List(); len(recs) > 0 {
		fmt.Printf("recordings (%d):\n", len(recs))
		for _, r := range recs {
			fmt.Printf("  %s  %s ago\n", r.ID, time.Since(r.StartedAt).Round(time.Second))
		}
	}
}

func setConfig(store *config.Store, key, value string) error {
	return store.Update(func(c *config.Config) {
		switch key {
		case "api_provider":
			c.APIProvider = config.Provider(value)
		case "api_key":
			c.APIKey = value
		case "language":
			c.Language = value
		case "extraction_model":
			c.ExtractionModel = value
		case "solution_model":
			c.SolutionModel = value
		case "debugging_model":
			c.DebuggingModel = value
		case "google_cloud_project_id":
			c.GoogleCloudProjectID = value
		case "google_cloud_key_file":
			c.GoogleCloudKeyFile = value
		case "audio_format":
			c.AudioFormat = value
			fmt.Println("audio format change takes effect on restart")
		default:
			fmt.Printf("unknown key %q\n", key)
		}
	})
}
