package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: LEXA_LOG_PATH environment variable
	envPath := os.Getenv("LEXA_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// CycleStart records the beginning of a processing cycle.
func CycleStart(cycle uint64, kind, provider string, screenshots int, withAudio bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("cycle", cycle).
		Str("kind", kind).
		Str("provider", provider).
		Int("screenshots", screenshots).
		Bool("audio", withAudio).
		Msg("cycle_start")
}

// CycleEnd records the outcome of a processing cycle.
func CycleEnd(cycle uint64, kind string, ok bool, elapsed time.Duration, errMsg string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Uint64("cycle", cycle).
		Str("kind", kind).
		Bool("ok", ok).
		Int64("elapsed_ms", elapsed.Milliseconds())
	if errMsg != "" {
		ev = ev.Str("error", errMsg)
	}
	ev.Msg("cycle_end")
}

// TranscriptionMetrics records one audio transcription round trip.
func TranscriptionMetrics(provider string, audioBytes int, elapsed time.Duration) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Float64("audio_kb", float64(audioBytes)/1024).
		Int64("total_ms", elapsed.Milliseconds()).
		Msg("transcription")
}

// TranscriptionText appends the raw transcript to the transcript log.
func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

// RecordingStart records the start of an audio recording.
func RecordingStart(id string) {
	if !logReady {
		return
	}
	diagLog.Info().Str("recording", id).Msg("recording_start")
}

// RecordingStop records a finalized recording.
func RecordingStop(id string, duration time.Duration, frames uint64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("recording", id).
		Int64("duration_ms", duration.Milliseconds()).
		Uint64("frames", frames).
		Msg("recording_stop")
}
