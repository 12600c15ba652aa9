// Package transcriber turns recorded audio into text using whichever
// speech backend matches the configured AI provider. OpenAI uses
// Whisper, Gemini routes through Google Cloud Speech, and Anthropic has
// no audio endpoint at all.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lexa/config"
	"lexa/log"
)

var (
	// ErrNotSupported means the configured provider has no speech API.
	// Switching providers is the only remedy.
	ErrNotSupported = errors.New("transcription not supported by this provider")

	// ErrNotConfigured means the provider could transcribe but required
	// settings are missing.
	ErrNotConfigured = errors.New("transcription not configured")
)

type engine interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Gateway owns the active transcription engine and reflects config
// changes without restarting the app.
type Gateway struct {
	mu      sync.Mutex
	eng     engine
	reason  string
	errKind error
}

func New(cfg config.Config) *Gateway {
	g := &Gateway{}
	g.apply(cfg)
	return g
}

func (g *Gateway) apply(cfg config.Config) {
	g.eng = nil
	g.errKind = nil
	g.reason = ""

	switch cfg.APIProvider {
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			g.reason = "OpenAI API key not configured"
			g.errKind = ErrNotConfigured
			return
		}
		g.eng = newWhisper(cfg.APIKey)
	case config.ProviderGemini:
		if cfg.GoogleCloudProjectID == "" {
			g.reason = "Google Cloud project ID not configured"
			g.errKind = ErrNotConfigured
			return
		}
		g.eng = newGoogleSpeech(cfg.GoogleCloudProjectID, cfg.GoogleCloudKeyFile)
	case config.ProviderAnthropic:
		g.reason = "audio transcription is not available with Anthropic"
		g.errKind = ErrNotSupported
	default:
		g.reason = fmt.Sprintf("unknown provider %q", cfg.APIProvider)
		g.errKind = ErrNotConfigured
	}
}

// Reinitialize swaps the engine after a settings change.
func (g *Gateway) Reinitialize(cfg config.Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apply(cfg)
	if g.eng != nil {
		log.Infof("transcriber: engine ready (%s)", g.eng.Name())
	} else {
		log.Warnf("transcriber: unavailable: %s", g.reason)
	}
}

// Available reports whether Transcribe can succeed, with a
// human-readable reason when it cannot.
func (g *Gateway) Available() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eng != nil, g.reason
}

// Transcribe converts one finished recording to text.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	g.mu.Lock()
	eng := g.eng
	reason, kind := g.reason, g.errKind
	g.mu.Unlock()

	if eng == nil {
		return "", fmt.Errorf("%s: %w", reason, kind)
	}
	if len(audio) == 0 {
		return "", errors.New("no audio data to transcribe")
	}

	start := time.Now()
	text, err := eng.Transcribe(ctx, audio, format)
	if err != nil {
		return "", err
	}
	log.TranscriptionMetrics(eng.Name(), len(audio), time.Since(start))
	log.TranscriptionText(text)
	return text, nil
}
