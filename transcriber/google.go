package transcriber

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"

	"lexa/config"
	"lexa/encoder"
	"lexa/provider"
)

// googleSpeech transcribes via the Cloud Speech-to-Text REST API. Used
// when the provider is Gemini, which has no dedicated audio endpoint of
// its own in this pipeline.
type googleSpeech struct {
	projectID string
	keyFile   string

	mu  sync.Mutex
	svc *speech.Service
}

func newGoogleSpeech(projectID, keyFile string) *googleSpeech {
	return &googleSpeech{projectID: projectID, keyFile: keyFile}
}

func (g *googleSpeech) Name() string { return "google-speech" }

func (g *googleSpeech) service(ctx context.Context) (*speech.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.svc != nil {
		return g.svc, nil
	}

	opts := []option.ClientOption{option.WithQuotaProject(g.projectID)}
	if g.keyFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.keyFile))
	}
	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google speech init: %w", err)
	}
	g.svc = svc
	return svc, nil
}

func (g *googleSpeech) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	svc, err := g.service(ctx)
	if err != nil {
		return "", err
	}

	cfg := &speech.RecognitionConfig{
		Encoding:        "LINEAR16",
		SampleRateHertz: encoder.SampleRate,
		LanguageCode:    "en-US",
		Model:           "latest_short",
	}
	if format == "flac" {
		cfg.Encoding = "FLAC"
	}

	resp, err := svc.Speech.Recognize(&speech.RecognizeRequest{
		Config: cfg,
		Audio:  &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", provider.StatusError(config.ProviderGemini, gerr.Code, []byte(gerr.Message))
		}
		return "", provider.TransportError(config.ProviderGemini, err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	return strings.Join(parts, " "), nil
}
