package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"lexa/config"
	"lexa/log"
	"lexa/traced"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

type anthropic struct {
	cfg    config.Config
	client *traced.Client
	apiURL string
}

func newAnthropic(cfg config.Config) *anthropic {
	return &anthropic{
		cfg:    cfg,
		client: traced.NewClient(requestTimeout),
		apiURL: anthropicMessagesURL,
	}
}

func (a *anthropic) Name() config.Provider { return config.ProviderAnthropic }

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a *anthropic) call(ctx context.Context, model string, blocks []anthropicBlock) (string, error) {
	payload, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: 4000,
		Messages:  []anthropicMessage{{Role: "user", Content: blocks}},
	})
	if err != nil {
		return "", wrapError(KindTransport, a.Name(), "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", wrapError(KindTransport, a.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fromTransport(a.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fromStatus(a.Name(), resp.StatusCode, resp.Body)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", wrapError(KindParse, a.Name(), "decode response", err)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		return "", newError(KindEmptyResponse, a.Name(), "no content in response")
	}

	log.Infof("anthropic: %s done total=%s ttfb=%s reused=%v",
		model, resp.Metrics.Total, resp.Metrics.TTFB, resp.Metrics.ConnReused)
	return parsed.Content[0].Text, nil
}

func anthropicBlocks(text string, images [][]byte) []anthropicBlock {
	blocks := []anthropicBlock{{Type: "text", Text: text}}
	for _, img := range images {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      encodePNG(img),
			},
		})
	}
	return blocks
}

func (a *anthropic) ExtractProblem(ctx context.Context, images [][]byte, language, transcript string) (*ProblemInfo, error) {
	prompt := extractionSystem(transcript) + "\n\n" + extractionPrompt(language, transcript)
	text, err := a.call(ctx, a.cfg.ModelFor("extraction"), anthropicBlocks(prompt, images))
	if err != nil {
		return nil, err
	}

	var info ProblemInfo
	if err := json.Unmarshal([]byte(stripFences(text)), &info); err != nil {
		return nil, wrapError(KindParse, a.Name(), "problem info is not valid JSON", err)
	}
	if info.AudioContext == "" {
		info.AudioContext = transcript
	}
	return &info, nil
}

func (a *anthropic) GenerateSolution(ctx context.Context, info *ProblemInfo, language string) (string, error) {
	ctx, cancel := solutionContext(ctx)
	defer cancel()

	blocks := []anthropicBlock{{Type: "text", Text: solutionPrompt(info, language)}}
	return a.call(ctx, a.cfg.ModelFor("solution"), blocks)
}

func (a *anthropic) AnalyzeDebug(ctx context.Context, images [][]byte, info *ProblemInfo, language string) (string, error) {
	return a.call(ctx, a.cfg.ModelFor("debugging"), anthropicBlocks(debugPrompt(info, language), images))
}
