package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"lexa/config"
	"lexa/log"
	"lexa/traced"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

type gemini struct {
	cfg    config.Config
	client *traced.Client
	apiURL string
}

func newGemini(cfg config.Config) *gemini {
	return &gemini{
		cfg:    cfg,
		client: traced.NewClient(requestTimeout),
		apiURL: geminiBaseURL,
	}
}

func (g *gemini) Name() config.Provider { return config.ProviderGemini }

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// call posts one generateContent request. The API key travels as a
// query parameter, per the Gemini REST contract.
func (g *gemini) call(ctx context.Context, model string, parts []geminiPart) (string, error) {
	var body geminiRequest
	body.Contents = []geminiContent{{Parts: parts}}
	body.GenerationConfig.Temperature = 0.2
	body.GenerationConfig.MaxOutputTokens = 4000

	payload, err := json.Marshal(body)
	if err != nil {
		return "", wrapError(KindTransport, g.Name(), "encode request", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", g.apiURL, model, url.QueryEscape(g.cfg.APIKey))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", wrapError(KindTransport, g.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fromTransport(g.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fromStatus(g.Name(), resp.StatusCode, resp.Body)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", wrapError(KindParse, g.Name(), "decode response", err)
	}
	// Gemini reports safety blocks as an empty candidate list with a 200.
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", newError(KindEmptyResponse, g.Name(), "no candidates in response")
	}

	log.Infof("gemini: %s done total=%s ttfb=%s reused=%v",
		model, resp.Metrics.Total, resp.Metrics.TTFB, resp.Metrics.ConnReused)
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func geminiParts(text string, images [][]byte) []geminiPart {
	parts := []geminiPart{{Text: text}}
	for _, img := range images {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{MimeType: "image/png", Data: encodePNG(img)},
		})
	}
	return parts
}

func (g *gemini) ExtractProblem(ctx context.Context, images [][]byte, language, transcript string) (*ProblemInfo, error) {
	prompt := extractionSystem(transcript) + "\n\n" + extractionPrompt(language, transcript)
	text, err := g.call(ctx, g.cfg.ModelFor("extraction"), geminiParts(prompt, images))
	if err != nil {
		return nil, err
	}

	var info ProblemInfo
	if err := json.Unmarshal([]byte(stripFences(text)), &info); err != nil {
		return nil, wrapError(KindParse, g.Name(), "problem info is not valid JSON", err)
	}
	if info.AudioContext == "" {
		info.AudioContext = transcript
	}
	return &info, nil
}

func (g *gemini) GenerateSolution(ctx context.Context, info *ProblemInfo, language string) (string, error) {
	ctx, cancel := solutionContext(ctx)
	defer cancel()

	parts := []geminiPart{{Text: solutionPrompt(info, language)}}
	return g.call(ctx, g.cfg.ModelFor("solution"), parts)
}

func (g *gemini) AnalyzeDebug(ctx context.Context, images [][]byte, info *ProblemInfo, language string) (string, error) {
	return g.call(ctx, g.cfg.ModelFor("debugging"), geminiParts(debugPrompt(info, language), images))
}
