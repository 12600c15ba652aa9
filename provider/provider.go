// Package provider adapts the three supported AI backends to one
// interface: problem extraction from screenshots, solution generation,
// and debug analysis. All failures are normalized through Error.
package provider

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"lexa/config"
)

const (
	// GenerateSolution gets a hard deadline regardless of the transport
	// timeout, it is the longest model call in the pipeline.
	solutionTimeout = 120 * time.Second

	// Per-request transport timeout for extraction and debug calls.
	requestTimeout = 60 * time.Second
)

// ProblemInfo is the structured output of the extraction stage and the
// input to both the solution and debug stages.
type ProblemInfo struct {
	ProblemStatement string `json:"problem_statement"`
	Constraints      string `json:"constraints,omitempty"`
	ExampleInput     string `json:"example_input,omitempty"`
	ExampleOutput    string `json:"example_output,omitempty"`
	AudioContext     string `json:"audio_context,omitempty"`
}

// Client is one configured AI backend.
type Client interface {
	Name() config.Provider

	// ExtractProblem reads the screenshots (PNG bytes) and returns the
	// structured problem. transcript, when non-empty, is spoken context
	// captured alongside the screenshots.
	ExtractProblem(ctx context.Context, images [][]byte, language, transcript string) (*ProblemInfo, error)

	// GenerateSolution produces the solution text for a previously
	// extracted problem. Bounded by solutionTimeout.
	GenerateSolution(ctx context.Context, info *ProblemInfo, language string) (string, error)

	// AnalyzeDebug compares the original problem with new screenshots of
	// code or error output and returns debugging guidance.
	AnalyzeDebug(ctx context.Context, images [][]byte, info *ProblemInfo, language string) (string, error)
}

// New builds the client selected by cfg. A missing key is a
// configuration error, not a transport one.
func New(cfg config.Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, newError(KindNotConfigured, cfg.APIProvider, "no API key configured")
	}
	switch cfg.APIProvider {
	case config.ProviderOpenAI:
		return newOpenAI(cfg), nil
	case config.ProviderGemini:
		return newGemini(cfg), nil
	case config.ProviderAnthropic:
		return newAnthropic(cfg), nil
	}
	return nil, newError(KindNotConfigured, cfg.APIProvider, "unknown provider")
}

// solutionContext applies the hard deadline for the solution stage on
// top of whatever the caller passed in.
func solutionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, solutionTimeout)
}

// stripFences removes markdown code fences that models like to wrap
// around JSON output.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func encodePNG(img []byte) string {
	return base64.StdEncoding.EncodeToString(img)
}

const extractionSystemPrompt = "You are a coding challenge interpreter. " +
	"Analyze the screenshots of the coding problem and extract all relevant information. " +
	"Return the information in JSON format with these fields: " +
	"problem_statement, constraints, example_input, example_output. " +
	"Just return the structured JSON without any other text."

// extractionSystem picks the system prompt for the extraction stage.
// With a transcript present it asks for the extra audio_context field.
func extractionSystem(transcript string) string {
	if transcript == "" {
		return extractionSystemPrompt
	}
	var b strings.Builder
	b.WriteString("You are a coding challenge interpreter. ")
	b.WriteString("Analyze the screenshots of the coding problem and the accompanying audio transcript to extract all relevant information.\n\n")
	b.WriteString("AUDIO TRANSCRIPT: \"")
	b.WriteString(transcript)
	b.WriteString("\"\n\n")
	b.WriteString("Use both the visual information from the screenshots and the audio context to better understand the problem. The audio might contain:\n")
	b.WriteString("- Additional clarifications about the problem\n")
	b.WriteString("- Constraints or requirements not visible in the screenshot\n")
	b.WriteString("- Examples or hints from the interviewer\n")
	b.WriteString("- Questions or discussions about the problem\n\n")
	b.WriteString("Return the information in JSON format with these fields: ")
	b.WriteString("problem_statement, constraints, example_input, example_output, audio_context. ")
	b.WriteString("Include an audio_context field that summarizes any additional insights from the audio that aren't visible in the screenshots. ")
	b.WriteString("Just return the structured JSON without any other text.")
	return b.String()
}

const debugSystemPrompt = "You are a coding assistant that helps debug and improve solutions. " +
	"Analyze these screenshots which may contain code, error messages, or test failures, " +
	"and provide detailed debugging help."

func extractionPrompt(language, transcript string) string {
	if transcript != "" {
		return "Extract the coding problem details from these screenshots and audio transcript. " +
			"Return in JSON format. Preferred coding language: " + language + "."
	}
	var b strings.Builder
	b.WriteString("Extract the coding problem details from these screenshots. ")
	b.WriteString("Return in JSON format. ")
	b.WriteString("Preferred coding language we gonna use for this problem is ")
	b.WriteString(language)
	b.WriteString(".")
	return b.String()
}

func solutionPrompt(info *ProblemInfo, language string) string {
	var b strings.Builder
	b.WriteString("Generate a detailed solution for the following coding problem:\n\n")
	b.WriteString("PROBLEM STATEMENT:\n")
	b.WriteString(info.ProblemStatement)
	b.WriteString("\n\nCONSTRAINTS:\n")
	b.WriteString(orDefault(info.Constraints, "No specific constraints provided."))
	b.WriteString("\n\nEXAMPLE INPUT:\n")
	b.WriteString(orDefault(info.ExampleInput, "No example input provided."))
	b.WriteString("\n\nEXAMPLE OUTPUT:\n")
	b.WriteString(orDefault(info.ExampleOutput, "No example output provided."))
	if info.AudioContext != "" {
		b.WriteString("\n\nADDITIONAL SPOKEN CONTEXT:\n")
		b.WriteString(info.AudioContext)
	}
	b.WriteString("\n\nLANGUAGE: ")
	b.WriteString(language)
	b.WriteString("\n\nProvide the response in the following format:\n")
	b.WriteString("Explanation: A clear explanation of your approach.\n")
	b.WriteString("```" + language + "\nThe complete solution code.\n```\n")
	b.WriteString("Approach: Step-by-step description of the algorithm.\n")
	b.WriteString("Time Complexity: O(X) with a short justification.\n")
	b.WriteString("Space Complexity: O(X) with a short justification.\n")
	return b.String()
}

func debugPrompt(info *ProblemInfo, language string) string {
	var b strings.Builder
	b.WriteString("I am solving this coding problem: \"")
	b.WriteString(info.ProblemStatement)
	b.WriteString("\" in ")
	b.WriteString(language)
	b.WriteString(". I need help debugging or improving my solution. ")
	b.WriteString("Here are screenshots of my code, error messages, or test cases. ")
	b.WriteString("Please provide a detailed analysis with:\n")
	b.WriteString("1. What issues you found in my code\n")
	b.WriteString("2. Specific improvements and corrections\n")
	b.WriteString("3. Any optimizations that would make the solution better\n")
	b.WriteString("4. A clear explanation of the changes needed")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
