package processing

import (
	"regexp"
	"strings"
)

// Model output is free-form text with loosely labeled sections. The
// parsers below pull the sections out and substitute stable fallbacks
// so the display layer never sees a half-empty result.

var (
	codeBlockRe = regexp.MustCompile("(?s)```([a-zA-Z0-9+#-]*)\n?(.*?)```")

	sectionEnd = `(?:\n\s*(?:Explanation|Analysis|Problem Analysis|Approach|Strategy|Method|Time Complexity|Time|Space Complexity|Space)\s*:|\n` + "```" + `|$)`

	explanationRe = regexp.MustCompile(`(?si)(?:Explanation|Analysis|Problem Analysis)\s*:\s*(.*?)` + sectionEnd)
	approachRe    = regexp.MustCompile(`(?si)(?:Approach|Strategy|Method)\s*:\s*(.*?)` + sectionEnd)
	timeRe        = regexp.MustCompile(`(?si)(?:Time Complexity|Time)\s*:\s*(.*?)` + sectionEnd)
	spaceRe       = regexp.MustCompile(`(?si)(?:Space Complexity|Space)\s*:\s*(.*?)` + sectionEnd)

	bulletRe = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+\.)\s+(.+)$`)
	headerRe = regexp.MustCompile(`(?m)^#{1,2} `)
)

const (
	fallbackExplanation = "AI analysis of the provided code or problem."
	fallbackCode        = "// No code solution provided"
	fallbackApproach    = "Step-by-step problem solving approach."
	fallbackTime        = "O(n) - Analysis pending"
	fallbackSpace       = "O(1) - Analysis pending"

	debugCodeSentinel = "// Debug mode - see analysis below"
	debugComplexity   = "N/A - Debug mode"
)

func section(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseSolution extracts the labeled sections of a solution response.
// The reported language comes from the code fence tag alone, an
// untagged fence defaults to javascript.
func ParseSolution(text string) *Solution {
	sol := &Solution{
		Explanation:     section(explanationRe, text),
		Approach:        section(approachRe, text),
		TimeComplexity:  section(timeRe, text),
		SpaceComplexity: section(spaceRe, text),
	}

	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		if m[1] != "" {
			sol.Language = m[1]
		}
		sol.Code = strings.TrimSpace(m[2])
	}

	if sol.Explanation == "" {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			sol.Explanation = trimmed
		} else {
			sol.Explanation = fallbackExplanation
		}
	}
	if sol.Code == "" {
		sol.Code = fallbackCode
	}
	if sol.Language == "" {
		sol.Language = "javascript"
	}
	if sol.Approach == "" {
		sol.Approach = fallbackApproach
	}
	if sol.TimeComplexity == "" {
		sol.TimeComplexity = fallbackTime
	}
	if sol.SpaceComplexity == "" {
		sol.SpaceComplexity = fallbackSpace
	}
	return sol
}

var debugHeaderRewrites = []struct {
	re     *regexp.Regexp
	header string
}{
	{regexp.MustCompile(`(?i)issues identified|problems found|bugs found`), "## Issues Identified"},
	{regexp.MustCompile(`(?i)code improvements|suggested changes|improvements`), "## Code Improvements"},
	{regexp.MustCompile(`(?i)optimizations|performance improvements`), "## Optimizations"},
	{regexp.MustCompile(`(?i)detailed analysis|explanation`), "## Explanation"},
}

// ParseDebug shapes a debug response for display. Debug output is
// analysis-first: code is optional and complexity is not meaningful.
func ParseDebug(text string) *DebugResult {
	res := &DebugResult{
		Code:            debugCodeSentinel,
		TimeComplexity:  debugComplexity,
		SpaceComplexity: debugComplexity,
	}

	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		if code := strings.TrimSpace(m[2]); code != "" {
			res.Code = code
		}
	}

	analysis := strings.TrimSpace(text)
	if !headerRe.MatchString(analysis) {
		for _, rw := range debugHeaderRewrites {
			analysis = rw.re.ReplaceAllString(analysis, rw.header)
		}
	}
	res.Analysis = analysis

	for _, m := range bulletRe.FindAllStringSubmatch(text, 5) {
		res.Thoughts = append(res.Thoughts, strings.TrimSpace(m[1]))
	}
	if len(res.Thoughts) == 0 {
		res.Thoughts = []string{"Debug analysis based on your screenshots"}
	}
	return res
}
