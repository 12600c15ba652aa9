package main

import (
	"fmt"
	"strings"
	"sync"

	"lexa/processing"
	"lexa/provider"
)

// consoleSink renders pipeline events as teleprompter-style terminal
// output. Events arrive from coordinator goroutines, so rendering is
// serialized and anything from a superseded cycle is dropped.
type consoleSink struct {
	mu        sync.Mutex
	lastCycle uint64
}

func (s *consoleSink) fresh(cycle uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle < s.lastCycle {
		return false
	}
	s.lastCycle = cycle
	return true
}

func (s *consoleSink) InitialStart(cycle uint64) {
	if s.fresh(cycle) {
		fmt.Println("\n--- processing screenshots ---")
	}
}

func (s *consoleSink) ProblemExtracted(cycle uint64, info *provider.ProblemInfo) {
	if !s.fresh(cycle) {
		return
	}
	fmt.Println("\nProblem:")
	fmt.Println(indent(info.ProblemStatement))
	if info.Constraints != "" {
		fmt.Println("Constraints:")
		fmt.Println(indent(info.Constraints))
	}
	if info.AudioContext != "" {
		fmt.Println("Spoken context:")
		fmt.Println(indent(info.AudioContext))
	}
}

func (s *consoleSink) SolutionSuccess(cycle uint64, sol *processing.Solution) {
	if !s.fresh(cycle) {
		return
	}
	fmt.Println("\n=== solution ===")
	fmt.Println(sol.Explanation)
	fmt.Printf("\n```%s\n%s\n```\n", sol.Language, sol.Code)
	fmt.Println("\nApproach: " + sol.Approach)
	fmt.Println("Time:  " + sol.TimeComplexity)
	fmt.Println("Space: " + sol.SpaceComplexity)
}

func (s *consoleSink) SolutionError(cycle uint64, err error) {
	if s.fresh(cycle) {
		fmt.Printf("\nprocessing failed: %v\n", err)
	}
}

func (s *consoleSink) DebugStart(cycle uint64) {
	if s.fresh(cycle) {
		fmt.Println("\n--- analyzing debug screenshots ---")
	}
}

func (s *consoleSink) DebugSuccess(cycle uint64, res *processing.DebugResult) {
	if !s.fresh(cycle) {
		return
	}
	fmt.Println("\n=== debug analysis ===")
	for _, th := range res.Thoughts {
		fmt.Println("  • " + th)
	}
	fmt.Println()
	fmt.Println(res.Analysis)
}

func (s *consoleSink) DebugError(cycle uint64, err error) {
	if s.fresh(cycle) {
		fmt.Printf("\ndebug analysis failed: %v\n", err)
	}
}

func (s *consoleSink) Progress(cycle uint64, message string, percent int) {
	s.mu.Lock()
	stale := cycle < s.lastCycle
	s.mu.Unlock()
	if !stale {
		fmt.Printf("[%3d%%] %s\n", percent, message)
	}
}

func (s *consoleSink) NoScreenshots() {
	fmt.Println("nothing to process")
}

func (s *consoleSink) ProviderNotConfigured() {
	fmt.Println("no AI provider configured — set an API key first (set api_key <key>)")
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
