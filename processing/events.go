package processing

import "lexa/provider"

// Solution is the parsed output of the solution stage, ready for
// display.
type Solution struct {
	Explanation     string
	Code            string
	Language        string
	Approach        string
	TimeComplexity  string
	SpaceComplexity string
}

// DebugResult is the parsed output of the debug stage.
type DebugResult struct {
	Code            string
	Analysis        string
	Thoughts        []string
	TimeComplexity  string
	SpaceComplexity string
}

// EventSink receives lifecycle notifications from the coordinator.
// Every event tied to a processing run carries its cycle ID, so a sink
// that renders asynchronously can drop output from superseded runs.
type EventSink interface {
	InitialStart(cycle uint64)
	ProblemExtracted(cycle uint64, info *provider.ProblemInfo)
	SolutionSuccess(cycle uint64, sol *Solution)
	SolutionError(cycle uint64, err error)
	DebugStart(cycle uint64)
	DebugSuccess(cycle uint64, res *DebugResult)
	DebugError(cycle uint64, err error)
	Progress(cycle uint64, message string, percent int)
	NoScreenshots()
	ProviderNotConfigured()
}

// NopSink discards all events. Useful as an embedding base.
type NopSink struct{}

func (NopSink) InitialStart(uint64)                          {}
func (NopSink) ProblemExtracted(uint64, *provider.ProblemInfo) {}
func (NopSink) SolutionSuccess(uint64, *Solution)            {}
func (NopSink) SolutionError(uint64, error)                  {}
func (NopSink) DebugStart(uint64)                            {}
func (NopSink) DebugSuccess(uint64, *DebugResult)            {}
func (NopSink) DebugError(uint64, error)                     {}
func (NopSink) Progress(uint64, string, int)                 {}
func (NopSink) NoScreenshots()                               {}
func (NopSink) ProviderNotConfigured()                       {}
