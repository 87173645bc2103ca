package flows

import (
	"context"
	"log/slog"

	"github.com/esshva/quinn/internal/model"
	"github.com/esshva/quinn/internal/reasoning"
)

// Stage is one named step in a flow. Run receives the current state and
// returns a partial update to merge. A stage never aborts the graph for
// recoverable problems; missing upstream data or unparseable reasoning
// output produces a degraded update (empty lists, zero scores, a note in
// the error accumulator) so the run still reaches a terminal result.
type Stage struct {
	Name    string
	Message string // human progress message shown while the stage runs
	Run     func(ctx context.Context, s State) map[string]any
}

// Graph is the fixed ordered stage list for one flow type. No branching,
// no cycles, no skipping: every stage always runs.
type Graph struct {
	Flow   model.FlowType
	Stages []Stage
}

// NotifyFunc is called after each stage's update has been merged. Index is
// 1-based; total is constant for the graph's lifetime.
type NotifyFunc func(stage Stage, index, total int)

// Execute runs every stage in order against the state bag. After each
// stage it merges the update, records the current-stage marker, then
// signals the host. Returns the final state.
func (g Graph) Execute(ctx context.Context, s State, notify NotifyFunc) State {
	total := len(g.Stages)
	for i, stage := range g.Stages {
		update := stage.Run(ctx, s)
		s.Merge(update)
		s[KeyCurrentStage] = stage.Name
		if notify != nil {
			notify(stage, i+1, total)
		}
	}
	return s
}

// Retriever pulls supporting context for proposal drafting from an
// external knowledge store. Failure is non-fatal; the flow continues
// with an empty result.
type Retriever interface {
	Retrieve(ctx context.Context, contextText string, requirements []string, n int) ([]model.RetrievedSection, error)
}

// Tunables are the pipeline coefficients. The health formula constants
// mirror historical behavior and are not known to be load-bearing, so they
// stay adjustable rather than hard-coded.
type Tunables struct {
	SentimentWeight   float64
	TrendThreshold    int
	AutoAssignLimit   int
	MaxDocumentChars  int
	ExtractionTokens  int
	AnalysisTokens    int
	DecisionTokens    int
	GenerationTokens  int
	RetrievalSections int
}

// DefaultTunables returns the standard coefficients.
func DefaultTunables() Tunables {
	return Tunables{
		SentimentWeight:   15,
		TrendThreshold:    5,
		AutoAssignLimit:   5,
		MaxDocumentChars:  50000,
		ExtractionTokens:  4096,
		AnalysisTokens:    2048,
		DecisionTokens:    1024,
		GenerationTokens:  8192,
		RetrievalSections: 10,
	}
}

// Deps holds everything a flow definition needs. Retriever may be nil for
// flows that never retrieve; Reasoner may be nil, in which case reasoning
// stages degrade as if the model returned nothing parseable.
type Deps struct {
	Reasoner  reasoning.Client
	Retriever Retriever
	Tunables  Tunables
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// generate calls the reasoner, treating an absent client or transport
// error as an empty response so the calling stage takes its degraded path.
func (d Deps) generate(ctx context.Context, prompt string, maxTokens int) string {
	if d.Reasoner == nil {
		return ""
	}
	out, err := d.Reasoner.Generate(ctx, prompt, maxTokens)
	if err != nil {
		d.logger().Warn("reasoner call failed", "error", err)
		return ""
	}
	return out
}
