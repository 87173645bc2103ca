// Command quinn runs one deal intelligence pipeline against fixture data
// and prints the result as JSON.
//
// Usage:
//
//	quinn --flow qualification --deal-file deal.json --roster-file roster.json
//
// Progress is logged to stderr; the final result document goes to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/esshva/quinn/internal/config"
	"github.com/esshva/quinn/internal/flows"
	"github.com/esshva/quinn/internal/model"
	"github.com/esshva/quinn/internal/reasoning"
	"github.com/esshva/quinn/internal/runs"
	"github.com/esshva/quinn/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("QUINN_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	flowName := flag.String("flow", "qualification", "pipeline to run: qualification, proposal, or monitoring")
	dealFile := flag.String("deal-file", "deal.json", "path to the deal fixture JSON")
	rosterFile := flag.String("roster-file", "", "path to the roster fixture JSON (optional)")
	flag.Parse()

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flow, err := model.ParseFlowType(*flowName)
	if err != nil {
		return err
	}

	slog.Info("quinn starting", "version", version, "flow", flow, "reasoner", cfg.ReasonerProvider)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	source, err := loadFixtureSource(*dealFile, *rosterFile)
	if err != nil {
		return err
	}

	reasoner, err := newReasoner(cfg)
	if err != nil {
		return err
	}

	coordinator := runs.NewCoordinator(runs.CoordinatorConfig{
		Deals:       source,
		Roster:      source,
		Reasoner:    reasoner,
		Tunables:    tunables(cfg),
		RunCapacity: cfg.RunCapacity,
		Logger:      logger,
	})

	runID, err := coordinator.Start(ctx, flow, source.fixture.Deal.ID)
	if err != nil {
		return err
	}

	events := coordinator.Subscribe(runID)
	var terminal model.ProgressEvent
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return printResult(coordinator, runID, terminal)
			}
			terminal = ev
			slog.Info("progress",
				"stage", ev.Stage,
				"stage_index", ev.StageIndex,
				"total_stages", ev.TotalStages,
				"status", ev.Status,
				"message", ev.Message)
		case <-ctx.Done():
			coordinator.Unsubscribe(runID, events)
			return ctx.Err()
		}
	}
}

func printResult(coordinator *runs.Coordinator, runID uuid.UUID, terminal model.ProgressEvent) error {
	run, err := coordinator.Status(runID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))

	if terminal.Status == model.EventFailed {
		return fmt.Errorf("run failed: %s", run.Error)
	}
	return nil
}

// newReasoner builds the configured reasoning client. Provider "none"
// returns a static client whose empty replies drive every flow down its
// degraded path, useful for dry runs against fixtures.
func newReasoner(cfg config.Config) (reasoning.Client, error) {
	switch cfg.ReasonerProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when QUINN_REASONER=openai")
		}
		return reasoning.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.ReasonerTimeout), nil
	case "ollama":
		return reasoning.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.ReasonerTimeout), nil
	default:
		return &reasoning.StaticClient{}, nil
	}
}

func tunables(cfg config.Config) flows.Tunables {
	return flows.Tunables{
		SentimentWeight:   cfg.SentimentWeight,
		TrendThreshold:    cfg.TrendThreshold,
		AutoAssignLimit:   cfg.AutoAssignLimit,
		MaxDocumentChars:  cfg.MaxDocumentChars,
		ExtractionTokens:  cfg.ExtractionTokens,
		AnalysisTokens:    cfg.AnalysisTokens,
		DecisionTokens:    cfg.DecisionTokens,
		GenerationTokens:  cfg.GenerationTokens,
		RetrievalSections: cfg.RetrievalSections,
	}
}
