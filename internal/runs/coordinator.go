package runs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/esshva/quinn/internal/flows"
	"github.com/esshva/quinn/internal/model"
	"github.com/esshva/quinn/internal/reasoning"
	"github.com/esshva/quinn/internal/telemetry"
)

// CoordinatorConfig wires the coordinator's collaborators. Deals is
// required; everything else degrades gracefully when absent.
type CoordinatorConfig struct {
	Deals       DealSource
	Roster      Roster
	Retriever   flows.Retriever
	Reasoner    reasoning.Client
	Assignments AssignmentStore
	Tunables    flows.Tunables
	RunCapacity int
	Logger      *slog.Logger
}

// Coordinator owns run lifecycles. Start triggers a run and returns its id
// immediately; the run executes every stage to a terminal status on its
// own goroutine. There is no cancellation: a caller may stop observing but
// cannot abort an in-flight run.
type Coordinator struct {
	deals       DealSource
	roster      Roster
	retriever   flows.Retriever
	reasoner    reasoning.Client
	assignments AssignmentStore
	tunables    flows.Tunables
	logger      *slog.Logger

	registry *Registry
	progress *Progress

	// rosterGroup deduplicates roster snapshot fetches across runs
	// triggered at the same time.
	rosterGroup singleflight.Group

	tracer        trace.Tracer
	runsStarted   metric.Int64Counter
	stageDuration metric.Float64Histogram
}

// NewCoordinator builds a coordinator and its run table and progress
// broker.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	assignments := cfg.Assignments
	if assignments == nil {
		assignments = NewMemoryAssignments()
	}

	meter := telemetry.Meter("quinn/runs")
	runsStarted, err := meter.Int64Counter("quinn.runs.started",
		metric.WithDescription("Pipeline runs triggered, by flow type."))
	if err != nil {
		logger.Warn("runs: create counter", "error", err)
	}
	stageDuration, err := meter.Float64Histogram("quinn.stage.duration",
		metric.WithDescription("Stage execution time in seconds."),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("runs: create histogram", "error", err)
	}

	return &Coordinator{
		deals:         cfg.Deals,
		roster:        cfg.Roster,
		retriever:     cfg.Retriever,
		reasoner:      cfg.Reasoner,
		assignments:   assignments,
		tunables:      cfg.Tunables,
		logger:        logger,
		registry:      NewRegistry(cfg.RunCapacity),
		progress:      NewProgress(),
		tracer:        telemetry.Tracer("quinn/runs"),
		runsStarted:   runsStarted,
		stageDuration: stageDuration,
	}
}

// Assignments exposes the staffing store so hosts can list or seed
// assignments around runs.
func (c *Coordinator) Assignments() AssignmentStore { return c.assignments }

// Start triggers a run and returns its id. Only an unknown flow type fails
// here; input-resolution problems surface as a failed run before stage 1.
func (c *Coordinator) Start(ctx context.Context, flow model.FlowType, dealID string) (uuid.UUID, error) {
	if _, err := model.ParseFlowType(string(flow)); err != nil {
		return uuid.Nil, err
	}

	now := time.Now()
	run := &model.Run{
		ID:          uuid.New(),
		Flow:        flow,
		DealID:      dealID,
		Status:      model.RunQueued,
		TotalStages: c.totalStages(flow),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, evicted := range c.registry.Put(run) {
		c.progress.Forget(evicted)
	}

	if c.runsStarted != nil {
		c.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", string(flow))))
	}
	c.logger.Info("run triggered", "run_id", run.ID, "flow", flow, "deal_id", dealID)

	// The run outlives the trigger's context: no cancellation primitive,
	// but trace linkage is kept.
	go c.execute(context.WithoutCancel(ctx), run.ID, flow, dealID)

	return run.ID, nil
}

// Status returns a snapshot of a run.
func (c *Coordinator) Status(runID uuid.UUID) (model.Run, error) {
	run, ok := c.registry.Get(runID)
	if !ok {
		return model.Run{}, fmt.Errorf("runs: run %s not found", runID)
	}
	return run, nil
}

// Subscribe streams progress events for a run. The stream starts with the
// last known event and terminates after a completed or failed event.
func (c *Coordinator) Subscribe(runID uuid.UUID) <-chan model.ProgressEvent {
	return c.progress.Subscribe(runID)
}

// Unsubscribe detaches an abandoned subscriber.
func (c *Coordinator) Unsubscribe(runID uuid.UUID, ch <-chan model.ProgressEvent) {
	c.progress.Unsubscribe(runID, ch)
}

func (c *Coordinator) totalStages(flow model.FlowType) int {
	return len(c.graphFor(flow).Stages)
}

func (c *Coordinator) graphFor(flow model.FlowType) flows.Graph {
	deps := flows.Deps{
		Reasoner:  c.reasoner,
		Retriever: c.retriever,
		Tunables:  c.tunables,
		Logger:    c.logger.With("flow", flow),
	}
	switch flow {
	case model.FlowProposal:
		return flows.Proposal(deps)
	case model.FlowMonitoring:
		return flows.Monitoring(deps)
	default:
		return flows.Qualification(deps)
	}
}

// execute drives one run to a terminal status. The recover boundary turns
// an escaped panic into a failed run; stage contracts make that rare.
func (c *Coordinator) execute(ctx context.Context, runID uuid.UUID, flow model.FlowType, dealID string) {
	lastIndex := 0
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("run panicked", "run_id", runID, "panic", r)
			// lastIndex is the stage that was in flight, or 0 when the
			// panic happened before stage 1.
			c.fail(runID, lastIndex, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, span := c.tracer.Start(ctx, "run."+string(flow),
		trace.WithAttributes(
			attribute.String("run.id", runID.String()),
			attribute.String("deal.id", dealID),
		))
	defer span.End()

	c.registry.Update(runID, func(run *model.Run) {
		run.Status = model.RunRunning
	})

	graph := c.graphFor(flow)
	total := len(graph.Stages)

	state, earlyResult, errMsg := c.resolveInputs(ctx, flow, dealID)
	if errMsg != "" {
		c.fail(runID, 0, errMsg)
		return
	}
	if earlyResult != nil {
		// Monitoring with nothing to analyze completes without running
		// the graph: zero alerts, an explanatory summary, and a final
		// event at the last stage index.
		c.complete(runID, graph.Stages[total-1].Name, total, "Monitoring complete, no recent communications found", earlyResult)
		return
	}

	for i := range graph.Stages {
		graph.Stages[i] = c.instrument(graph.Stages[i], runID, flow, i+1, total, &lastIndex)
	}
	final := graph.Execute(ctx, state, nil)

	message, result := c.finalize(ctx, flow, dealID, final)
	c.complete(runID, graph.Stages[total-1].Name, total, message, result)
}

// instrument wraps a stage with progress publishing, run-table bookkeeping,
// and tracing. A processing event goes out before the stage runs; the last
// stage's transition is reported only by the terminal event, which keeps
// stage indices strictly increasing across the stream.
func (c *Coordinator) instrument(stage flows.Stage, runID uuid.UUID, flow model.FlowType, index, total int, lastIndex *int) flows.Stage {
	inner := stage.Run
	stage.Run = func(ctx context.Context, s flows.State) map[string]any {
		*lastIndex = index
		c.registry.Update(runID, func(run *model.Run) {
			run.Stage = stage.Name
			run.StageIndex = index
		})
		if index < total {
			c.progress.Publish(model.ProgressEvent{
				RunID:       runID,
				Stage:       stage.Name,
				StageIndex:  index,
				TotalStages: total,
				Status:      model.EventProcessing,
				Message:     stage.Message,
			})
		}

		ctx, span := c.tracer.Start(ctx, "stage."+stage.Name,
			trace.WithAttributes(attribute.String("flow", string(flow))))
		start := time.Now()
		update := inner(ctx, s)
		span.End()
		if c.stageDuration != nil {
			c.stageDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(
					attribute.String("flow", string(flow)),
					attribute.String("stage", stage.Name),
				))
		}
		return update
	}
	return stage
}

// resolveInputs builds the initial state bag for a flow. A non-empty
// errMsg is fatal; a non-nil earlyResult short-circuits the run to
// completed without executing the graph.
func (c *Coordinator) resolveInputs(ctx context.Context, flow model.FlowType, dealID string) (state flows.State, earlyResult map[string]any, errMsg string) {
	deal, err := c.deals.Deal(ctx, dealID)
	if err != nil {
		return nil, nil, "deal not found"
	}

	state = flows.State{flows.KeyDeal: deal}

	switch flow {
	case model.FlowQualification:
		bundle, err := c.deals.Documents(ctx, dealID)
		if err != nil || bundle.CombinedText == "" {
			return nil, nil, "no processed documents found for this deal"
		}
		state[flows.KeyDocumentText] = bundle.CombinedText
		state[flows.KeyDocumentMeta] = map[string]any{
			"document_count": len(bundle.Documents),
			"documents":      bundle.Documents,
		}
		c.attachRoster(ctx, state)

	case model.FlowProposal:
		reqs, err := c.deals.Requirements(ctx, dealID)
		if err != nil {
			c.logger.Warn("requirements unavailable, drafting without them", "deal_id", dealID, "error", err)
			reqs = nil
		}
		state[flows.KeyRequirements] = reqs
		team, err := c.assignments.List(ctx, dealID)
		if err != nil {
			c.logger.Warn("assignments unavailable", "deal_id", dealID, "error", err)
			team = nil
		}
		state[flows.KeyTeam] = team
		c.attachRoster(ctx, state)

	case model.FlowMonitoring:
		comms, err := c.deals.Communications(ctx, dealID)
		if err != nil {
			c.logger.Warn("communications unavailable", "deal_id", dealID, "error", err)
			comms = nil
		}
		if len(comms) == 0 {
			health := deal.HealthScore
			if health == 0 {
				health = 70
			}
			return nil, map[string]any{
				"health_score":     health,
				"sentiment":        0.0,
				"alerts_generated": 0,
				"reason":           "no recent communications found",
			}, ""
		}
		state[flows.KeyCommunications] = comms
	}

	return state, nil, ""
}

// attachRoster adds the capability snapshot and org profile to the state.
// Concurrent runs share one fetch through singleflight. Failure degrades
// to an empty roster.
func (c *Coordinator) attachRoster(ctx context.Context, state flows.State) {
	if c.roster == nil {
		return
	}
	type snapshot struct {
		records []model.CapabilityRecord
		profile model.OrgProfile
	}
	v, err, _ := c.rosterGroup.Do("roster", func() (any, error) {
		records, err := c.roster.Capabilities(ctx)
		if err != nil {
			return nil, err
		}
		profile, err := c.roster.Profile(ctx)
		if err != nil {
			c.logger.Warn("org profile unavailable", "error", err)
			profile = model.OrgProfile{}
		}
		return snapshot{records: records, profile: profile}, nil
	})
	if err != nil {
		c.logger.Warn("roster unavailable, continuing without it", "error", err)
		state.Merge(map[string]any{flows.KeyErrors: []string{"roster unavailable: " + err.Error()}})
		return
	}
	snap := v.(snapshot)
	state[flows.KeyRoster] = snap.records
	state[flows.KeyOrgProfile] = snap.profile
}

// finalize applies flow side effects (staffing plans) and builds the
// result summary stored on the run and carried by the terminal event.
func (c *Coordinator) finalize(ctx context.Context, flow model.FlowType, dealID string, final flows.State) (string, map[string]any) {
	switch flow {
	case model.FlowQualification:
		decision := flows.Get[model.Decision](final, flows.KeyDecision)
		gap := flows.Get[model.GapAnalysis](final, flows.KeyGapAnalysis)
		plan := flows.Get[[]model.Assignment](final, flows.KeyAssignmentPlan)
		reqs := flows.Get[[]model.Requirement](final, flows.KeyRequirements)

		autoAssigned := 0
		if len(plan) > 0 {
			if err := c.assignments.Apply(ctx, dealID, plan); err != nil {
				c.logger.Warn("assignment plan not applied", "deal_id", dealID, "error", err)
			} else {
				autoAssigned = len(plan)
			}
		}
		return "Qualification complete", map[string]any{
			"recommendation":     decision.Recommendation,
			"confidence_score":   decision.ConfidenceScore,
			"decision":           decision,
			"gap_analysis":       gap,
			"requirements":       reqs,
			"requirements_found": len(reqs),
			"auto_assigned":      autoAssigned,
			"key_roles":          gap.ResourceEstimate.KeyRoles,
			"issues":             final.Errors(),
		}

	case model.FlowProposal:
		deal := flows.Get[model.Deal](final, flows.KeyDeal)
		proposal := model.Proposal{
			Title:           fmt.Sprintf("Proposal - %s - %s", deal.ClientName, deal.Title),
			Draft:           flows.Get[string](final, flows.KeyProposalDraft),
			Sections:        flows.Get[[]model.ProposalSection](final, flows.KeyProposalSections),
			ComplianceScore: flows.Get[float64](final, flows.KeyComplianceScore),
			Issues:          flows.Get[[]model.ComplianceIssue](final, flows.KeyComplianceIssues),
		}
		return "Proposal generated", map[string]any{
			"proposal":         proposal,
			"compliance_score": proposal.ComplianceScore,
			"sections":         len(proposal.Sections),
			"issues":           final.Errors(),
		}

	default: // monitoring
		alerts := flows.Get[[]model.Alert](final, flows.KeyAlerts)
		return "Monitoring complete", map[string]any{
			"health_score":     flows.Get[int](final, flows.KeyHealthScore),
			"trend":            flows.Get[model.Trend](final, flows.KeyTrend),
			"sentiment":        flows.Get[float64](final, flows.KeyOverallSentiment),
			"alerts":           alerts,
			"alerts_generated": len(alerts),
			"recovery":         flows.Get[model.RecoveryPlan](final, flows.KeyRecovery),
			"issues":           final.Errors(),
		}
	}
}

// complete transitions a run to completed and publishes the terminal
// event at the final stage index.
func (c *Coordinator) complete(runID uuid.UUID, finalStage string, total int, message string, result map[string]any) {
	c.registry.Update(runID, func(run *model.Run) {
		run.Status = model.RunCompleted
		run.Stage = finalStage
		run.StageIndex = total
		run.Result = result
	})
	c.progress.Publish(model.ProgressEvent{
		RunID:       runID,
		Stage:       finalStage,
		StageIndex:  total,
		TotalStages: total,
		Status:      model.EventCompleted,
		Message:     message,
		Data:        result,
	})
	c.logger.Info("run completed", "run_id", runID, "message", message)
}

// fail transitions a run to failed with a short human-readable reason.
func (c *Coordinator) fail(runID uuid.UUID, index int, reason string) {
	var total int
	c.registry.Update(runID, func(run *model.Run) {
		run.Status = model.RunFailed
		run.Error = reason
		total = run.TotalStages
	})
	c.progress.Publish(model.ProgressEvent{
		RunID:       runID,
		Stage:       "error",
		StageIndex:  index,
		TotalStages: total,
		Status:      model.EventFailed,
		Message:     reason,
	})
	c.logger.Error("run failed", "run_id", runID, "reason", reason)
}
