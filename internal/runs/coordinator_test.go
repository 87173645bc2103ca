package runs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esshva/quinn/internal/flows"
	"github.com/esshva/quinn/internal/model"
	"github.com/esshva/quinn/internal/reasoning"
)

type fakeSource struct {
	deal    model.Deal
	dealErr error
	docs    model.DocumentBundle
	reqs    []model.Requirement
	comms   []model.Communication
}

func (f *fakeSource) Deal(context.Context, string) (model.Deal, error) {
	return f.deal, f.dealErr
}

func (f *fakeSource) Documents(context.Context, string) (model.DocumentBundle, error) {
	return f.docs, nil
}

func (f *fakeSource) Requirements(context.Context, string) ([]model.Requirement, error) {
	return f.reqs, nil
}

func (f *fakeSource) Communications(context.Context, string) ([]model.Communication, error) {
	return f.comms, nil
}

type fakeRoster struct {
	records []model.CapabilityRecord
	profile model.OrgProfile
	err     error
}

func (f *fakeRoster) Capabilities(context.Context) ([]model.CapabilityRecord, error) {
	return f.records, f.err
}

func (f *fakeRoster) Profile(context.Context) (model.OrgProfile, error) {
	return f.profile, nil
}

// collect drains a subscription until the broker closes it at the terminal
// event.
func collect(t *testing.T, ch <-chan model.ProgressEvent) []model.ProgressEvent {
	t.Helper()
	var events []model.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("run did not finish, saw %d events", len(events))
		}
	}
}

func testDeal() model.Deal {
	return model.Deal{
		ID:         "deal-1",
		Title:      "Platform build",
		ClientName: "Northwind",
		Value:      250000,
	}
}

func qualificationReasoner() *reasoning.StaticClient {
	return &reasoning.StaticClient{
		Replies: []reasoning.StaticReply{
			{Contains: "extract structured information", Text: `{
				"requirements": [
					{"category": "technical", "text": "Migrate workloads to kubernetes clusters", "priority": "must_have", "confidence": 0.9},
					{"category": "technical", "text": "Provision infrastructure with terraform modules", "priority": "should_have", "confidence": 0.8}
				],
				"entities": {"client_name": "Northwind", "industry": "Logistics"}
			}`},
			{Contains: "assess deal viability", Text: `{
				"capability_match_percent": 82,
				"strong_areas": ["kubernetes"],
				"resource_estimate": {"key_roles": ["platform engineer"]}
			}`},
			{Contains: "qualification decision", Text: `{
				"recommendation": "go",
				"confidence_score": 0.9,
				"reasoning": "Strong platform coverage."
			}`},
		},
	}
}

func TestCoordinatorQualificationRun(t *testing.T) {
	source := &fakeSource{
		deal: testDeal(),
		docs: model.DocumentBundle{
			CombinedText: "=== [RFP] Platform build ===\nMigrate workloads to kubernetes.",
			Documents:    []model.DocumentRef{{ID: "doc-1", Filename: "rfp.pdf"}},
		},
	}
	roster := &fakeRoster{
		records: []model.CapabilityRecord{
			{ID: "e1", Name: "Mika", Role: "Platform Engineer", Skills: []string{"kubernetes", "terraform"}, AvailabilityPercent: 80, HourlyRate: 120},
			{ID: "e2", Name: "Noor", Role: "Designer", Skills: []string{"figma"}, AvailabilityPercent: 100, HourlyRate: 90},
		},
		profile: model.OrgProfile{BrandName: "Asha"},
	}
	c := NewCoordinator(CoordinatorConfig{
		Deals:    source,
		Roster:   roster,
		Reasoner: qualificationReasoner(),
		Tunables: flows.DefaultTunables(),
	})

	// A human staffing choice made before the run must survive the plan.
	c.Assignments().(*MemoryAssignments).AddManual(context.Background(), model.Assignment{
		ID: "manual-1", DealID: "deal-1", EmployeeID: "e9", Name: "Sam",
	})

	runID, err := c.Start(context.Background(), model.FlowQualification, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	require.NotEmpty(t, events)

	prev := 0
	for _, ev := range events {
		assert.Greater(t, ev.StageIndex, prev, "stage indices strictly increase")
		assert.Equal(t, 5, ev.TotalStages)
		prev = ev.StageIndex
	}

	last := events[len(events)-1]
	assert.Equal(t, model.EventCompleted, last.Status)
	assert.Equal(t, 5, last.StageIndex)
	assert.Equal(t, model.RecommendGo, last.Data["recommendation"])
	assert.Equal(t, 0.9, last.Data["confidence_score"])
	assert.Equal(t, 2, last.Data["requirements_found"])
	assert.Equal(t, 1, last.Data["auto_assigned"])

	run, err := c.Status(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.Equal(t, 5, run.StageIndex)

	staffed, err := c.Assignments().List(context.Background(), "deal-1")
	require.NoError(t, err)
	require.Len(t, staffed, 2)
	assert.Equal(t, "manual-1", staffed[0].ID)
	assert.Equal(t, "e1", staffed[1].EmployeeID)
	assert.Equal(t, model.AssignedAuto, staffed[1].AssignedBy)
}

func TestCoordinatorRunFailsWhenDealMissing(t *testing.T) {
	source := &fakeSource{dealErr: errors.New("no row")}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "nope")
	require.NoError(t, err, "input problems surface on the run, not the trigger")

	events := collect(t, c.Subscribe(runID))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.EventFailed, last.Status)
	assert.Equal(t, 0, last.StageIndex)
	assert.Equal(t, "deal not found", last.Message)

	run, err := c.Status(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Equal(t, "deal not found", run.Error)
}

func TestCoordinatorQualificationRequiresDocuments(t *testing.T) {
	source := &fakeSource{deal: testDeal()}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowQualification, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	last := events[len(events)-1]
	assert.Equal(t, model.EventFailed, last.Status)
	assert.Equal(t, "no processed documents found for this deal", last.Message)
}

func TestCoordinatorMonitoringWithoutCommunications(t *testing.T) {
	client := &reasoning.StaticClient{}
	source := &fakeSource{deal: testDeal()}
	c := NewCoordinator(CoordinatorConfig{
		Deals:    source,
		Reasoner: client,
		Tunables: flows.DefaultTunables(),
	})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	last := events[len(events)-1]
	assert.Equal(t, model.EventCompleted, last.Status)
	assert.Equal(t, 4, last.StageIndex)
	assert.Equal(t, 4, last.TotalStages)
	assert.Equal(t, 0, last.Data["alerts_generated"])
	assert.Equal(t, 70, last.Data["health_score"])

	assert.Empty(t, client.Prompts, "no reasoning calls without communications")
}

func TestCoordinatorMonitoringRun(t *testing.T) {
	source := &fakeSource{
		deal: testDeal(),
		comms: []model.Communication{
			{Type: "email", From: "pat@northwind.example", Subject: "Concerns", Content: "We are disappointed with the delays."},
		},
	}
	client := &reasoning.StaticClient{
		Replies: []reasoning.StaticReply{
			{Contains: "Analyze the sentiment", Text: `{
				"overall_sentiment": -0.7,
				"scores": [{"index": 0, "sentiment": -0.7, "signals": ["disappointed"]}]
			}`},
			{Contains: "recovery strategy", Text: `{
				"recovery_email": "Subject: Getting back on track\nHi Pat, here is our plan.",
				"recovery_actions": ["Schedule a call"]
			}`},
		},
	}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Reasoner: client, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	prev := 0
	for _, ev := range events {
		assert.Greater(t, ev.StageIndex, prev)
		prev = ev.StageIndex
	}

	last := events[len(events)-1]
	require.Equal(t, model.EventCompleted, last.Status)
	assert.Equal(t, -0.7, last.Data["sentiment"])
	alerts, ok := last.Data["alerts"].([]model.Alert)
	require.True(t, ok)
	require.NotEmpty(t, alerts)
	assert.Equal(t, model.SeverityCritical, alerts[0].Severity)
	recovery, ok := last.Data["recovery"].(model.RecoveryPlan)
	require.True(t, ok)
	assert.Equal(t, "Getting back on track", recovery.EmailSubject)
}

func TestCoordinatorProposalRun(t *testing.T) {
	source := &fakeSource{
		deal: testDeal(),
		reqs: []model.Requirement{
			{Category: "technical", Text: "Kubernetes hosting", Confidence: 0.9},
		},
	}
	client := &reasoning.StaticClient{
		Replies: []reasoning.StaticReply{
			{Contains: "senior proposal writer", Text: "# Introduction\nWe are glad to help.\n\n# Next Steps\nSign here."},
			{Contains: "compliance checker", Text: `{"compliance_score": 0.95, "issues": []}`},
		},
	}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Reasoner: client, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowProposal, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	last := events[len(events)-1]
	require.Equal(t, model.EventCompleted, last.Status)
	assert.Equal(t, 3, last.TotalStages)
	assert.Equal(t, 0.95, last.Data["compliance_score"])

	proposal, ok := last.Data["proposal"].(model.Proposal)
	require.True(t, ok)
	assert.Equal(t, "Proposal - Northwind - Platform build", proposal.Title)
	assert.Len(t, proposal.Sections, 2)
}

func TestCoordinatorRejectsUnknownFlow(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Deals: &fakeSource{}, Tunables: flows.DefaultTunables()})
	_, err := c.Start(context.Background(), model.FlowType("audit"), "deal-1")
	require.Error(t, err)
}

// panicReasoner answers through inner until a prompt contains trigger,
// then panics, standing in for a client bug surfacing mid-run.
type panicReasoner struct {
	inner   reasoning.Client
	trigger string
}

func (p *panicReasoner) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.Contains(prompt, p.trigger) {
		panic("reasoner client bug")
	}
	return p.inner.Generate(ctx, prompt, maxTokens)
}

func TestCoordinatorPanicInFinalStageReportsThatStage(t *testing.T) {
	source := &fakeSource{
		deal: testDeal(),
		comms: []model.Communication{
			{Type: "email", From: "pat@northwind.example", Subject: "Concerns", Content: "We are disappointed with the delays."},
		},
	}
	inner := &reasoning.StaticClient{
		Replies: []reasoning.StaticReply{
			{Contains: "Analyze the sentiment", Text: `{
				"overall_sentiment": -0.7,
				"scores": [{"index": 0, "sentiment": -0.7, "signals": ["disappointed"]}]
			}`},
		},
	}
	// The negative sentiment guarantees alerts, so the recovery stage
	// calls the reasoner and hits the panic on the last stage.
	client := &panicReasoner{inner: inner, trigger: "recovery strategy"}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Reasoner: client, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, model.EventFailed, last.Status)
	assert.Equal(t, 4, last.StageIndex, "failed event names the stage that was running")
	assert.Equal(t, 4, last.TotalStages)
	assert.LessOrEqual(t, last.StageIndex, last.TotalStages)
}

func TestCoordinatorPanicInFirstStageReportsThatStage(t *testing.T) {
	source := &fakeSource{
		deal: testDeal(),
		comms: []model.Communication{
			{Type: "email", From: "pat@northwind.example", Subject: "Hi", Content: "Quick update."},
		},
	}
	client := &panicReasoner{inner: &reasoning.StaticClient{}, trigger: "Analyze the sentiment"}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Reasoner: client, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	last := events[len(events)-1]
	require.Equal(t, model.EventFailed, last.Status)
	assert.Equal(t, 1, last.StageIndex)
}

func TestCoordinatorRecoversFromPanic(t *testing.T) {
	// A nil deal source panics inside the run goroutine; the run must
	// still reach a terminal failed status instead of crashing the host.
	c := NewCoordinator(CoordinatorConfig{Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowQualification, "deal-1")
	require.NoError(t, err)

	events := collect(t, c.Subscribe(runID))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.EventFailed, last.Status)
	assert.Contains(t, last.Message, "internal error")
}

func TestCoordinatorLateSubscriberSeesTerminalEvent(t *testing.T) {
	client := &reasoning.StaticClient{}
	source := &fakeSource{deal: testDeal()}
	c := NewCoordinator(CoordinatorConfig{Deals: source, Reasoner: client, Tunables: flows.DefaultTunables()})

	runID, err := c.Start(context.Background(), model.FlowMonitoring, "deal-1")
	require.NoError(t, err)
	collect(t, c.Subscribe(runID))

	late := collect(t, c.Subscribe(runID))
	require.Len(t, late, 1)
	assert.Equal(t, model.EventCompleted, late[0].Status)

	run, err := c.Status(runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
}

func TestCoordinatorStatusUnknownRun(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{Deals: &fakeSource{}, Tunables: flows.DefaultTunables()})
	_, err := c.Status(uuid.New())
	require.Error(t, err)
}
