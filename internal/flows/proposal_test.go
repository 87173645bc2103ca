package flows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esshva/quinn/internal/model"
	"github.com/esshva/quinn/internal/reasoning"
)

type stubRetriever struct {
	sections []model.RetrievedSection
	err      error

	gotContext string
	gotReqs    []string
	gotN       int
}

func (r *stubRetriever) Retrieve(_ context.Context, contextText string, requirements []string, n int) ([]model.RetrievedSection, error) {
	r.gotContext = contextText
	r.gotReqs = requirements
	r.gotN = n
	return r.sections, r.err
}

func TestRetrieveStagePassesRequirementTexts(t *testing.T) {
	ret := &stubRetriever{sections: []model.RetrievedSection{{Text: "prior work", Source: "old.pdf", Relevance: 0.9}}}
	d := Deps{Retriever: ret, Tunables: DefaultTunables()}
	s := State{
		KeyDeal: model.Deal{ID: "deal-1", Title: "Platform build"},
		KeyRequirements: []model.Requirement{
			{Category: "technical", Text: "REST API"},
			{Category: "security", Text: "SSO login"},
		},
	}
	update := d.retrieveStage(context.Background(), s)

	assert.Equal(t, []string{"REST API", "SSO login"}, ret.gotReqs)
	assert.Equal(t, 10, ret.gotN)
	assert.Contains(t, ret.gotContext, "Platform build")
	assert.Len(t, update[KeyRetrievedSections], 1)
}

func TestRetrieveStageFailureIsNonFatal(t *testing.T) {
	ret := &stubRetriever{err: errors.New("vector store down")}
	d := Deps{Retriever: ret, Tunables: DefaultTunables()}
	update := d.retrieveStage(context.Background(), State{})

	assert.Empty(t, update[KeyRetrievedSections])
	require.Len(t, update[KeyErrors], 1)
	assert.Contains(t, update[KeyErrors].([]string)[0], "vector store down")
}

func TestRetrieveStageNilRetriever(t *testing.T) {
	d := Deps{Tunables: DefaultTunables()}
	update := d.retrieveStage(context.Background(), State{})
	assert.Empty(t, update[KeyRetrievedSections])
	assert.NotContains(t, update, KeyErrors)
}

func TestGenerateStageSplitsAndPromptsTeam(t *testing.T) {
	client := &reasoning.StaticClient{
		Fallback: "# Proposal: Platform build\n\nIntro text.\n\n## 1. Executive Summary\nWe will deliver.\n\n## 2. Next Steps\nSign here.\n",
	}
	d := Deps{Reasoner: client, Tunables: DefaultTunables()}
	s := State{
		KeyDeal: model.Deal{Title: "Platform build", ClientName: "Acme"},
		KeyRequirements: []model.Requirement{
			{Category: "technical", Text: "REST API"},
		},
		KeyTeam: []model.Assignment{
			{Name: "Asha", RoleOnDeal: "Backend Engineer", HourlyRate: 100, AllocationPercent: 50, Skills: []string{"python"}},
		},
		KeyRetrievedSections: []model.RetrievedSection{{Text: "prior work", Source: "old.pdf", Relevance: 0.9}},
	}
	update := d.generateStage(context.Background(), s)

	sections := update[KeyProposalSections].([]model.ProposalSection)
	require.Len(t, sections, 3)
	assert.Equal(t, "Proposal: Platform build", sections[0].Title)
	assert.Equal(t, "1. Executive Summary", sections[1].Title)

	require.Len(t, client.Prompts, 1)
	prompt := client.Prompts[0]
	assert.Contains(t, prompt, "Asha")
	// 100 $/hr * 160 h * 50% allocation.
	assert.Contains(t, prompt, "Monthly: $8000")
	assert.Contains(t, prompt, "prior work")
	assert.Contains(t, prompt, "TECHNICALLY HEAVY", "strategy hint for a technical-only requirement set")
}

func TestGenerateStageEmptyDraftRecordsError(t *testing.T) {
	d := Deps{Tunables: DefaultTunables()}
	update := d.generateStage(context.Background(), State{KeyDeal: model.Deal{Title: "X"}})

	assert.Equal(t, "", update[KeyProposalDraft])
	assert.Equal(t, []string{"proposal draft generation produced no text"}, update[KeyErrors])
}

func TestComplyStageNoRequirements(t *testing.T) {
	d := Deps{Tunables: DefaultTunables()}
	update := d.complyStage(context.Background(), State{KeyProposalDraft: "draft"})

	assert.Equal(t, 1.0, update[KeyComplianceScore])
	assert.Empty(t, update[KeyComplianceIssues])
}

func TestComplyStageDecodesAndClamps(t *testing.T) {
	client := &reasoning.StaticClient{
		Fallback: `The checks pass. {"compliance_score": 1.4, "issues": [{"requirement_index": 1, "requirement_text": "REST API", "status": "addressed", "notes": "covered in section 3"}]}`,
	}
	d := Deps{Reasoner: client, Tunables: DefaultTunables()}
	s := State{
		KeyProposalDraft: "## 3. Approach\nWe build a REST API.",
		KeyRequirements:  []model.Requirement{{Category: "technical", Text: "REST API"}},
	}
	update := d.complyStage(context.Background(), s)

	assert.Equal(t, 1.0, update[KeyComplianceScore])
	issues := update[KeyComplianceIssues].([]model.ComplianceIssue)
	require.Len(t, issues, 1)
	assert.Equal(t, model.ComplianceAddressed, issues[0].Status)
}

func TestComplyStageParseFailureDefaults(t *testing.T) {
	client := &reasoning.StaticClient{Fallback: "prose, no structure"}
	d := Deps{Reasoner: client, Tunables: DefaultTunables()}
	s := State{
		KeyProposalDraft: "draft",
		KeyRequirements:  []model.Requirement{{Text: "REST API"}},
	}
	update := d.complyStage(context.Background(), s)

	assert.Equal(t, 0.85, update[KeyComplianceScore])
	issues := update[KeyComplianceIssues].([]model.ComplianceIssue)
	require.Len(t, issues, 1)
	assert.Equal(t, model.CompliancePartiallyAddressed, issues[0].Status)
	assert.Contains(t, issues[0].Notes, "manual review")
}

func TestSplitSections(t *testing.T) {
	draft := "Preamble line\n\n# Title\nBody one\n## Second\nBody two\n"
	sections := SplitSections(draft)

	require.Len(t, sections, 3)
	assert.Equal(t, "Introduction", sections[0].Title)
	assert.Contains(t, sections[0].Content, "Preamble line")
	assert.Equal(t, "Title", sections[1].Title)
	assert.Equal(t, "Second", sections[2].Title)

	assert.Nil(t, SplitSections("   \n  "))

	single := SplitSections("no headings at all")
	require.Len(t, single, 1)
	assert.Equal(t, "Introduction", single[0].Title)
}
