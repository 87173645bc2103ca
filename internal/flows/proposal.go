package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/esshva/quinn/internal/extract"
	"github.com/esshva/quinn/internal/model"
)

// complyDraftLimit caps how much of the draft the compliance prompt quotes.
const complyDraftLimit = 10000

// Proposal builds the three-stage proposal flow:
// retrieve → generate → comply.
func Proposal(d Deps) Graph {
	return Graph{
		Flow: model.FlowProposal,
		Stages: []Stage{
			{Name: "retrieve", Message: "Searching knowledge base for relevant proposal sections...", Run: d.retrieveStage},
			{Name: "generate", Message: "Generating proposal draft...", Run: d.generateStage},
			{Name: "comply", Message: "Checking compliance against requirements...", Run: d.complyStage},
		},
	}
}

// retrieveStage pulls supporting context from the retrieval collaborator.
// Failure is non-fatal: the flow continues with no retrieved sections.
func (d Deps) retrieveStage(ctx context.Context, s State) map[string]any {
	if d.Retriever == nil {
		return map[string]any{KeyRetrievedSections: []model.RetrievedSection{}}
	}

	deal := Get[model.Deal](s, KeyDeal)
	reqs := Get[[]model.Requirement](s, KeyRequirements)

	contextJSON, _ := json.Marshal(deal)
	reqTexts := make([]string, 0, len(reqs))
	for _, r := range reqs {
		reqTexts = append(reqTexts, r.Text)
	}

	sections, err := d.Retriever.Retrieve(ctx, string(contextJSON), reqTexts, d.Tunables.RetrievalSections)
	if err != nil {
		d.logger().Warn("retrieve: retrieval failed, continuing without context", "error", err)
		return map[string]any{
			KeyRetrievedSections: []model.RetrievedSection{},
			KeyErrors:            []string{"retrieval failed: " + err.Error()},
		}
	}

	d.logger().Info("retrieve: proposal sections retrieved", "count", len(sections))
	return map[string]any{KeyRetrievedSections: sections}
}

// generateStage drafts the proposal and splits it into heading-delimited
// sections.
func (d Deps) generateStage(ctx context.Context, s State) map[string]any {
	deal := Get[model.Deal](s, KeyDeal)
	reqs := Get[[]model.Requirement](s, KeyRequirements)
	retrieved := Get[[]model.RetrievedSection](s, KeyRetrievedSections)
	team := Get[[]model.Assignment](s, KeyTeam)
	profile := Get[model.OrgProfile](s, KeyOrgProfile)

	hints, extraSections := EvaluateStrategy(WeighCategories(reqs))

	var reqLines []string
	for _, r := range reqs {
		cat := r.Category
		if cat == "" {
			cat = "general"
		}
		reqLines = append(reqLines, fmt.Sprintf("- [%s] %s", cat, r.Text))
	}

	var hintLines []string
	for _, h := range hints {
		hintLines = append(hintLines, "- "+h)
	}

	// Extra sections slot in as 8, 9, ... so Next Steps is always last.
	extraBlock := ""
	nextStepsNumber := 8
	for i, sec := range extraSections {
		extraBlock += fmt.Sprintf("\n## %d. %s\n%s\n", 8+i, sec.Title, sec.Guidance)
	}
	nextStepsNumber += len(extraSections)

	company := "our company"
	if profile.BrandName != "" {
		company = profile.BrandName
	}

	prompt := fmt.Sprintf(`You are a senior proposal writer at %[1]s. Your job is to write a WINNING proposal that proves %[1]s is the best choice and directly addresses every concern the client might have.

BRANDING & TONE:
- The proposal is FROM "%[1]s" to "%[2]s" for the "%[3]s" project
- Do NOT mention any AI assistant or AI-generated disclaimers
- Write as the proposal team: confident, specific, and persuasive
- Use direct language: "We will deliver..." not "We can deliver..."
- Every claim must be backed by specifics from the requirements or team data below

CLIENT: %[2]s
PROJECT: %[3]s
%[4]sBUDGET: To be discussed
TIMELINE: To be discussed

REQUIREMENTS (%[5]d total):
%[6]s
%[7]s%[8]s%[9]s
PROPOSAL STRATEGY - what to emphasize based on this project's requirements:
%[10]s

WINNING APPROACH - for EVERY section:
1. Don't just describe the work: explain WHY this approach is better than alternatives
2. Tie each solution directly back to a specific requirement
3. Include concrete deliverables, not vague promises
4. Show business value: how does each piece help the client succeed, save money, or reduce risk?

Generate a complete proposal with these CORE sections:

# Proposal: %[3]s

## 1. Executive Summary
## 2. Understanding of Requirements
## 3. Proposed Solution & Technical Approach
## 4. Implementation Plan & Timeline
## 5. Proposed Team & Resources
## 6. Investment & Commercial Terms
## 7. Why Choose %[1]s
%[11]s
## %[12]d. Next Steps
This MUST be the FINAL section. Clear, specific action items with a sense of momentum.

Write in a confident, professional but warm tone. Output in clean markdown format with proper # and ## headers.`,
		company, orUnknown(deal.ClientName), orUnknown(deal.Title),
		descriptionLine(deal.Description), len(reqs), strings.Join(reqLines, "\n"),
		teamContext(team), ragContext(retrieved), proposalProfileContext(profile),
		strings.Join(hintLines, "\n"), extraBlock, nextStepsNumber)

	draft := d.generate(ctx, prompt, d.Tunables.GenerationTokens)
	sections := SplitSections(draft)

	d.logger().Info("generate: proposal draft generated",
		"chars", len(draft), "sections", len(sections))

	update := map[string]any{
		KeyProposalDraft:    draft,
		KeyProposalSections: sections,
	}
	if draft == "" {
		update[KeyErrors] = []string{"proposal draft generation produced no text"}
	}
	return update
}

type complianceResult struct {
	ComplianceScore float64                 `json:"compliance_score"`
	Issues          []model.ComplianceIssue `json:"issues"`
}

// complyStage scores how well the draft covers each requirement.
func (d Deps) complyStage(ctx context.Context, s State) map[string]any {
	draft := Get[string](s, KeyProposalDraft)
	reqs := Get[[]model.Requirement](s, KeyRequirements)

	if len(reqs) == 0 {
		return map[string]any{
			KeyComplianceScore:  1.0,
			KeyComplianceIssues: []model.ComplianceIssue{},
		}
	}

	var reqLines []string
	for i, r := range reqs {
		cat := r.Category
		if cat == "" {
			cat = "general"
		}
		reqLines = append(reqLines, fmt.Sprintf("%d. [%s] %s", i+1, cat, r.Text))
	}

	quoted := draft
	if len(quoted) > complyDraftLimit {
		quoted = quoted[:complyDraftLimit]
	}

	prompt := fmt.Sprintf(`You are a compliance checker. Review this proposal against the requirements and check compliance.

PROPOSAL:
%s

REQUIREMENTS TO CHECK:
%s

For each requirement, assess if it is addressed in the proposal. Return JSON:
{
    "compliance_score": 0.0 to 1.0 (overall),
    "issues": [
        {
            "requirement_index": 1,
            "requirement_text": "...",
            "status": "addressed|partially_addressed|not_addressed",
            "notes": "explanation"
        }
    ]
}

Return ONLY valid JSON.`, quoted, strings.Join(reqLines, "\n"))

	raw := d.generate(ctx, prompt, d.Tunables.AnalysisTokens)

	var result complianceResult
	if !extract.Decode(raw, "compliance_score", &result) {
		d.logger().Warn("comply: could not parse reasoner response")
		return map[string]any{
			KeyComplianceScore: 0.85,
			KeyComplianceIssues: []model.ComplianceIssue{{
				RequirementText: "Auto-check",
				Status:          model.CompliancePartiallyAddressed,
				Notes:           "Compliance check could not fully parse; manual review recommended.",
			}},
			KeyErrors: []string{"compliance parsing failed"},
		}
	}
	result.ComplianceScore = extract.Clamp01(result.ComplianceScore)

	d.logger().Info("comply: compliance check complete",
		"score", result.ComplianceScore, "issues", len(result.Issues))
	return map[string]any{
		KeyComplianceScore:  result.ComplianceScore,
		KeyComplianceIssues: result.Issues,
	}
}

// SplitSections partitions a markdown draft into sections on # and ##
// heading lines. Text before the first heading lands in an Introduction
// section. Headingless drafts come back as a single section.
func SplitSections(draft string) []model.ProposalSection {
	if strings.TrimSpace(draft) == "" {
		return nil
	}
	var sections []model.ProposalSection
	current := model.ProposalSection{Title: "Introduction"}
	for _, line := range strings.Split(draft, "\n") {
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") {
			if strings.TrimSpace(current.Content) != "" {
				sections = append(sections, current)
			}
			current = model.ProposalSection{Title: strings.TrimSpace(strings.TrimLeft(line, "#"))}
			continue
		}
		current.Content += line + "\n"
	}
	if strings.TrimSpace(current.Content) != "" {
		sections = append(sections, current)
	}
	return sections
}

// hoursPerMonth converts an hourly rate into the monthly estimate shown in
// proposal team context.
const hoursPerMonth = 160

// teamContext renders the assigned team block, including per-member and
// total monthly cost estimates.
func teamContext(team []model.Assignment) string {
	if len(team) == 0 {
		return "\nNOTE: No specific team members have been assigned yet. Describe team structure generically based on required roles.\n"
	}
	var b strings.Builder
	b.WriteString("\nASSIGNED TEAM MEMBERS (use these EXACT people in the Team & Resources section):\n")
	var totalMonthly float64
	for i, m := range team {
		monthly := m.HourlyRate * hoursPerMonth * (m.AllocationPercent / 100)
		totalMonthly += monthly
		skills := "General"
		if len(m.Skills) > 0 {
			shown := m.Skills
			if len(shown) > 6 {
				shown = shown[:6]
			}
			skills = strings.Join(shown, ", ")
		}
		fmt.Fprintf(&b, "  %d. %s - %s\n", i+1, m.Name, m.RoleOnDeal)
		fmt.Fprintf(&b, "     Skills: %s\n", skills)
		fmt.Fprintf(&b, "     Department: %s | Allocation: %.0f%% | Rate: $%.0f/hr | Monthly: $%.0f\n",
			orNotSpecified(m.Department), m.AllocationPercent, m.HourlyRate, monthly)
	}
	fmt.Fprintf(&b, "\n  TOTAL ESTIMATED MONTHLY COST: $%.0f\n", totalMonthly)
	b.WriteString("\nIMPORTANT: Use ONLY these assigned team members in the proposal. Do NOT invent or add fictional team members.\n")
	return b.String()
}

// ragContext renders retrieved reference sections, capped at seven.
func ragContext(retrieved []model.RetrievedSection) string {
	if len(retrieved) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nRELEVANT SECTIONS FROM PREVIOUS PROPOSALS & UPLOADED DOCUMENTS:\n")
	for i, sec := range retrieved {
		if i == 7 {
			break
		}
		fmt.Fprintf(&b, "\n--- Section %d (Source: %s, Relevance: %.2f) ---\n%s\n",
			i+1, orNotSpecified(sec.Source), sec.Relevance, sec.Text)
	}
	return b.String()
}

// proposalProfileContext renders the organization fact sheet for drafting.
func proposalProfileContext(p model.OrgProfile) string {
	if p.Empty() {
		return ""
	}
	var services []string
	for _, svc := range p.Services {
		services = append(services, svc.Name)
	}
	return fmt.Sprintf(`
COMPANY PROFILE - use these REAL facts to strengthen the proposal:
- Name: %s (Brand: %s)
- Tagline: %q
- Founded: %s | HQ: %s
- Certifications: %s
- Team Size: %d employees
- Methodology: %s

SERVICES: %s
TECHNOLOGY STACK: %s
INDUSTRIES SERVED: %s
PRODUCTS: %s
AWARDS: %s
GLOBAL CLIENTS: %s

IMPORTANT: Reference these REAL facts, especially in "Why Choose" and the Executive Summary. Do NOT fabricate capabilities that aren't listed above.
`,
		orNotSpecified(p.LegalName), orNotSpecified(p.BrandName),
		p.Tagline, orNotSpecified(p.Founded), orNotSpecified(p.Headquarters),
		joinOr(p.Certifications, "None listed"), p.EmployeeCount,
		orNotSpecified(p.Methodology),
		joinOr(services, "Custom software development"),
		joinOr(p.Technologies, "Full-stack capabilities"),
		joinOr(p.Industries, "Multiple verticals"),
		joinOr(p.Products, "Not specified"),
		joinOr(p.Awards, "None"),
		joinOr(p.ClientRegions, "Global"))
}

func descriptionLine(desc string) string {
	if desc == "" {
		return ""
	}
	return "DESCRIPTION: " + desc + "\n"
}
