package flows

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/esshva/quinn/internal/extract"
	"github.com/esshva/quinn/internal/match"
	"github.com/esshva/quinn/internal/model"
)

// truncationMarker is appended when document text exceeds the configured cap.
const truncationMarker = "\n\n[Document truncated for processing]"

// Qualification builds the five-stage deal qualification flow:
// ingest → extract → analyze → match → decide.
func Qualification(d Deps) Graph {
	return Graph{
		Flow: model.FlowQualification,
		Stages: []Stage{
			{Name: "ingest", Message: "Parsing document structure...", Run: d.ingestStage},
			{Name: "extract", Message: "Extracting requirements and entities...", Run: d.extractStage},
			{Name: "analyze", Message: "Analyzing deal viability...", Run: d.analyzeStage},
			{Name: "match", Message: "Matching employee skills...", Run: d.matchStage},
			{Name: "decide", Message: "Generating go/no-go recommendation...", Run: d.decideStage},
		},
	}
}

// ingestStage validates the combined document text and records basic stats.
func (d Deps) ingestStage(_ context.Context, s State) map[string]any {
	text := Get[string](s, KeyDocumentText)
	if text == "" {
		d.logger().Warn("ingest: no document text provided")
		return map[string]any{KeyErrors: []string{"no document text provided"}}
	}

	meta := Get[map[string]any](s, KeyDocumentMeta)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta["word_count"] = len(strings.Fields(text))
	meta["char_count"] = len(text)

	d.logger().Info("ingest: document ingested",
		"word_count", meta["word_count"], "char_count", meta["char_count"])

	return map[string]any{KeyDocumentMeta: meta}
}

type extractionResult struct {
	Requirements []model.Requirement `json:"requirements"`
	Entities     model.Entities      `json:"entities"`
}

// extractStage asks the reasoner for structured requirements and entities.
func (d Deps) extractStage(ctx context.Context, s State) map[string]any {
	text := Get[string](s, KeyDocumentText)
	if limit := d.Tunables.MaxDocumentChars; limit > 0 && len(text) > limit {
		text = text[:limit] + truncationMarker
	}

	prompt := fmt.Sprintf(`Analyze this RFP/proposal document and extract structured information.

DOCUMENT:
%s

Extract the following as a JSON object:
{
    "requirements": [
        {
            "category": "technical|functional|integration|infrastructure|security|compliance",
            "text": "The specific requirement",
            "priority": "must_have|should_have|nice_to_have",
            "confidence": 0.0 to 1.0
        }
    ],
    "entities": {
        "client_name": "...",
        "project_name": "...",
        "budget_range": "...",
        "timeline": "...",
        "deadline": "...",
        "key_stakeholders": ["..."],
        "industry": "...",
        "technologies_mentioned": ["..."]
    }
}

Be thorough - extract ALL requirements you can identify. Return ONLY valid JSON.`, text)

	raw := d.generate(ctx, prompt, d.Tunables.ExtractionTokens)

	var result extractionResult
	if !extract.Decode(raw, "requirements", &result) {
		d.logger().Error("extract: could not parse reasoner response")
		return map[string]any{
			KeyRequirements: []model.Requirement{},
			KeyEntities:     model.Entities{},
			KeyErrors:       []string{"extraction parsing failed"},
		}
	}
	for i := range result.Requirements {
		result.Requirements[i].Confidence = extract.Clamp01(result.Requirements[i].Confidence)
	}

	d.logger().Info("extract: requirements extracted", "count", len(result.Requirements))
	return map[string]any{
		KeyRequirements: result.Requirements,
		KeyEntities:     result.Entities,
	}
}

// analyzeStage assesses extracted requirements against the organization
// profile and team roster.
func (d Deps) analyzeStage(ctx context.Context, s State) map[string]any {
	reqs := Get[[]model.Requirement](s, KeyRequirements)
	entities := Get[model.Entities](s, KeyEntities)
	roster := Get[[]model.CapabilityRecord](s, KeyRoster)
	profile := Get[model.OrgProfile](s, KeyOrgProfile)

	reqsJSON, _ := json.MarshalIndent(reqs, "", "  ")

	prompt := fmt.Sprintf(`You are a deal intelligence analyst. Analyze these extracted requirements against the company profile and team capabilities below to assess deal viability.

CLIENT: %s
INDUSTRY: %s
BUDGET: %s
TIMELINE: %s

=== COMPANY PROFILE ===
%s

=== TEAM CAPABILITIES ===
%s

=== CLIENT REQUIREMENTS (%d total) ===
%s

IMPORTANT: Base your analysis on BOTH the company profile (services, technologies, industries, products, awards) AND the actual employee skills listed above. A capability is CONFIRMED if it appears in the services, technology stack, OR employee skills. Flag gaps only for requirements that genuinely don't match anything in the profile or team.

Provide your gap analysis as JSON:
{
    "capability_match_percent": 0-100,
    "strong_areas": ["specific areas where the company profile and/or team skills demonstrably match requirements"],
    "gap_areas": ["specific requirement areas where neither services nor team skills provide coverage"],
    "risk_factors": ["concrete risks based on real gaps, timeline constraints, budget concerns, or capacity limits"],
    "opportunity_factors": ["positive signals, e.g. industry experience, relevant products, matching tech stack"],
    "resource_estimate": {
        "team_size": "estimated team size needed",
        "duration": "estimated duration",
        "key_roles": ["specific roles needed, noting which are on staff and which would need hiring"]
    }
}

Return ONLY valid JSON.`,
		orUnknown(entities.ClientName), orUnknown(entities.Industry),
		orUnknown(entities.BudgetRange), orUnknown(entities.Timeline),
		profileContext(profile, len(roster)), rosterSummary(roster),
		len(reqs), reqsJSON)

	raw := d.generate(ctx, prompt, d.Tunables.AnalysisTokens)

	var gap model.GapAnalysis
	if !extract.Decode(raw, "capability_match_percent", &gap) {
		d.logger().Error("analyze: could not parse reasoner response")
		return map[string]any{
			KeyGapAnalysis: model.GapAnalysis{},
			KeyErrors:      []string{"gap analysis parsing failed"},
		}
	}
	gap.CapabilityMatchPercent = extract.ClampRange(gap.CapabilityMatchPercent, 0, 100)

	d.logger().Info("analyze: gap analysis complete", "capability_match_percent", gap.CapabilityMatchPercent)
	return map[string]any{KeyGapAnalysis: gap}
}

// matchStage translates the gap assessment into deterministic role matches
// and a staffing plan. Purely computational; no reasoning call.
func (d Deps) matchStage(_ context.Context, s State) map[string]any {
	reqs := Get[[]model.Requirement](s, KeyRequirements)
	gap := Get[model.GapAnalysis](s, KeyGapAnalysis)
	roster := Get[[]model.CapabilityRecord](s, KeyRoster)
	deal := Get[model.Deal](s, KeyDeal)

	var extra []string
	extra = append(extra, gap.StrongAreas...)
	extra = append(extra, gap.GapAreas...)
	extra = append(extra, gap.ResourceEstimate.KeyRoles...)

	keywords := match.KeywordSet(reqs, extra...)
	ranked := match.Rank(roster, keywords)
	plan := match.BuildPlan(deal.ID, ranked, d.Tunables.AutoAssignLimit)

	d.logger().Info("match: employees matched", "matched", len(ranked), "auto_assigned", len(plan))
	return map[string]any{
		KeySkillMatches:   ranked,
		KeyAssignmentPlan: plan,
	}
}

// decideStage produces the final go / no-go / conditional-go verdict.
func (d Deps) decideStage(ctx context.Context, s State) map[string]any {
	reqs := Get[[]model.Requirement](s, KeyRequirements)
	entities := Get[model.Entities](s, KeyEntities)
	gap := Get[model.GapAnalysis](s, KeyGapAnalysis)
	roster := Get[[]model.CapabilityRecord](s, KeyRoster)
	profile := Get[model.OrgProfile](s, KeyOrgProfile)

	teamSummary := fmt.Sprintf("%d employees on staff", len(roster))
	if skills := uniqueSkills(roster); len(skills) > 0 {
		teamSummary += fmt.Sprintf(" with %d unique skills across the team", len(skills))
	}

	strong, _ := json.Marshal(gap.StrongAreas)
	gaps, _ := json.Marshal(gap.GapAreas)
	risks, _ := json.Marshal(gap.RiskFactors)
	opportunities, _ := json.Marshal(gap.OpportunityFactors)
	estimate, _ := json.Marshal(gap.ResourceEstimate)

	prompt := fmt.Sprintf(`You are a deal intelligence analyst. Based on the complete analysis against the company profile and team capabilities, make a deal qualification decision.

CLIENT: %s
BUDGET: %s
TIMELINE: %s
TEAM: %s
%s

CAPABILITY MATCH: %.0f%%
STRONG AREAS: %s
GAP AREAS: %s
RISK FACTORS: %s
OPPORTUNITY FACTORS: %s
RESOURCE ESTIMATE: %s
TOTAL REQUIREMENTS: %d

Make your decision as JSON. Be specific: reference actual capabilities, service offerings, industry experience, team skills, and any gaps:
{
    "recommendation": "go|no_go|conditional_go",
    "confidence_score": 0.0 to 1.0,
    "positive_factors": ["specific reasons supporting GO"],
    "risk_factors": ["specific risks: real skill gaps, capacity constraints, missing capabilities, timeline or budget concerns"],
    "conditions": ["conditions that must be met for GO, if conditional"],
    "reasoning": "2-3 sentence explanation grounded in the actual profile and capability match"
}

Return ONLY valid JSON.`,
		orUnknown(entities.ClientName), orUnknown(entities.BudgetRange),
		orUnknown(entities.Timeline), teamSummary, profileStrengths(profile),
		gap.CapabilityMatchPercent, strong, gaps, risks, opportunities, estimate, len(reqs))

	raw := d.generate(ctx, prompt, d.Tunables.DecisionTokens)

	var decision model.Decision
	if !extract.Decode(raw, "recommendation", &decision) {
		d.logger().Error("decide: could not parse reasoner response")
		return map[string]any{
			KeyDecision: model.Decision{
				Recommendation: model.RecommendNoGo,
				Reasoning:      "Decision could not be generated; manual review required.",
			},
			KeyErrors: []string{"decision parsing failed"},
		}
	}
	decision.ConfidenceScore = extract.Clamp01(decision.ConfidenceScore)
	switch decision.Recommendation {
	case model.RecommendGo, model.RecommendNoGo, model.RecommendConditionalGo:
	default:
		decision.Recommendation = model.RecommendNoGo
	}

	d.logger().Info("decide: decision generated",
		"recommendation", decision.Recommendation, "confidence_score", decision.ConfidenceScore)
	return map[string]any{KeyDecision: decision}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func uniqueSkills(roster []model.CapabilityRecord) []string {
	seen := make(map[string]bool)
	var skills []string
	for _, rec := range roster {
		for _, skill := range rec.Skills {
			skill = strings.ToLower(skill)
			if !seen[skill] {
				seen[skill] = true
				skills = append(skills, skill)
			}
		}
	}
	sort.Strings(skills)
	return skills
}

// profileContext renders the organization fact sheet for analysis prompts.
// Absent facts render as "Not specified" rather than being dropped, so the
// model is not tempted to invent them.
func profileContext(p model.OrgProfile, rosterSize int) string {
	if p.Empty() {
		return "No company profile available."
	}
	var services []string
	for _, svc := range p.Services {
		services = append(services, "- "+svc.Name+": "+svc.Description)
	}
	employeeCount := p.EmployeeCount
	if employeeCount == 0 {
		employeeCount = rosterSize
	}
	return fmt.Sprintf(`COMPANY: %s (%s)
FOUNDED: %s | HQ: %s
CERTIFICATIONS: %s
EMPLOYEE COUNT: %d

SERVICES OFFERED:
%s

KNOWN TECHNOLOGIES: %s

INDUSTRIES SERVED: %s

PRODUCTS BUILT: %s

AWARDS: %s

CLIENT REGIONS: %s`,
		orNotSpecified(p.BrandName), orNotSpecified(p.LegalName),
		orNotSpecified(p.Founded), orNotSpecified(p.Headquarters),
		joinOr(p.Certifications, "None listed"), employeeCount,
		joinLinesOr(services, "Not specified"),
		joinOr(p.Technologies, "Not specified"),
		joinOr(p.Industries, "Not specified"),
		joinOr(p.Products, "Not specified"),
		joinOr(p.Awards, "None"),
		joinOr(p.ClientRegions, "Not specified"))
}

// profileStrengths renders the condensed strengths block for the decision
// prompt. Empty when no profile is loaded.
func profileStrengths(p model.OrgProfile) string {
	if p.Empty() {
		return ""
	}
	var services []string
	for _, svc := range p.Services {
		services = append(services, svc.Name)
	}
	return fmt.Sprintf(`
COMPANY STRENGTHS:
- Services: %s
- Tech Stack: %s
- Industries Served: %s
- Global Presence: Clients in %s
- Awards: %s
- Certifications: %s`,
		joinOr(services, "N/A"),
		joinOr(p.Technologies, "N/A"),
		joinOr(p.Industries, "N/A"),
		joinOr(p.ClientRegions, "N/A"),
		joinOr(p.Awards, "None"),
		joinOr(p.Certifications, "None"))
}

// rosterSummary renders team context for analysis prompts: aggregate skill
// and role sets plus the first 20 individual records.
func rosterSummary(roster []model.CapabilityRecord) string {
	if len(roster) == 0 {
		return "No employee roster available."
	}
	skills := uniqueSkills(roster)
	roleSet := make(map[string]bool)
	deptSet := make(map[string]bool)
	for _, rec := range roster {
		if rec.Role != "" {
			roleSet[rec.Role] = true
		}
		if rec.Department != "" {
			deptSet[rec.Department] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT TEAM (%d active employees):\n", len(roster))
	fmt.Fprintf(&b, "DEPARTMENTS: %s\n", joinOr(sortedKeys(deptSet), "Not specified"))
	fmt.Fprintf(&b, "ROLES ON STAFF: %s\n", joinOr(sortedKeys(roleSet), "Not specified"))
	fmt.Fprintf(&b, "ALL SKILLS AVAILABLE: %s\n\nEMPLOYEE ROSTER:", joinOr(skills, "Not specified"))
	for i, rec := range roster {
		if i == 20 {
			fmt.Fprintf(&b, "\n... and %d more employees", len(roster)-20)
			break
		}
		shown := rec.Skills
		if len(shown) > 8 {
			shown = shown[:8]
		}
		fmt.Fprintf(&b, "\n- %s | %s | Skills: %s | Availability: %.0f%%",
			rec.Name, rec.Role, strings.Join(shown, ", "), rec.AvailabilityPercent)
	}
	return b.String()
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func joinLinesOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, "\n")
}
