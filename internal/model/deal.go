package model

// Deal is the business record a pipeline runs against. Snapshot taken from
// the deal source at trigger time; the engine never writes it back.
type Deal struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ClientName  string  `json:"client_name"`
	Value       float64 `json:"deal_value"`
	Description string  `json:"description,omitempty"`
	Stage       string  `json:"stage,omitempty"`
	HealthScore int     `json:"health_score,omitempty"`
}

// DocumentRef describes one source document contributing to a deal's
// combined text.
type DocumentRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Category string `json:"category,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// DocumentBundle is the combined free text of a deal's processed documents,
// with per-document separators of the form "=== [CATEGORY] title ===".
// Text extraction itself happens upstream; the engine only consumes this.
type DocumentBundle struct {
	CombinedText string        `json:"combined_text"`
	Documents    []DocumentRef `json:"documents"`
}

// RequirementPriority classifies how hard a requirement is.
type RequirementPriority string

const (
	PriorityMustHave   RequirementPriority = "must_have"
	PriorityShouldHave RequirementPriority = "should_have"
	PriorityNiceToHave RequirementPriority = "nice_to_have"
)

// Requirement is one extracted client requirement.
type Requirement struct {
	Category   string              `json:"category"`
	Text       string              `json:"text"`
	Priority   RequirementPriority `json:"priority,omitempty"`
	Confidence float64             `json:"confidence"`
}

// Entities are the key facts pulled out of the deal documents.
type Entities struct {
	ClientName      string   `json:"client_name,omitempty"`
	ProjectName     string   `json:"project_name,omitempty"`
	BudgetRange     string   `json:"budget_range,omitempty"`
	Timeline        string   `json:"timeline,omitempty"`
	Deadline        string   `json:"deadline,omitempty"`
	KeyStakeholders []string `json:"key_stakeholders,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	Technologies    []string `json:"technologies_mentioned,omitempty"`
}

// ResourceEstimate is the staffing estimate inside a gap analysis.
type ResourceEstimate struct {
	TeamSize string   `json:"team_size,omitempty"`
	Duration string   `json:"duration,omitempty"`
	KeyRoles []string `json:"key_roles,omitempty"`
}

// GapAnalysis assesses extracted requirements against company and team
// capabilities.
type GapAnalysis struct {
	CapabilityMatchPercent float64          `json:"capability_match_percent"`
	StrongAreas            []string         `json:"strong_areas,omitempty"`
	GapAreas               []string         `json:"gap_areas,omitempty"`
	RiskFactors            []string         `json:"risk_factors,omitempty"`
	OpportunityFactors     []string         `json:"opportunity_factors,omitempty"`
	ResourceEstimate       ResourceEstimate `json:"resource_estimate"`
}

// Recommendation is the qualification verdict.
type Recommendation string

const (
	RecommendGo            Recommendation = "go"
	RecommendNoGo          Recommendation = "no_go"
	RecommendConditionalGo Recommendation = "conditional_go"
)

// Decision is the final qualification output.
type Decision struct {
	Recommendation  Recommendation `json:"recommendation"`
	ConfidenceScore float64        `json:"confidence_score"`
	PositiveFactors []string       `json:"positive_factors,omitempty"`
	RiskFactors     []string       `json:"risk_factors,omitempty"`
	Conditions      []string       `json:"conditions,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
}
