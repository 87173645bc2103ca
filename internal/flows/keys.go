package flows

// State bag keys. Grouped by the family that writes them.
const (
	// Input context, populated by the coordinator before stage 1.
	KeyDeal           = "deal"            // model.Deal
	KeyDocumentText   = "document_text"   // string
	KeyDocumentMeta   = "document_meta"   // map[string]any
	KeyRoster         = "roster"          // []model.CapabilityRecord
	KeyOrgProfile     = "org_profile"     // model.OrgProfile
	KeyTeam           = "team"            // []model.Assignment
	KeyCommunications = "communications"  // []model.Communication
	KeyPreviousHealth = "previous_health" // int

	// Qualification stage outputs.
	KeyRequirements   = "requirements"    // []model.Requirement
	KeyEntities       = "entities"        // model.Entities
	KeyGapAnalysis    = "gap_analysis"    // model.GapAnalysis
	KeySkillMatches   = "skill_matches"   // []match.RoleMatch
	KeyAssignmentPlan = "assignment_plan" // []model.Assignment
	KeyDecision       = "decision"        // model.Decision

	// Proposal stage outputs.
	KeyRetrievedSections = "retrieved_sections" // []model.RetrievedSection
	KeyProposalDraft     = "proposal_draft"     // string
	KeyProposalSections  = "proposal_sections"  // []model.ProposalSection
	KeyComplianceScore   = "compliance_score"   // float64
	KeyComplianceIssues  = "compliance_issues"  // []model.ComplianceIssue

	// Monitoring stage outputs.
	KeySentimentScores  = "sentiment_scores"  // []model.SentimentScore
	KeyOverallSentiment = "overall_sentiment" // float64
	KeyHealthScore      = "health_score"      // int
	KeyTrend            = "trend"             // model.Trend
	KeyAlerts           = "alerts"            // []model.Alert
	KeyRecovery         = "recovery"          // model.RecoveryPlan

	// Engine-owned keys.
	KeyCurrentStage = "current_stage" // string
	KeyErrors       = "errors"        // []string, append-only
)
