package model

// ProposalSection is one heading-delimited part of a generated proposal.
type ProposalSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ComplianceStatus tags how well a single requirement is covered.
type ComplianceStatus string

const (
	ComplianceAddressed          ComplianceStatus = "addressed"
	CompliancePartiallyAddressed ComplianceStatus = "partially_addressed"
	ComplianceNotAddressed       ComplianceStatus = "not_addressed"
)

// ComplianceIssue is one per-requirement coverage finding.
type ComplianceIssue struct {
	RequirementIndex int              `json:"requirement_index"`
	RequirementText  string           `json:"requirement_text"`
	Status           ComplianceStatus `json:"status"`
	Notes            string           `json:"notes,omitempty"`
}

// Proposal is the output of the proposal flow.
type Proposal struct {
	Title           string            `json:"title"`
	Draft           string            `json:"draft"`
	Sections        []ProposalSection `json:"sections"`
	ComplianceScore float64           `json:"compliance_score"`
	Issues          []ComplianceIssue `json:"compliance_issues,omitempty"`
}

// RetrievedSection is one ranked snippet from the retrieval collaborator.
type RetrievedSection struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance_score"`
}
