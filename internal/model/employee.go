package model

// CapabilityRecord is a read-only snapshot of one employee's capabilities,
// taken once per run from the roster collaborator. Skills are stored as
// lower-cased tokens.
type CapabilityRecord struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Role                string   `json:"role"`
	Department          string   `json:"department,omitempty"`
	Skills              []string `json:"skills"`
	AvailabilityPercent float64  `json:"availability_percent"`
	HourlyRate          float64  `json:"hourly_rate"`
}

// AssignedBy distinguishes algorithmic from human staffing choices.
type AssignedBy string

const (
	AssignedAuto   AssignedBy = "auto"
	AssignedManual AssignedBy = "manual"
)

// Assignment is one employee staffed on one deal.
type Assignment struct {
	ID                string     `json:"id"`
	DealID            string     `json:"deal_id"`
	EmployeeID        string     `json:"employee_id"`
	Name              string     `json:"name"`
	RoleOnDeal        string     `json:"role_on_deal"`
	Department        string     `json:"department,omitempty"`
	Skills            []string   `json:"skills,omitempty"`
	MatchingSkills    []string   `json:"matching_skills,omitempty"`
	MatchScore        int        `json:"match_score"`
	AllocationPercent float64    `json:"allocation_percent"`
	HourlyRate        float64    `json:"hourly_rate"`
	AssignedBy        AssignedBy `json:"assigned_by"`
}

// ServiceOffering is one named service in the organization profile.
type ServiceOffering struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// OrgProfile is the optional organization fact sheet used to enrich
// reasoning prompts. It never participates in deterministic scoring.
type OrgProfile struct {
	BrandName      string            `json:"brand_name,omitempty"`
	LegalName      string            `json:"legal_name,omitempty"`
	Tagline        string            `json:"tagline,omitempty"`
	Founded        string            `json:"founded,omitempty"`
	Headquarters   string            `json:"headquarters,omitempty"`
	EmployeeCount  int               `json:"employee_count,omitempty"`
	Certifications []string          `json:"certifications,omitempty"`
	Services       []ServiceOffering `json:"services,omitempty"`
	Technologies   []string          `json:"technologies,omitempty"`
	Industries     []string          `json:"industries,omitempty"`
	Products       []string          `json:"products,omitempty"`
	Awards         []string          `json:"awards,omitempty"`
	ClientRegions  []string          `json:"client_regions,omitempty"`
	Methodology    string            `json:"methodology,omitempty"`
}

// Empty reports whether the profile carries no usable facts.
func (p OrgProfile) Empty() bool {
	return p.BrandName == "" && p.LegalName == "" && len(p.Services) == 0 &&
		len(p.Technologies) == 0 && len(p.Industries) == 0
}
