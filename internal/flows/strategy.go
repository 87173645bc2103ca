package flows

import (
	"strings"

	"github.com/esshva/quinn/internal/model"
)

// CategoryWeights counts requirements per category family. Families are
// fixed keyword sets; a category outside every family counts only toward
// the total.
type CategoryWeights struct {
	Total      int
	Technical  int
	Security   int
	Functional int
	Process    int
}

var (
	technicalCats  = map[string]bool{"technical": true, "architecture": true, "infrastructure": true, "performance": true, "scalability": true, "integration": true}
	securityCats   = map[string]bool{"security": true, "compliance": true, "regulatory": true, "privacy": true, "data_protection": true}
	functionalCats = map[string]bool{"functional": true, "feature": true, "ui": true, "ux": true, "user_experience": true}
	processCats    = map[string]bool{"process": true, "methodology": true, "agile": true, "management": true, "reporting": true}
)

// WeighCategories tallies requirement categories into family weights.
func WeighCategories(reqs []model.Requirement) CategoryWeights {
	var w CategoryWeights
	w.Total = len(reqs)
	for _, r := range reqs {
		cat := strings.ToLower(r.Category)
		switch {
		case technicalCats[cat]:
			w.Technical++
		case securityCats[cat]:
			w.Security++
		case functionalCats[cat]:
			w.Functional++
		case processCats[cat]:
			w.Process++
		}
	}
	return w
}

// ExtraSection is an additional proposal section a strategy rule requests,
// inserted before the closing Next Steps section.
type ExtraSection struct {
	Title    string
	Guidance string
}

// StrategyRule maps a predicate over category weights to an emphasis hint
// and an optional extra section. Rules are evaluated in order before
// prompt assembly; matching is independent of the drafting itself.
type StrategyRule struct {
	Name    string
	Applies func(w CategoryWeights) bool
	Hint    string
	Section *ExtraSection
}

// strategyRules is the fixed rule table driving proposal emphasis.
var strategyRules = []StrategyRule{
	{
		Name:    "technically_heavy",
		Applies: func(w CategoryWeights) bool { return float64(w.Technical) > float64(w.Total)*0.3 },
		Hint:    "This is a TECHNICALLY HEAVY project. Go deep on architecture (described textually), technology stack choices with justifications, scalability approach, and performance benchmarks.",
		Section: &ExtraSection{
			Title:    "Technical Architecture Deep-Dive",
			Guidance: "Provide a detailed breakdown of the system architecture: components, data flow, API design, tech stack rationale. Explain WHY each technology choice is the best fit for these specific requirements.",
		},
	},
	{
		Name:    "security_sensitive",
		Applies: func(w CategoryWeights) bool { return w.Security > 0 },
		Hint:    "This project has SECURITY/COMPLIANCE requirements. Dedicate significant attention to how compliance will be ensured. Reference specific standards, certifications, or frameworks relevant to the requirements.",
		Section: &ExtraSection{
			Title:    "Security & Compliance Framework",
			Guidance: "Detail the approach to meeting every security and compliance requirement. Reference specific standards (ISO 27001, SOC 2, GDPR) where relevant. Include audit trail, access control, and data protection strategies.",
		},
	},
	{
		Name:    "feature_rich",
		Applies: func(w CategoryWeights) bool { return float64(w.Functional) > float64(w.Total)*0.3 },
		Hint:    "This project is FEATURE-RICH. Focus on user experience, feature prioritization, and how each functional requirement maps to a concrete deliverable. Consider wireframe descriptions or user journey narratives.",
	},
	{
		Name:    "process_oriented",
		Applies: func(w CategoryWeights) bool { return w.Process > 0 },
		Hint:    "The client cares about PROCESS & METHODOLOGY. Emphasize the project management approach: sprint cycles, communication cadence, reporting dashboards, stakeholder involvement, and risk mitigation.",
	},
	{
		Name:    "many_requirements",
		Applies: func(w CategoryWeights) bool { return w.Total > 10 },
		Hint:    "There are MANY requirements. Organize them into logical groups. Show a clear traceability mindset: every requirement should be visibly addressed somewhere in the proposal.",
	},
}

// balancedHint is appended when no rule matched.
const balancedHint = "Provide a well-balanced proposal covering solution design, implementation approach, and business value. Emphasize the ability to deliver quality results on time."

// EvaluateStrategy runs the rule table against the weights and returns the
// matched emphasis hints plus any extra sections, in rule order. At least
// one hint is always returned.
func EvaluateStrategy(w CategoryWeights) ([]string, []ExtraSection) {
	var hints []string
	var sections []ExtraSection
	for _, rule := range strategyRules {
		if !rule.Applies(w) {
			continue
		}
		hints = append(hints, rule.Hint)
		if rule.Section != nil {
			sections = append(sections, *rule.Section)
		}
	}
	if len(hints) == 0 {
		hints = append(hints, balancedHint)
	}
	return hints, sections
}
