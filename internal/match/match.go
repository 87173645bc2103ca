// Package match scores how well a roster of capability records covers a set
// of free-text requirements. Purely computational: no I/O, no reasoning
// calls, deterministic for identical inputs.
package match

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/esshva/quinn/internal/model"
)

// minTokenLen filters out stopword-length noise; only whitespace tokens
// longer than this participate in overlap scoring.
const minTokenLen = 3

// DefaultAssignLimit is the auto-assignment cap when none is configured.
const DefaultAssignLimit = 5

// KeywordSet extracts the requirement-side token set: lower-cased
// whitespace tokens of length > 3 from each requirement's text and
// category, plus any extra phrases (gap areas, key roles).
func KeywordSet(reqs []model.Requirement, extra ...string) map[string]bool {
	set := make(map[string]bool)
	for _, r := range reqs {
		addTokens(set, r.Text)
		addTokens(set, r.Category)
	}
	for _, s := range extra {
		addTokens(set, s)
	}
	return set
}

func addTokens(set map[string]bool, s string) {
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > minTokenLen {
			set[tok] = true
		}
	}
}

// RoleMatch is one roster record scored against a keyword set.
type RoleMatch struct {
	Record         model.CapabilityRecord
	MatchingSkills []string
	Score          int
}

// Rank scores every roster record against the keyword set and returns the
// matches in strictly descending score order. Records with zero overlap are
// excluded entirely rather than scored as zero. Ties keep roster order, so
// ranking is a pure function of its inputs.
func Rank(roster []model.CapabilityRecord, keywords map[string]bool) []RoleMatch {
	matches := make([]RoleMatch, 0, len(roster))
	for _, rec := range roster {
		overlap := recordOverlap(rec, keywords)
		if len(overlap) == 0 {
			continue
		}
		matches = append(matches, RoleMatch{
			Record:         rec,
			MatchingSkills: overlap,
			Score:          len(overlap),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// recordOverlap intersects the record's term set (skills ∪ role words) with
// the keyword set. Terms keep their first-seen order for deterministic
// output; duplicates are collapsed.
func recordOverlap(rec model.CapabilityRecord, keywords map[string]bool) []string {
	seen := make(map[string]bool)
	var overlap []string
	consider := func(term string) {
		term = strings.ToLower(term)
		if len(term) <= minTokenLen || seen[term] || !keywords[term] {
			return
		}
		seen[term] = true
		overlap = append(overlap, term)
	}
	for _, skill := range rec.Skills {
		consider(strings.TrimSpace(skill))
	}
	for _, word := range strings.Fields(rec.Role) {
		consider(word)
	}
	return overlap
}

// BuildPlan turns the top-ranked matches into concrete auto assignments.
// Allocation is the record's availability capped at 100%. Applying a plan
// supersedes any previous auto assignments for the deal; manual assignments
// are never touched (see runs.AssignmentStore).
func BuildPlan(dealID string, ranked []RoleMatch, limit int) []model.Assignment {
	if limit <= 0 {
		limit = DefaultAssignLimit
	}
	if len(ranked) < limit {
		limit = len(ranked)
	}
	assignments := make([]model.Assignment, 0, limit)
	for _, m := range ranked[:limit] {
		alloc := m.Record.AvailabilityPercent
		if alloc > 100 {
			alloc = 100
		}
		assignments = append(assignments, model.Assignment{
			ID:                uuid.NewString(),
			DealID:            dealID,
			EmployeeID:        m.Record.ID,
			Name:              m.Record.Name,
			RoleOnDeal:        m.Record.Role,
			Department:        m.Record.Department,
			Skills:            m.Record.Skills,
			MatchingSkills:    m.MatchingSkills,
			MatchScore:        m.Score,
			AllocationPercent: alloc,
			HourlyRate:        m.Record.HourlyRate,
			AssignedBy:        model.AssignedAuto,
		})
	}
	return assignments
}
