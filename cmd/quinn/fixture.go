package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/esshva/quinn/internal/model"
)

// fixtureDocument is one source document in a deal fixture. Text is the
// already-extracted plain text; parsing PDFs and the like happens outside
// the engine.
type fixtureDocument struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Category string `json:"category,omitempty"`
	Text     string `json:"text"`
}

// dealFixture is the on-disk shape consumed by --deal-file.
type dealFixture struct {
	Deal           model.Deal            `json:"deal"`
	Documents      []fixtureDocument     `json:"documents,omitempty"`
	Requirements   []model.Requirement   `json:"requirements,omitempty"`
	Communications []model.Communication `json:"communications,omitempty"`
}

// rosterFixture is the on-disk shape consumed by --roster-file.
type rosterFixture struct {
	Employees []model.CapabilityRecord `json:"employees"`
	Profile   model.OrgProfile         `json:"profile"`
}

// fixtureSource serves one deal from a JSON fixture file. It implements
// both the deal source and the roster.
type fixtureSource struct {
	fixture dealFixture
	roster  rosterFixture
}

func loadFixtureSource(dealPath, rosterPath string) (*fixtureSource, error) {
	src := &fixtureSource{}
	if err := readJSONFile(dealPath, &src.fixture); err != nil {
		return nil, fmt.Errorf("deal fixture: %w", err)
	}
	if src.fixture.Deal.ID == "" {
		return nil, fmt.Errorf("deal fixture %s: deal.id is required", dealPath)
	}
	if rosterPath != "" {
		if err := readJSONFile(rosterPath, &src.roster); err != nil {
			return nil, fmt.Errorf("roster fixture: %w", err)
		}
	}
	return src, nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (f *fixtureSource) Deal(_ context.Context, dealID string) (model.Deal, error) {
	if dealID != f.fixture.Deal.ID {
		return model.Deal{}, fmt.Errorf("fixture has no deal %q", dealID)
	}
	return f.fixture.Deal, nil
}

// Documents joins the fixture documents into the combined text the
// qualification flow expects, one separator header per document.
func (f *fixtureSource) Documents(_ context.Context, dealID string) (model.DocumentBundle, error) {
	if dealID != f.fixture.Deal.ID {
		return model.DocumentBundle{}, fmt.Errorf("fixture has no deal %q", dealID)
	}
	var bundle model.DocumentBundle
	var parts []string
	for _, doc := range f.fixture.Documents {
		category := doc.Category
		if category == "" {
			category = "DOCUMENT"
		}
		parts = append(parts, fmt.Sprintf("=== [%s] %s ===\n%s",
			strings.ToUpper(category), doc.Filename, doc.Text))
		bundle.Documents = append(bundle.Documents, model.DocumentRef{
			ID:       doc.ID,
			Filename: doc.Filename,
			Category: doc.Category,
			Size:     int64(len(doc.Text)),
		})
	}
	bundle.CombinedText = strings.Join(parts, "\n\n")
	return bundle, nil
}

func (f *fixtureSource) Requirements(_ context.Context, dealID string) ([]model.Requirement, error) {
	if dealID != f.fixture.Deal.ID {
		return nil, fmt.Errorf("fixture has no deal %q", dealID)
	}
	return f.fixture.Requirements, nil
}

func (f *fixtureSource) Communications(_ context.Context, dealID string) ([]model.Communication, error) {
	if dealID != f.fixture.Deal.ID {
		return nil, fmt.Errorf("fixture has no deal %q", dealID)
	}
	return f.fixture.Communications, nil
}

func (f *fixtureSource) Capabilities(context.Context) ([]model.CapabilityRecord, error) {
	return f.roster.Employees, nil
}

func (f *fixtureSource) Profile(context.Context) (model.OrgProfile, error) {
	return f.roster.Profile, nil
}
