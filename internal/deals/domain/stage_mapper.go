package domain

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// StageRule maps a revision type and/or quote category to a stage hint.
// Empty fields act as wildcards; a rule needs at least one of them.
type StageRule struct {
	RevisionType string `yaml:"revisionType"`
	Category     string `yaml:"category"`
	Stage        Stage  `yaml:"stage"`
}

// StageMapper turns a revision's type and its quote's category into a stage hint.
// Lookups are pure; precedence is (type, category) pair, then category, then
// type, then the default.
type StageMapper struct {
	pairs      map[string]Stage
	categories map[string]Stage
	types      map[string]Stage
	fallback   Stage
}

// NewStageMapper validates rules and builds a mapper. Closed stages are
// rejected: only explicit accept/decline events may close a deal.
func NewStageMapper(rules []StageRule, fallback Stage) (*StageMapper, error) {
	if err := validateHint(fallback); err != nil {
		return nil, fmt.Errorf("default stage: %w", err)
	}

	m := &StageMapper{
		pairs:      make(map[string]Stage),
		categories: make(map[string]Stage),
		types:      make(map[string]Stage),
		fallback:   fallback,
	}
	for i, r := range rules {
		if err := validateHint(r.Stage); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rt, cat := normalize(r.RevisionType), normalize(r.Category)
		switch {
		case rt != "" && cat != "":
			m.pairs[rt+"|"+cat] = r.Stage
		case cat != "":
			m.categories[cat] = r.Stage
		case rt != "":
			m.types[rt] = r.Stage
		default:
			return nil, fmt.Errorf("rule %d: revisionType or category is required", i)
		}
	}
	return m, nil
}

// DefaultStageRules is the built-in table.
var DefaultStageRules = []StageRule{
	{RevisionType: "walkthrough_proposal", Stage: StageProspecting},
	{Category: "walkthrough", Stage: StageProspecting},
	{Category: "site_visit", Stage: StageProspecting},
	{RevisionType: "final_quote", Stage: StageProposal},
	{RevisionType: "counter_offer", Stage: StageNegotiation},
	{RevisionType: "negotiation", Stage: StageNegotiation},
}

// DefaultStageMapper returns the built-in mapping with qualification as default.
func DefaultStageMapper() *StageMapper {
	m, err := NewStageMapper(DefaultStageRules, StageQualification)
	if err != nil {
		panic("invalid default stage rules: " + err.Error())
	}
	return m
}

// Map returns the stage hint for a revision.
func (m *StageMapper) Map(revisionType, quoteCategory string) Stage {
	rt, cat := normalize(revisionType), normalize(quoteCategory)
	if s, ok := m.pairs[rt+"|"+cat]; ok {
		return s
	}
	if s, ok := m.categories[cat]; ok && cat != "" {
		return s
	}
	if s, ok := m.types[rt]; ok && rt != "" {
		return s
	}
	return m.fallback
}

type stageMapFile struct {
	Default Stage       `yaml:"default"`
	Rules   []StageRule `yaml:"rules"`
}

// LoadStageMapper reads a YAML table:
//
//	default: qualification
//	rules:
//	  - revisionType: final_quote
//	    stage: proposal
func LoadStageMapper(r io.Reader) (*StageMapper, error) {
	var f stageMapFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode stage map: %w", err)
	}
	if f.Default == "" {
		f.Default = StageQualification
	}
	return NewStageMapper(f.Rules, f.Default)
}

func validateHint(s Stage) error {
	if !IsKnownStage(s) {
		return fmt.Errorf("unknown stage %q", s)
	}
	if IsClosedStage(s) {
		return fmt.Errorf("stage %q is terminal and cannot be a hint", s)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
