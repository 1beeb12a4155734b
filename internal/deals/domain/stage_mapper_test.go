package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDefaultStageMapper(t *testing.T) {
	m := DefaultStageMapper()

	tests := []struct {
		revisionType string
		category     string
		want         Stage
	}{
		{"walkthrough_proposal", "", StageProspecting},
		{"Final_Quote", "", StageProposal},
		{"final_quote", "site_visit", StageProspecting},
		{"other", "", StageQualification},
		{"", "", StageQualification},
		{"counter_offer", "roofing", StageNegotiation},
	}

	for _, tc := range tests {
		if got := m.Map(tc.revisionType, tc.category); got != tc.want {
			t.Errorf("Map(%q, %q) = %q, want %q", tc.revisionType, tc.category, got, tc.want)
		}
	}
}

func TestStageMapperPairBeatsCategory(t *testing.T) {
	m, err := NewStageMapper([]StageRule{
		{Category: "roofing", Stage: StageProspecting},
		{RevisionType: "final_quote", Category: "roofing", Stage: StageNegotiation},
	}, StageQualification)
	if err != nil {
		t.Fatalf("NewStageMapper returned error: %v", err)
	}

	if got := m.Map("final_quote", "roofing"); got != StageNegotiation {
		t.Fatalf("expected pair rule to win, got %q", got)
	}
	if got := m.Map("other", "roofing"); got != StageProspecting {
		t.Fatalf("expected category rule, got %q", got)
	}
}

func TestNewStageMapperRejectsTerminalHints(t *testing.T) {
	if _, err := NewStageMapper([]StageRule{{RevisionType: "x", Stage: StageClosedWon}}, StageQualification); err == nil {
		t.Fatal("expected closed stage hint to be rejected")
	}
	if _, err := NewStageMapper(nil, StageClosedLost); err == nil {
		t.Fatal("expected closed default to be rejected")
	}
	if _, err := NewStageMapper([]StageRule{{Stage: StageProposal}}, StageQualification); err == nil {
		t.Fatal("expected wildcard-only rule to be rejected")
	}
}

func TestLoadStageMapperFromYAML(t *testing.T) {
	doc := `
default: proposal
rules:
  - revisionType: walkthrough_proposal
    stage: prospecting
  - category: enterprise
    stage: negotiation
`
	m, err := LoadStageMapper(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadStageMapper returned error: %v", err)
	}
	if got := m.Map("unrecognized", ""); got != StageProposal {
		t.Fatalf("expected yaml default proposal, got %q", got)
	}
	if got := m.Map("final_quote", "Enterprise"); got != StageNegotiation {
		t.Fatalf("expected category rule, got %q", got)
	}
}

func TestLoadStageMapperRejectsUnknownFields(t *testing.T) {
	if _, err := LoadStageMapper(strings.NewReader("rulez: []\n")); err == nil {
		t.Fatal("expected unknown yaml field to be rejected")
	}
}

func TestIdempotencyKeyFormat(t *testing.T) {
	id := uuid.MustParse("6f1c1c3e-9a52-4a5b-8f3e-2d7a9b0c1d2e")
	got := IdempotencyKey(KindRevisionSent, id, 3)
	if got != "revision_sent:6f1c1c3e-9a52-4a5b-8f3e-2d7a9b0c1d2e:3" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseEventKind(t *testing.T) {
	for _, k := range AllEventKinds {
		got, err := ParseEventKind(string(k))
		if err != nil || got != k {
			t.Fatalf("ParseEventKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseEventKind("signed"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
	if !KindViewed.IsLowValue() || KindAccepted.IsLowValue() {
		t.Fatal("only viewed is low value")
	}
}

func TestIsClosedStage(t *testing.T) {
	if !IsClosedStage(StageClosedWon) || !IsClosedStage(StageClosedLost) {
		t.Fatal("closed_won and closed_lost are closed")
	}
	if IsClosedStage(StageNegotiation) {
		t.Fatal("negotiation is open")
	}
}
