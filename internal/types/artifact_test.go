package types

import (
	"strings"
	"testing"
	"time"
)

func TestArtifactValidate(t *testing.T) {
	base := func() Artifact {
		return Artifact{
			FID:     "abc123",
			Kind:    KindDecision,
			Source:  SourceAgent,
			Content: "use postgres for the ledger store",
			Context: Context{
				Title:     "store choice",
				Target:    "ledger-store",
				Namespace: DefaultNamespace,
				Status:    StatusActive,
				Rationale: "needs transactional guarantees",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Artifact)
		wantErr string
	}{
		{"valid", func(a *Artifact) {}, ""},
		{"missing title", func(a *Artifact) { a.Context.Title = "" }, "title is required"},
		{"missing target", func(a *Artifact) { a.Context.Target = "" }, "target is required"},
		{"bad kind", func(a *Artifact) { a.Kind = Kind("nope") }, "invalid kind"},
		{"bad source", func(a *Artifact) { a.Source = Source("nope") }, "invalid source"},
		{"bad status", func(a *Artifact) { a.Context.Status = Status("nope") }, "invalid status"},
		{"short rationale on decision", func(a *Artifact) { a.Context.Rationale = "short" }, "rationale must be"},
		{"confidence too high", func(a *Artifact) { a.Context.Confidence = 1.5 }, "confidence must be"},
		{"confidence too low", func(a *Artifact) { a.Context.Confidence = -0.1 }, "confidence must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProposalShortRationaleAllowed(t *testing.T) {
	a := Artifact{
		FID:    "p1",
		Kind:   KindProposal,
		Source: SourceAgent,
		Context: Context{
			Title:  "hypothesis",
			Target: "ledger-store",
			Status: StatusDraft,
		},
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("proposal should not need a long rationale: %v", err)
	}
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusActive, StatusSuperseded, true},
		{StatusActive, StatusDeprecated, true},
		{StatusSuperseded, StatusDeprecated, true},
		{StatusActive, StatusDraft, false},
		{StatusSuperseded, StatusActive, false},
		{StatusDeprecated, StatusActive, false},
		{StatusActive, StatusActive, true},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.ok {
			t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestSupersedesSelf(t *testing.T) {
	a := Artifact{FID: "f1", Context: Context{Supersedes: []string{"f1", "f2"}}}
	if !a.SupersedesSelf() {
		t.Error("expected SupersedesSelf to be true")
	}
	b := Artifact{FID: "f1", Context: Context{Supersedes: []string{"f2"}}}
	if b.SupersedesSelf() {
		t.Error("expected SupersedesSelf to be false")
	}
}

func TestIsMinorCorrection(t *testing.T) {
	tests := []struct {
		old, next string
		want      bool
	}{
		{"use postgres", "use postgres.", true},
		{"use postgres", "use postgres for storage entirely", false},
		{"abc", "xyz", false},
		{"", "", true},
		{"a", "ab", true},
	}
	for _, tt := range tests {
		if got := IsMinorCorrection(tt.old, tt.next); got != tt.want {
			t.Errorf("IsMinorCorrection(%q, %q) = %v, want %v", tt.old, tt.next, got, tt.want)
		}
	}
}

func TestArtifactNamespaceDefault(t *testing.T) {
	a := Artifact{}
	if got := a.Namespace(); got != DefaultNamespace {
		t.Errorf("Namespace() = %q, want %q", got, DefaultNamespace)
	}
	a.Context.Namespace = "custom"
	if got := a.Namespace(); got != "custom" {
		t.Errorf("Namespace() = %q, want %q", got, "custom")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	a := Artifact{
		FID:       "abc123",
		Kind:      KindDecision,
		Source:    SourceUser,
		Content:   "use postgres for the ledger store\nwith pgbouncer in front",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Context: Context{
			Title:      "store choice",
			Target:     "ledger-store",
			Namespace:  "infra",
			Status:     StatusActive,
			Rationale:  "needs transactional guarantees",
			Keywords:   []string{"postgres", "storage"},
			DecisionID: "d-1",
			Phase:      PhaseEmergent,
			Vitality:   VitalityActive,
			Extra:      map[string]any{"owner": "platform-team"},
		},
	}

	data, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	got, err := ParseArtifact(a.FID, data)
	if err != nil {
		t.Fatalf("ParseArtifact() error: %v", err)
	}

	if got.FID != a.FID || got.Kind != a.Kind || got.Source != a.Source || got.Content != a.Content {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, a)
	}
	if !got.Timestamp.Equal(a.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, a.Timestamp)
	}
	if got.Context.Title != a.Context.Title || got.Context.Target != a.Context.Target {
		t.Errorf("Context mismatch: got %+v, want %+v", got.Context, a.Context)
	}
	if len(got.Context.Keywords) != 2 {
		t.Errorf("Keywords = %v, want 2 entries", got.Context.Keywords)
	}
	if got.Context.Extra["owner"] != "platform-team" {
		t.Errorf("Extra = %v, want owner=platform-team preserved", got.Context.Extra)
	}
}
