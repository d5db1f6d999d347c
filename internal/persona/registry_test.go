package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveFallsBackToDefault(t *testing.T) {
	r := Builtin()

	for _, id := range []string{"", "unknown", "  "} {
		if got := r.Resolve(id).ID; got != DefaultID {
			t.Fatalf("Resolve(%q) = %q, want %q", id, got, DefaultID)
		}
	}
	if got := r.Resolve("sales").ID; got != "sales" {
		t.Fatalf("expected sales persona, got %q", got)
	}
	if _, ok := r.Lookup("unknown"); ok {
		t.Fatalf("Lookup should not fall back")
	}
}

func TestPersonaAllows(t *testing.T) {
	cases := []struct {
		min  Plan
		plan Plan
		want bool
	}{
		{PlanNone, PlanNone, true},
		{PlanNone, PlanProfessional, true},
		{PlanTrial, PlanNone, false},
		{PlanTrial, PlanTrial, true},
		{PlanProfessional, PlanEssential, false},
		{PlanProfessional, PlanProfessional, true},
		{PlanEssential, PlanProfessional, true},
	}
	for _, tc := range cases {
		p := Persona{ID: "x", SystemInstructions: "x", MinimumPlan: tc.min}
		if got := p.Allows(tc.plan); got != tc.want {
			t.Fatalf("min=%s plan=%s: got %v want %v", tc.min, tc.plan, got, tc.want)
		}
	}
}

func TestParsePlan(t *testing.T) {
	if ParsePlan("professional") != PlanProfessional {
		t.Fatalf("expected case-insensitive parse")
	}
	if ParsePlan(" TRIAL ") != PlanTrial {
		t.Fatalf("expected trimmed parse")
	}
	if ParsePlan("enterprise") != PlanNone {
		t.Fatalf("unknown plan should map to NONE")
	}
}

func TestNewRegistryRejectsInvalid(t *testing.T) {
	cases := []struct {
		name     string
		def      string
		personas []Persona
		want     string
	}{
		{"empty", "a", nil, "at least one"},
		{"empty id", "a", []Persona{{ID: " ", SystemInstructions: "x"}}, "empty id"},
		{"empty instructions", "a", []Persona{{ID: "a"}}, "empty instructions"},
		{"duplicate", "a", []Persona{{ID: "a", SystemInstructions: "x"}, {ID: "a", SystemInstructions: "y"}}, "more than once"},
		{"missing default", "b", []Persona{{ID: "a", SystemInstructions: "x"}}, "default persona"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.def, tc.personas...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	data := `
default: friendly
personas:
  - id: friendly
    instructions: be friendly
  - id: legal
    instructions: be precise
    minimum_plan: essential
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"friendly", "legal"}, r.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	want := Persona{ID: "legal", SystemInstructions: "be precise", MinimumPlan: PlanEssential}
	if diff := cmp.Diff(want, r.Resolve("legal")); diff != "" {
		t.Fatalf("persona mismatch (-want +got):\n%s", diff)
	}
	if r.DefaultID() != "friendly" {
		t.Fatalf("expected default friendly, got %q", r.DefaultID())
	}

	r, err = Load(path, "legal")
	if err != nil {
		t.Fatalf("load with override: %v", err)
	}
	if r.Resolve("nope").ID != "legal" {
		t.Fatalf("expected default override to apply")
	}
}

func TestLoadRejectsUnknownPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	data := "default: a\npersonas:\n  - id: a\n    instructions: x\n    minimum_plan: gold\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path, ""); err == nil || !strings.Contains(err.Error(), "minimum_plan") {
		t.Fatalf("expected minimum_plan error, got %v", err)
	}
}
