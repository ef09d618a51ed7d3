package planpack

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aliendevit/minuteone/internal/guard"
	"github.com/aliendevit/minuteone/internal/model"
)

const chestPainPack = `
pathway: chest_pain
guards:
  - name: require_absent
    args: [stemi]
  - name: check_allergy
    args: [aspirin]
suggest:
  - kind: lab_series
    name: troponin
    payload:
      interval: 3h
  - kind: med_admin
    name: aspirin
    payload:
      dose: 324mg
`

func writePack(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

type noLookup struct{}

func (noLookup) LookupLatest(context.Context, string) (*model.Fact, error) { return nil, nil }

func TestLoad(t *testing.T) {
	path := writePack(t, t.TempDir(), "chest_pain.yaml", chestPainPack)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Pathway != "chest_pain" {
		t.Errorf("expected chest_pain, got %q", p.Pathway)
	}
	if len(p.Guards) != 2 || p.Guards[0].Name != "require_absent" {
		t.Errorf("guards mismatch: %+v", p.Guards)
	}
	if len(p.Suggest) != 2 || p.Suggest[1].Payload["dose"] != "324mg" {
		t.Errorf("suggestions mismatch: %+v", p.Suggest)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	noPathway := writePack(t, dir, "bad.yaml", "guards: []\nsuggest: []\n")
	if _, err := Load(noPathway); err == nil {
		t.Error("expected error for missing pathway")
	}

	unnamedGuard := writePack(t, dir, "bad2.yaml", "pathway: x\nguards:\n  - args: [a]\n")
	if _, err := Load(unnamedGuard); err == nil {
		t.Error("expected error for unnamed guard")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "chest_pain.yaml", chestPainPack)
	writePack(t, dir, "other.yaml", "pathway: seizure_peds\nguards: []\nsuggest: []\n")
	// Non-yaml files are ignored.
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644)

	packs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(packs) != 2 {
		t.Fatalf("expected 2 packs, got %d", len(packs))
	}
	if packs["chest_pain"] == nil || packs["seizure_peds"] == nil {
		t.Errorf("packs not keyed by pathway: %v", packs)
	}
}

func TestEvaluateSuppressesOnBlock(t *testing.T) {
	path := writePack(t, t.TempDir(), "chest_pain.yaml", chestPainPack)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ev := guard.New(noLookup{})

	// Allergy status unknown: guard blocks, suggestions suppressed.
	unknown := model.Visit{ChiefComplaint: "chest pain"}
	res := Evaluate(context.Background(), p, ev, unknown)
	if !model.AnyBlocked(res.GuardFlags) {
		t.Fatal("expected a blocking guard flag")
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("blocked pack must not emit suggestions, got %+v", res.Suggestions)
	}

	// All guards pass: suggestions flow through.
	clean := model.Visit{ChiefComplaint: "chest pain", Allergies: []string{}}
	res = Evaluate(context.Background(), p, ev, clean)
	if model.AnyBlocked(res.GuardFlags) {
		t.Fatalf("expected all guards passing, got %+v", res.GuardFlags)
	}
	if len(res.Suggestions) != 2 {
		t.Errorf("expected 2 suggestions, got %d", len(res.Suggestions))
	}
}
