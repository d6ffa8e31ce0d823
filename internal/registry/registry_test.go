package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/boshu2/cadence/internal/types"
)

const registryYAML = `
katas:
  - name: feature
    categories: [research, plan, build, review]
  - name: spike
    categories: [research]
flavors:
  - name: deep-dive
    category: research
    steps: [scan, synthesize]
  - name: quick-scan
    category: research
  - name: standard-build
    category: build
    resources:
      tools: [compiler]
steps:
  - name: scan
    type: research
    artifacts: [scan-notes]
    resources:
      tools: [grep]
      agents: [scout]
  - name: synthesize
    type: research
    prompt_template: "Summarize the findings."
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load(missing) = %v, want empty registry", err)
	}
	if got := r.ListKatas(); len(got) != 0 {
		t.Errorf("ListKatas() = %v, want empty", got)
	}
}

func TestLoadParsesAllSections(t *testing.T) {
	r, err := Load(writeRegistry(t, registryYAML))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	kata, err := r.GetKata("feature")
	if err != nil {
		t.Fatalf("GetKata(feature) = %v", err)
	}
	if len(kata.Categories) != 4 || kata.Categories[0] != "research" {
		t.Errorf("feature categories = %v", kata.Categories)
	}

	step, err := r.GetStep("synthesize")
	if err != nil {
		t.Fatalf("GetStep(synthesize) = %v", err)
	}
	if step.PromptTemplate != "Summarize the findings." {
		t.Errorf("prompt template = %q", step.PromptTemplate)
	}

	flavor, err := r.GetFlavor("standard-build")
	if err != nil {
		t.Fatalf("GetFlavor(standard-build) = %v", err)
	}
	if len(flavor.Resources.Tools) != 1 || flavor.Resources.Tools[0] != "compiler" {
		t.Errorf("flavor tools = %v", flavor.Resources.Tools)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeRegistry(t, "katas: [}")); err == nil {
		t.Fatal("Load(malformed) = nil, want error")
	}
}

func TestFlavorsForSortedByName(t *testing.T) {
	r, err := Load(writeRegistry(t, registryYAML))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	flavors := r.FlavorsFor("research")
	if len(flavors) != 2 {
		t.Fatalf("FlavorsFor(research) = %d flavors, want 2", len(flavors))
	}
	if flavors[0].Name != "deep-dive" || flavors[1].Name != "quick-scan" {
		t.Errorf("flavor order = %s, %s; want sorted by name", flavors[0].Name, flavors[1].Name)
	}

	if got := r.FlavorsFor("review"); len(got) != 0 {
		t.Errorf("FlavorsFor(review) = %v, want empty", got)
	}
}

func TestGetKataNotFound(t *testing.T) {
	r := New()
	_, err := r.GetKata("missing")
	var notFound *types.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("GetKata(missing) = %v, want NotFoundError", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := New()
	if err := r.RegisterKata(Kata{Name: "empty"}); err == nil {
		t.Error("RegisterKata without categories = nil, want error")
	}
	if err := r.RegisterFlavor(Flavor{Name: "orphan"}); err == nil {
		t.Error("RegisterFlavor without category = nil, want error")
	}
	if err := r.RegisterStep(StepDef{}); err == nil {
		t.Error("RegisterStep without name = nil, want error")
	}
}
