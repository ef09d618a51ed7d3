// Package planpack loads pathway plan packs: YAML files binding guard rules
// and rule-based plan suggestions to a clinical pathway.
package planpack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aliendevit/minuteone/internal/guard"
	"github.com/aliendevit/minuteone/internal/model"
)

// Suggestion is one rule-based plan suggestion from a pack.
type Suggestion struct {
	Kind    string            `yaml:"kind" json:"kind"`
	Name    string            `yaml:"name" json:"name"`
	Payload map[string]string `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Pack is a loaded plan pack.
type Pack struct {
	Pathway string       `yaml:"pathway" json:"pathway"`
	Guards  []guard.Rule `yaml:"guards" json:"guards"`
	Suggest []Suggestion `yaml:"suggest" json:"suggest"`
}

// Load reads and validates one pack file.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan pack: %w", err)
	}
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan pack %s: %w", path, err)
	}
	if p.Pathway == "" {
		return nil, fmt.Errorf("plan pack %s missing pathway", path)
	}
	for _, g := range p.Guards {
		if g.Name == "" {
			return nil, fmt.Errorf("plan pack %s has a guard without a name", path)
		}
	}
	return &p, nil
}

// LoadDir loads every *.yaml pack in a directory, keyed by pathway.
func LoadDir(dir string) (map[string]*Pack, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	packs := make(map[string]*Pack, len(matches))
	for _, m := range matches {
		p, err := Load(m)
		if err != nil {
			return nil, err
		}
		packs[p.Pathway] = p
	}
	return packs, nil
}

// Result is the outcome of evaluating a pack against a visit.
type Result struct {
	GuardFlags  []model.GuardResult `json:"guard_flags"`
	Suggestions []Suggestion        `json:"suggestions"`
}

// Evaluate runs the pack's guards and returns its suggestions. Any blocked
// guard suppresses every suggestion; the caller surfaces the block as a
// band-D guard chip instead.
func Evaluate(ctx context.Context, p *Pack, ev *guard.Evaluator, visit model.Visit) Result {
	flags := ev.Evaluate(ctx, p.Guards, visit)
	res := Result{GuardFlags: flags}
	if model.AnyBlocked(flags) {
		return res
	}
	res.Suggestions = p.Suggest
	return res
}
