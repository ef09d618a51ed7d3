// Package compose renders deterministic note, handoff, and discharge
// documents from a visit record and its evidence. Rendering is a pure
// function: identical inputs produce identical text. Missing sections are
// listed, never guessed.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aliendevit/minuteone/internal/model"
)

// EvidenceItem pairs a cited fact with its delta indicator.
type EvidenceItem struct {
	Fact  model.Fact
	Delta model.Delta
}

// Artifact is a rendered document with its ordered citation list.
type Artifact struct {
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

type citationMap map[string]int

func buildCitations(evidence []EvidenceItem) (citationMap, []string) {
	m := citationMap{}
	var order []string
	for _, item := range evidence {
		src := item.Fact.SourceID
		if src == "" {
			src = item.Fact.ID
		}
		if _, ok := m[src]; !ok {
			m[src] = len(m) + 1
			order = append(order, src)
		}
	}
	return m, order
}

func (c citationMap) mark(f model.Fact) string {
	src := f.SourceID
	if src == "" {
		src = f.ID
	}
	if idx, ok := c[src]; ok {
		return fmt.Sprintf("[^%d]", idx)
	}
	return ""
}

func footnotes(evidence []EvidenceItem, cites citationMap) []string {
	var lines []string
	seen := map[string]bool{}
	for _, item := range evidence {
		f := item.Fact
		src := f.SourceID
		if src == "" {
			src = f.ID
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		lines = append(lines, fmt.Sprintf("[^%d]: %s %s at %s (%s)",
			cites[src], f.Name, f.Value, f.Time.Format("2006-01-02 15:04"), src))
	}
	return lines
}

func missingSections(visit model.Visit) []string {
	var missing []string
	if visit.HPI.Onset == "" {
		missing = append(missing, "HPI onset")
	}
	if visit.HPI.Quality == "" {
		missing = append(missing, "HPI quality")
	}
	if len(visit.PlanIntents) == 0 {
		missing = append(missing, "Plan intents")
	}
	return missing
}

func evidenceLine(item EvidenceItem, cites citationMap) string {
	f := item.Fact
	line := fmt.Sprintf("- %s: %s", f.Name, f.Value)
	if !item.Delta.Insufficient() {
		line += " " + item.Delta.Indicator()
		if item.Delta.Magnitude != nil && item.Delta.Direction != model.DirUnchanged {
			line += fmt.Sprintf("%g", *item.Delta.Magnitude)
		}
	}
	return line + " " + cites.mark(f)
}

// Note renders the clinical note.
func Note(visit model.Visit, evidence []EvidenceItem) Artifact {
	cites, order := buildCitations(evidence)
	var b strings.Builder

	b.WriteString("# Clinical Note\n\n")
	b.WriteString("## Chief Complaint\n")
	b.WriteString(visit.ChiefComplaint + "\n\n")

	b.WriteString("## HPI\n")
	if visit.HPI.Onset != "" {
		b.WriteString("- Onset: " + visit.HPI.Onset + "\n")
	}
	if visit.HPI.Quality != "" {
		b.WriteString("- Quality: " + visit.HPI.Quality + "\n")
	}
	for _, m := range visit.HPI.Modifiers {
		b.WriteString("- Modifier: " + m + "\n")
	}
	if len(visit.HPI.AssociatedSymptoms) > 0 {
		b.WriteString("- Associated: " + strings.Join(visit.HPI.AssociatedSymptoms, ", ") + "\n")
	}
	if len(visit.HPI.RedFlags) > 0 {
		b.WriteString("- Red flags: " + strings.Join(visit.HPI.RedFlags, ", ") + "\n")
	}
	b.WriteString("\n")

	if len(visit.ExamBits) > 0 {
		b.WriteString("## Exam\n")
		for _, key := range sortedKeys(visit.ExamBits) {
			b.WriteString(fmt.Sprintf("- %s: %s\n", key, visit.ExamBits[key]))
		}
		b.WriteString("\n")
	}

	if len(evidence) > 0 {
		b.WriteString("## Data\n")
		for _, item := range evidence {
			b.WriteString(evidenceLine(item, cites) + "\n")
		}
		b.WriteString("\n")
	}

	if len(visit.PlanIntents) > 0 {
		b.WriteString("## Plan\n")
		for _, intent := range visit.PlanIntents {
			line := "- " + intent.Name
			if intent.Dose != "" {
				line += " " + intent.Dose
			}
			if len(intent.Schedule) > 0 {
				line += " (" + strings.Join(intent.Schedule, ", ") + ")"
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}

	if missing := missingSections(visit); len(missing) > 0 {
		b.WriteString("## Incomplete\n")
		for _, m := range missing {
			b.WriteString("- " + m + "\n")
		}
		b.WriteString("\n")
	}

	return finish(b, evidence, cites, order)
}

// Handoff renders an I-PASS style handoff summary.
func Handoff(visit model.Visit, evidence []EvidenceItem) Artifact {
	cites, order := buildCitations(evidence)
	var b strings.Builder

	b.WriteString("# Handoff (I-PASS)\n\n")
	b.WriteString("## Illness Severity\n")
	if len(visit.HPI.RedFlags) > 0 {
		b.WriteString("Watcher: " + strings.Join(visit.HPI.RedFlags, ", ") + "\n\n")
	} else {
		b.WriteString("Stable\n\n")
	}

	b.WriteString("## Patient Summary\n")
	b.WriteString(visit.ChiefComplaint)
	if visit.HPI.Onset != "" {
		b.WriteString(", " + visit.HPI.Onset)
	}
	b.WriteString("\n\n")

	if len(evidence) > 0 {
		b.WriteString("## Action List\n")
		for _, item := range evidence {
			b.WriteString(evidenceLine(item, cites) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Situation Awareness\n")
	if len(visit.Risks) > 0 {
		b.WriteString("Risks: " + strings.Join(visit.Risks, ", ") + "\n\n")
	} else {
		b.WriteString("No flagged risks\n\n")
	}

	return finish(b, evidence, cites, order)
}

// Discharge renders discharge instructions. Language selects the section
// headings; content is never translated or invented.
func Discharge(visit model.Visit, evidence []EvidenceItem, language string) Artifact {
	cites, order := buildCitations(evidence)
	var b strings.Builder

	title, followUp, seekCare := "Discharge Instructions", "Follow Up", "Return If"
	if language == "es" {
		title, followUp, seekCare = "Instrucciones de Alta", "Seguimiento", "Regrese Si"
	}

	b.WriteString("# " + title + "\n\n")
	b.WriteString(visit.ChiefComplaint + "\n\n")

	b.WriteString("## " + followUp + "\n")
	for _, intent := range visit.PlanIntents {
		b.WriteString("- " + intent.Name + "\n")
	}
	b.WriteString("\n## " + seekCare + "\n")
	if len(visit.HPI.RedFlags) > 0 {
		for _, r := range visit.HPI.RedFlags {
			b.WriteString("- " + r + "\n")
		}
	} else {
		b.WriteString("- symptoms worsen\n")
	}
	b.WriteString("\n")

	return finish(b, evidence, cites, order)
}

func finish(b strings.Builder, evidence []EvidenceItem, cites citationMap, order []string) Artifact {
	content := strings.TrimSpace(b.String())
	if notes := footnotes(evidence, cites); len(notes) > 0 {
		content += "\n\n" + strings.Join(notes, "\n")
	}
	return Artifact{Content: content, Citations: order}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
