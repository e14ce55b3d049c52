package parse

import (
	"fmt"
	"strings"

	"github.com/pavelanni/smartexam/internal/model"
)

// DedupPolicy decides which questions count as repeats of an earlier one.
type DedupPolicy string

const (
	// DedupOff keeps every question.
	DedupOff DedupPolicy = "off"
	// DedupExact drops a question whose prompt equals an earlier prompt after case
	// folding and whitespace collapsing.
	DedupExact DedupPolicy = "exact"
)

// ParseDedupPolicy validates a policy name. Empty means DedupOff.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch p := DedupPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", DedupOff:
		return DedupOff, nil
	case DedupExact:
		return p, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q", s)
	}
}

// Deduper remembers the prompts it has accepted across calls, so one instance spans
// every chunk of an assembly.
type Deduper struct {
	policy DedupPolicy
	seen   map[string]int
	count  int
}

// NewDeduper returns a Deduper applying policy.
func NewDeduper(policy DedupPolicy) *Deduper {
	return &Deduper{policy: policy, seen: make(map[string]int)}
}

// Duplicate is a dropped question and the position of the question it repeats.
type Duplicate struct {
	Question model.Question
	Of       int
}

// Filter returns the questions of qs not seen before, in order, and the ones dropped.
func (d *Deduper) Filter(qs model.QuestionSet) (model.QuestionSet, []Duplicate) {
	if d.policy != DedupExact {
		d.count += len(qs)
		return qs, nil
	}
	var kept model.QuestionSet
	var dropped []Duplicate
	for _, q := range qs {
		key := normalizePrompt(q.Prompt)
		if pos, ok := d.seen[key]; ok {
			dropped = append(dropped, Duplicate{Question: q, Of: pos})
			continue
		}
		d.seen[key] = d.count
		d.count++
		kept = append(kept, q)
	}
	return kept, dropped
}

func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
