package materialize

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultMaxSamples is the number of sample appids kept per column or rule.
const DefaultMaxSamples = 5

// Report is the outcome of one validation pass.
type Report struct {
	Checked       int64
	Discrepancies map[string]int64
	Violations    map[string]int64

	// Samples holds up to MaxSamples appids per column or rule name.
	Samples    map[string][]int64
	MaxSamples int
	Elapsed    time.Duration
}

func newReport(maxSamples int) *Report {
	return &Report{
		Discrepancies: make(map[string]int64),
		Violations:    make(map[string]int64),
		Samples:       make(map[string][]int64),
		MaxSamples:    maxSamples,
	}
}

// Clean reports whether the pass found no discrepancy and no violation.
func (r *Report) Clean() bool {
	return r.TotalDiscrepancies() == 0 && r.TotalViolations() == 0
}

// TotalDiscrepancies sums discrepancies over all columns.
func (r *Report) TotalDiscrepancies() int64 {
	var n int64
	for _, c := range r.Discrepancies {
		n += c
	}
	return n
}

// TotalViolations sums violations over all rules.
func (r *Report) TotalViolations() int64 {
	var n int64
	for _, c := range r.Violations {
		n += c
	}
	return n
}

func (r *Report) discrepancy(column string, appID int64) {
	r.Discrepancies[column]++
	r.sample(column, appID)
}

func (r *Report) violation(rule string, appID int64) {
	r.Violations[rule]++
	r.sample(rule, appID)
}

func (r *Report) sample(key string, appID int64) {
	if len(r.Samples[key]) < r.MaxSamples {
		r.Samples[key] = append(r.Samples[key], appID)
	}
}

// String renders a one-line summary followed by one line per failing
// column or rule.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "checked %d rows: %d discrepancies, %d violations",
		r.Checked, r.TotalDiscrepancies(), r.TotalViolations())
	for _, name := range sortedKeys(r.Discrepancies) {
		fmt.Fprintf(&b, "\n  column %s: %d (e.g. %v)", name, r.Discrepancies[name], r.Samples[name])
	}
	for _, name := range sortedKeys(r.Violations) {
		fmt.Fprintf(&b, "\n  rule %s: %d (e.g. %v)", name, r.Violations[name], r.Samples[name])
	}
	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k, n := range m {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
