package research

import (
	"fmt"
	"sort"

	goahocorasick "github.com/anknown/ahocorasick"
)

const (
	markFinalConclusionHeading = "## Final Conclusion"
	markConclusionHeading      = "## Conclusion"
	markSummaryHeading         = "## Summary"

	markProceed           = "I will now proceed to"
	markNextSteps         = "Next Steps"
	markNextIteration     = "next iteration"
	markInNextIteration   = "In the next iteration"
	markConcludesResearch = "This concludes our research"
	markCompletesInvest   = "This completes our investigation"
	markConcludesProcess  = "This concludes the deep research process"
	markKeyFindings       = "Key Findings and Implementation Details"
	markInConclusion      = "In conclusion,"
	markFinal             = "Final"
	markConclusion        = "Conclusion"

	markDockerfile     = "Dockerfile"
	markThisDockerfile = "This Dockerfile"
	markTheDockerfile  = "The Dockerfile"
)

var markers = []string{
	markFinalConclusionHeading, markConclusionHeading, markSummaryHeading,
	markProceed, markNextSteps, markNextIteration, markInNextIteration,
	markConcludesResearch, markCompletesInvest, markConcludesProcess,
	markKeyFindings, markInConclusion, markFinal, markConclusion,
	markDockerfile, markThisDockerfile, markTheDockerfile,
}

// implied lists markers contained in a longer one, so a hit on the longer
// marker counts for the shorter ones too.
var implied = map[string][]string{
	markFinalConclusionHeading: {markFinal, markConclusion},
	markConclusionHeading:      {markConclusion},
	markInNextIteration:        {markNextIteration},
	markThisDockerfile:         {markDockerfile},
	markTheDockerfile:          {markDockerfile},
}

// Detector finds the phrases a research answer uses to signal that it is
// the last one.
type Detector struct {
	machine *goahocorasick.Machine
}

// NewDetector builds the phrase automaton.
func NewDetector() (*Detector, error) {
	sorted := append([]string(nil), markers...)
	sort.Strings(sorted)
	patterns := make([][]rune, len(sorted))
	for i, m := range sorted {
		patterns[i] = []rune(m)
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, fmt.Errorf("build research marker automaton: %w", err)
	}
	return &Detector{machine: machine}, nil
}

var defaultDetector = mustDetector()

func mustDetector() *Detector {
	d, err := NewDetector()
	if err != nil {
		panic(err)
	}
	return d
}

// IsComplete reports whether content reads as a concluded research answer.
func IsComplete(content string) bool {
	return defaultDetector.IsComplete(content)
}

// IsComplete reports whether content reads as a concluded research answer.
func (d *Detector) IsComplete(content string) bool {
	found := d.scan(content)
	continues := found[markNextSteps] || found[markProceed] || found[markNextIteration]

	if found[markFinalConclusionHeading] {
		return true
	}
	if (found[markConclusionHeading] || found[markSummaryHeading]) && !continues {
		return true
	}
	if found[markConcludesResearch] || found[markCompletesInvest] || found[markConcludesProcess] ||
		found[markKeyFindings] || found[markInConclusion] ||
		(found[markFinal] && found[markConclusion]) {
		return true
	}
	if found[markDockerfile] && (found[markThisDockerfile] || found[markTheDockerfile]) &&
		!found[markNextSteps] && !found[markInNextIteration] {
		return true
	}
	return false
}

func (d *Detector) scan(content string) map[string]bool {
	found := make(map[string]bool)
	if content == "" {
		return found
	}
	for _, term := range d.machine.MultiPatternSearch([]rune(content), false) {
		word := string(term.Word)
		found[word] = true
		for _, w := range implied[word] {
			found[w] = true
		}
	}
	return found
}
