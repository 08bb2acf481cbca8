package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spigell/interviewer/internal/grading"
)

var (
	caseCall     = regexp.MustCompile(`\b([A-Z][A-Z0-9.]*)\s*\(`)
	caseRange    = regexp.MustCompile(`\$?[A-Z]{1,3}\$?[0-9]+:\$?[A-Z]{1,3}\$?[0-9]+`)
	caseNumbered = regexp.MustCompile(`(?m)^\s*[0-9]+[.)]\s`)
)

var reasoningMarkers = []string{"because", "since", "this will", "to calculate", "in order to", "so that"}

const caseConfidence = 0.5

// GradeCase scores the structure of a case-study answer: spreadsheet functions
// applied, ranges named, steps laid out and reasoning given. The number of
// features present picks the band. It cannot judge whether the analysis is
// right, so its confidence stays low.
func (g *Grader) GradeCase(answer string) grading.Result {
	upper := strings.ToUpper(answer)

	seen := map[string]bool{}
	for _, m := range caseCall.FindAllStringSubmatch(upper, -1) {
		if _, ok := knownFunctions[m[1]]; ok {
			seen[m[1]] = true
		}
	}

	var notes []string

	if n := len(seen); n > 0 {
		notes = append(notes, fmt.Sprintf("Applies %d spreadsheet function(s).", n))
	}
	if len(caseRange.FindAllString(upper, -1)) >= 2 {
		notes = append(notes, "References concrete data ranges.")
	}
	if caseNumbered.MatchString(answer) {
		notes = append(notes, "Lays the approach out in steps.")
	}
	lower := strings.ToLower(answer)
	for _, m := range reasoningMarkers {
		if strings.Contains(lower, m) {
			notes = append(notes, "Explains the reasoning.")
			break
		}
	}

	features := len(notes)
	if features == 0 {
		notes = append(notes, "No concrete spreadsheet approach found.")
	}
	return grading.Result{
		Score:      caseBand(features),
		Confidence: caseConfidence,
		Feedback:   strings.Join(notes, " "),
	}
}

// caseBand maps the count of structural features onto the rule bands.
func caseBand(features int) float64 {
	switch {
	case features >= 4:
		return BandFull
	case features >= 2:
		return BandPartial
	case features == 1:
		return BandWeak
	default:
		return BandNone
	}
}
