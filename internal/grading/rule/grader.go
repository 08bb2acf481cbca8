package rule

import (
	"fmt"
	"strings"

	"github.com/spigell/interviewer/internal/grading"
	"github.com/spigell/interviewer/internal/questionbank"
)

// Score bands. The rule grader answers "is it structurally plausible", so it
// never produces values in between.
const (
	BandNone    = 0
	BandWeak    = 40
	BandPartial = 70
	BandFull    = 100

	confidentScore = 0.9
	unsureScore    = 0.5
)

// Resembles reports whether the answer contains a formula-shaped fragment.
func Resembles(answer string) bool {
	_, ok := extractFormula(answer)
	return ok
}

// MidBand reports whether a rule score is neither clearly right nor clearly wrong.
func MidBand(score float64) bool {
	return score > BandNone && score < BandFull
}

// Grader is the deterministic structural grader. It holds no state.
type Grader struct{}

func New() *Grader {
	return &Grader{}
}

// Grade checks answer against the question's structural rules. A question without
// rules is checked for structure alone.
func (g *Grader) Grade(answer string, q *questionbank.Question) grading.Result {
	formula, ok := extractFormula(answer)
	if !ok {
		return grading.Result{
			Score:      BandNone,
			Confidence: confidentScore,
			Feedback:   "No formula found in the answer.",
		}
	}

	var rules questionbank.Rules
	if q != nil && q.Rules != nil {
		rules = *q.Rules
	}

	issues := check(lex(formula), rules)
	return band(issues)
}

func band(issues []string) grading.Result {
	switch len(issues) {
	case 0:
		return grading.Result{Score: BandFull, Confidence: confidentScore, Feedback: "Formula structure looks correct."}
	case 1:
		return grading.Result{Score: BandPartial, Confidence: unsureScore, Feedback: strings.Join(issues, " "), Flags: []grading.Flag{grading.FlagAmbiguous}}
	case 2:
		return grading.Result{Score: BandWeak, Confidence: unsureScore, Feedback: strings.Join(issues, " "), Flags: []grading.Flag{grading.FlagAmbiguous}}
	default:
		return grading.Result{Score: BandNone, Confidence: 0.8, Feedback: strings.Join(issues, " ")}
	}
}

type frame struct {
	name     string
	seps     int
	nonEmpty bool
}

// check returns one message per failed check category.
func check(l lexed, rules questionbank.Rules) []string {
	var issues []string

	used := map[string]bool{}
	var unknown []string
	var arityIssues []string
	var errLiterals []string
	hasAbsolute, hasRelative, hasRange := false, false, false

	var stack []*frame
	balanced := !l.unterminatedText

	for i := 0; i < len(l.tokens); i++ {
		t := l.tokens[i]
		if len(stack) > 0 && t.kind != tokClose && t.kind != tokSep {
			stack[len(stack)-1].nonEmpty = true
		}

		switch t.kind {
		case tokFunc:
			used[t.text] = true
			if _, ok := knownFunctions[t.text]; !ok {
				unknown = append(unknown, t.text)
			}
			stack = append(stack, &frame{name: t.text})
			if i+1 < len(l.tokens) && l.tokens[i+1].kind == tokOpen {
				i++
			}
		case tokOpen:
			stack = append(stack, &frame{})
		case tokSep:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.seps++
				top.nonEmpty = true
			}
		case tokClose:
			if len(stack) == 0 {
				balanced = false
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				stack[len(stack)-1].nonEmpty = true
			}
			if top.name == "" {
				continue
			}
			argc := 0
			if top.nonEmpty {
				argc = top.seps + 1
			}
			if a, ok := knownFunctions[top.name]; ok && (argc < a.min || argc > a.max) {
				arityIssues = append(arityIssues, arityMessage(top.name, a, argc))
			}
		case tokRef, tokRange:
			if t.kind == tokRange {
				hasRange = true
			}
			for _, ref := range t.refs {
				abs, rel := anchoring(ref)
				hasAbsolute = hasAbsolute || abs
				hasRelative = hasRelative || rel
			}
		case tokError:
			errLiterals = append(errLiterals, t.text)
		}
	}
	if len(stack) > 0 {
		balanced = false
	}

	if !balanced {
		issues = append(issues, "Parentheses or quotes are not balanced.")
	}
	if len(unknown) > 0 {
		issues = append(issues, fmt.Sprintf("Unrecognized function(s): %s.", strings.Join(unique(unknown), ", ")))
	}
	if balanced && len(arityIssues) > 0 {
		issues = append(issues, strings.Join(arityIssues, " "))
	}
	if len(errLiterals) > 0 {
		issues = append(issues, fmt.Sprintf("Formula contains error value %s.", strings.Join(unique(errLiterals), ", ")))
	}

	var missing []string
	for _, fn := range rules.Functions {
		if !used[fn] {
			missing = append(missing, fn)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Expected function(s): %s.", strings.Join(missing, ", ")))
	}
	if len(rules.AnyOf) > 0 {
		found := false
		for _, fn := range rules.AnyOf {
			if used[fn] {
				found = true
				break
			}
		}
		if !found {
			issues = append(issues, fmt.Sprintf("Expected one of: %s.", strings.Join(rules.AnyOf, ", ")))
		}
	}
	if rules.RequireAbsolute && !hasAbsolute {
		issues = append(issues, "Expected an absolute reference ($).")
	}
	if rules.RequireRelative && !hasRelative {
		issues = append(issues, "Expected a relative reference.")
	}
	if rules.RequireRange && !hasRange {
		issues = append(issues, "Expected a range reference such as A2:A10.")
	}

	return issues
}

// anchoring reports whether a reference carries a '$' marker and whether any
// of its column/row parts is left relative.
func anchoring(ref string) (absolute, relative bool) {
	absolute = strings.Contains(ref, "$")
	letters, digits := 0, 0
	colAnchored, rowAnchored := false, false
	for i, r := range ref {
		switch {
		case r == '$':
			if i+1 < len(ref) && ref[i+1] >= '0' && ref[i+1] <= '9' {
				rowAnchored = true
			} else {
				colAnchored = true
			}
		case r >= '0' && r <= '9':
			digits++
		default:
			letters++
		}
	}
	if letters > 0 && !colAnchored {
		relative = true
	}
	if digits > 0 && !rowAnchored {
		relative = true
	}
	return absolute, relative
}

func arityMessage(name string, a arity, got int) string {
	switch {
	case a.min == a.max:
		return fmt.Sprintf("%s expects %d argument(s), got %d.", name, a.min, got)
	case a.max == variadic:
		return fmt.Sprintf("%s expects at least %d argument(s), got %d.", name, a.min, got)
	default:
		return fmt.Sprintf("%s expects %d to %d arguments, got %d.", name, a.min, a.max, got)
	}
}

func unique(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
