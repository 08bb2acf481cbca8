package rule

import (
	"regexp"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokFunc tokenKind = iota
	tokRef
	tokRange
	tokString
	tokNumber
	tokBool
	tokName
	tokError
	tokOperator
	tokOpen
	tokClose
	tokSep
)

type token struct {
	kind tokenKind
	text string
	refs []string
}

var (
	cellRef   = regexp.MustCompile(`^\$?[A-Za-z]{1,3}\$?[0-9]+$`)
	columnRef = regexp.MustCompile(`^\$?[A-Za-z]{1,3}$`)
	rowRef    = regexp.MustCompile(`^\$?[0-9]+$`)
	number    = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?%?$`)
	funcName  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._]*$`)
)

// lexed is the outcome of scanning a formula body.
type lexed struct {
	tokens           []token
	unterminatedText bool
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_.$!:", r)
}

// lex scans a formula body (without the leading '=').
func lex(body string) lexed {
	var out lexed
	runes := []rune(body)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			j := i + 1
			closed := false
			for j < len(runes) {
				if runes[j] == '"' {
					if j+1 < len(runes) && runes[j+1] == '"' {
						j += 2
						continue
					}
					closed = true
					break
				}
				j++
			}
			if !closed {
				out.unterminatedText = true
				out.tokens = append(out.tokens, token{kind: tokString, text: string(runes[i:])})
				return out
			}
			out.tokens = append(out.tokens, token{kind: tokString, text: string(runes[i : j+1])})
			i = j + 1
		case r == '(':
			out.tokens = append(out.tokens, token{kind: tokOpen, text: "("})
			i++
		case r == ')':
			out.tokens = append(out.tokens, token{kind: tokClose, text: ")"})
			i++
		case r == ',' || r == ';':
			out.tokens = append(out.tokens, token{kind: tokSep, text: string(r)})
			i++
		case r == '#':
			rest := strings.ToUpper(string(runes[i:]))
			matched := ""
			for _, lit := range errorLiterals {
				if strings.HasPrefix(rest, lit) {
					matched = lit
					break
				}
			}
			if matched == "" {
				out.tokens = append(out.tokens, token{kind: tokOperator, text: "#"})
				i++
				continue
			}
			out.tokens = append(out.tokens, token{kind: tokError, text: matched})
			i += len([]rune(matched))
		case isWordChar(r):
			j := i
			for j < len(runes) && isWordChar(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			k := j
			for k < len(runes) && unicode.IsSpace(runes[k]) {
				k++
			}
			followedByParen := k < len(runes) && runes[k] == '('
			out.tokens = append(out.tokens, classify(word, followedByParen))
			i = j
		default:
			out.tokens = append(out.tokens, token{kind: tokOperator, text: string(r)})
			i++
		}
	}
	return out
}

func classify(word string, followedByParen bool) token {
	if followedByParen && funcName.MatchString(word) {
		return token{kind: tokFunc, text: strings.ToUpper(word)}
	}

	ref := word
	if idx := strings.LastIndex(ref, "!"); idx >= 0 {
		ref = ref[idx+1:]
	}

	if parts := strings.Split(ref, ":"); len(parts) == 2 {
		a, b := parts[0], parts[1]
		switch {
		case cellRef.MatchString(a) && cellRef.MatchString(b),
			columnRef.MatchString(a) && columnRef.MatchString(b),
			rowRef.MatchString(a) && rowRef.MatchString(b):
			return token{kind: tokRange, text: word, refs: []string{a, b}}
		}
	}

	switch upper := strings.ToUpper(word); {
	case cellRef.MatchString(ref):
		return token{kind: tokRef, text: word, refs: []string{ref}}
	case number.MatchString(word):
		return token{kind: tokNumber, text: word}
	case upper == "TRUE" || upper == "FALSE":
		return token{kind: tokBool, text: upper}
	default:
		return token{kind: tokName, text: word}
	}
}

// extractFormula finds the first formula-shaped fragment in an answer.
// A fragment starts at '=' and must contain a function call or a cell reference.
func extractFormula(answer string) (string, bool) {
	for _, line := range strings.Split(answer, "\n") {
		rest := line
		for {
			idx := strings.IndexRune(rest, '=')
			if idx < 0 {
				break
			}
			prefixOK := idx == 0 || strings.ContainsRune(" \t`:'\"(", rune(rest[idx-1]))
			candidate := cutFormula(rest[idx+1:])
			rest = rest[idx+1:]
			if !prefixOK || candidate == "" {
				continue
			}
			if looksLikeFormula(lex(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}

// cutFormula trims prose that follows a complete expression on the same line.
func cutFormula(s string) string {
	runes := []rune(strings.TrimLeft(s, " \t"))
	depth := 0
	inText := false
	lastSignificant := rune(0)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"':
			inText = !inText
		case inText:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == '`':
			return strings.TrimSpace(string(runes[:i]))
		case unicode.IsSpace(r) && depth <= 0 && lastSignificant != 0:
			j := i
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			endsOperand := unicode.IsLetter(lastSignificant) || unicode.IsDigit(lastSignificant) ||
				lastSignificant == ')' || lastSignificant == '"'
			if j < len(runes) && unicode.IsLetter(runes[j]) && endsOperand {
				return trimTail(string(runes[:i]))
			}
		}
		if !unicode.IsSpace(r) {
			lastSignificant = r
		}
	}
	return trimTail(string(runes))
}

func trimTail(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasSuffix(s, ".") && strings.Count(s, "\"")%2 == 0 {
		s = strings.TrimSuffix(s, ".")
	}
	return strings.TrimSpace(s)
}

func looksLikeFormula(l lexed) bool {
	for _, t := range l.tokens {
		switch t.kind {
		case tokFunc, tokRef, tokRange:
			return true
		}
	}
	return false
}
