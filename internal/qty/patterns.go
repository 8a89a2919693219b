package qty

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Kind identifies which grammar produced a candidate.
type Kind int

const (
	// KindContainerOf matches "set of 6", "30 sets of 100", "box of 2 doz".
	KindContainerOf Kind = iota + 1
	// KindPerContainer matches "12-pack", "12 per set", "1dz/case".
	KindPerContainer
	// KindMultiplier matches "1dz", "2 pair", "(6) each".
	KindMultiplier
)

func (k Kind) String() string {
	switch k {
	case KindContainerOf:
		return "container_of"
	case KindPerContainer:
		return "per_container"
	case KindMultiplier:
		return "multiplier"
	default:
		return "unknown"
	}
}

// Capture group names shared by the grammars.
const (
	groupLead = "lead"
	groupNum  = "num"
	groupMult = "mult"
)

// A term must not touch another letter on either side. Digits and
// punctuation are fine neighbours: "12pk", "1dz/case".
const (
	notAfterLetter  = `(?<![a-z])`
	notBeforeLetter = `(?![a-z])`
)

func alternation(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp2.Escape(t)
	}
	return strings.Join(quoted, "|")
}

func containerFragment() string {
	return `(?:` + notAfterLetter + `(?:` + alternation(containerTerms) + `)s?` + notBeforeLetter + `)`
}

// multiplierFragment captures the singular spelling only; the plural "s"
// stays outside the group so it can be looked up directly.
func multiplierFragment() string {
	return `(?:` + notAfterLetter + `(?<` + groupMult + `>` + alternation(multiplierTerms()) + `)s?` + notBeforeLetter + `)`
}

// numberFragment matches "12", "1,000", "1/2", "(1,000/2)". Only the digits
// land in the named group.
func numberFragment(name string) string {
	const digits = `[0-9]+(?:,[0-9]{3})*`
	return `\(?(?<` + name + `>` + digits + `(?:/` + digits + `)?)\)?`
}

func qualifierFragment() string {
	return `(?:\s+(?:` + alternation(qualifierTerms) + `))?`
}

// containerOfExpr: [lead] container [consists|qty] [of] [:] num [mult]
func containerOfExpr() string {
	return `(?:` + numberFragment(groupLead) + `\s*)?` +
		containerFragment() +
		qualifierFragment() +
		`(?:\s+of)?\s*:?\s*` +
		numberFragment(groupNum) +
		`(?:\s*` + multiplierFragment() + `)?`
}

// perContainerExpr: num [mult] [filler] [per|/|-] container
//
// The gaps are atomic. Every token after a gap starts with a non-space, and a
// container never follows a letter, so giving back spaces or filler letters
// cannot produce a match.
func perContainerExpr() string {
	return numberFragment(groupNum) +
		`(?>\s*)` + multiplierFragment() + `?` +
		`(?:(?>\s*)(?>[a-z]+))?` +
		`(?>\s*)(?:per|/|-)?(?>\s*)` +
		containerFragment()
}

// multiplierExpr: num [-/] mult
func multiplierExpr() string {
	return numberFragment(groupNum) + `\s*[-/]?\s*` + multiplierFragment()
}

type pattern struct {
	kind Kind
	re   *regexp2.Regexp
}

// compilePatterns assembles the three grammars in the order their candidates
// are reported.
func compilePatterns(timeout time.Duration) []pattern {
	exprs := []struct {
		kind Kind
		expr string
	}{
		{KindContainerOf, containerOfExpr()},
		{KindPerContainer, perContainerExpr()},
		{KindMultiplier, multiplierExpr()},
	}

	out := make([]pattern, 0, len(exprs))
	for _, e := range exprs {
		re := regexp2.MustCompile(e.expr, regexp2.IgnoreCase)
		if timeout > 0 {
			re.MatchTimeout = timeout
		}
		out = append(out, pattern{kind: e.kind, re: re})
	}
	return out
}
