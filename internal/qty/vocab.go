package qty

import "sort"

// Container words anchor a quantity phrase ("set of 6", "12-pack") but carry
// no value of their own. Longer spellings come first so alternation prefers
// them.
var containerTerms = []string{
	"package", "pack", "pk",
	"case", "cs",
	"set",
	"boxe", "box", "bx",
	"count", "ct",
	"carton", "ctn",
	"bag", "bg",
	"roll", "rl",
	"sleeve",
	"quantitie", "quantity", "qty",
}

// Qualifiers that may sit between a container and its count: "set consists of 6".
var qualifierTerms = []string{"consists", "consist", "quantity", "qty"}

const defaultPairValue = 2

// defaultMultipliers maps the singular, lowercased multiplier spelling to the
// number of units it stands for. "pair" and "pr" are overwritten per Guesser.
var defaultMultipliers = map[string]int64{
	"each": 1, "ea": 1,
	"unit":  1,
	"piece": 1, "peice": 1, "pc": 1,
	"pair": defaultPairValue, "pr": defaultPairValue,
	"dozen": 12, "dzn": 12, "dz": 12, "doz": 12,
}

var pairTerms = []string{"pair", "pr"}

// multiplierTerms lists the lookup keys longest first for use in a pattern.
func multiplierTerms() []string {
	out := make([]string, 0, len(defaultMultipliers))
	for term := range defaultMultipliers {
		out = append(out, term)
	}
	sortLongestFirst(out)
	return out
}

func sortLongestFirst(terms []string) {
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
}
