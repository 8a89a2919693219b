package qty

import (
	"math/big"
	"strings"
)

// Resolve multiplies the values of the given terms. A term is a numeric
// literal ("12", "1,000", "1/2", "(6)"), a multiplier word ("dozen", "PR"),
// or anything else, which counts as 1. It never fails: listing text is
// untrusted and a bad token must not sink the terms that did resolve.
func (g *Guesser) Resolve(terms ...string) *big.Rat {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolveLocked(terms)
}

func (g *Guesser) resolveLocked(terms []string) *big.Rat {
	product := big.NewRat(1, 1)
	for _, term := range terms {
		product.Mul(product, g.termValue(term))
	}
	return product
}

func (g *Guesser) termValue(term string) *big.Rat {
	if v, ok := parseLiteral(term); ok {
		return v
	}
	if v, ok := g.mult[strings.ToLower(strings.TrimSpace(term))]; ok {
		return new(big.Rat).SetInt64(v)
	}
	return big.NewRat(1, 1)
}

// parseLiteral accepts an integer or A/B fraction, with grouping commas and
// optional surrounding parentheses. Nothing else is evaluated.
func parseLiteral(term string) (*big.Rat, bool) {
	s := strings.TrimSpace(term)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil, false
	}

	numText, denText, isFraction := strings.Cut(s, "/")
	num, ok := parseDigits(numText)
	if !ok {
		return nil, false
	}
	if !isFraction {
		return new(big.Rat).SetInt(num), true
	}

	den, ok := parseDigits(denText)
	if !ok || den.Sign() == 0 {
		return nil, false
	}
	return new(big.Rat).SetFrac(num, den), true
}

func parseDigits(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, false
		}
	}
	return new(big.Int).SetString(s, 10)
}

// wholeQuantity rounds a positive product half-up to an int. Products that
// round to zero or overflow are not quantities.
func wholeQuantity(v *big.Rat) (int, bool) {
	if v.Sign() <= 0 {
		return 0, false
	}
	// floor((2*num + den) / (2*den))
	num := new(big.Int).Lsh(v.Num(), 1)
	num.Add(num, v.Denom())
	den := new(big.Int).Lsh(v.Denom(), 1)
	rounded := num.Quo(num, den)
	if rounded.Sign() <= 0 || !rounded.IsInt64() {
		return 0, false
	}
	n := rounded.Int64()
	if int64(int(n)) != n {
		return 0, false
	}
	return int(n), true
}
