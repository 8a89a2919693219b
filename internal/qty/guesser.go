// Package qty guesses how many units a product listing sells from its free
// text ("set of 6", "12pk", "(10) boxes of 1/2 dozen").
//
// Three grammars scan the text independently. Every match becomes a candidate
// quantity: the product of the numbers and multiplier words it captured. The
// answer is the most frequent candidate, ties going to the larger value.
package qty

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultMaxInput     = 16 << 10
	DefaultMatchTimeout = 250 * time.Millisecond
)

// Candidate is one quantity produced by one grammar match.
type Candidate struct {
	Kind   Kind
	Phrase string
	// Offset is the rune offset of Phrase in the whitespace-folded text.
	Offset int
	Value  int
}

type Option func(*Guesser)

// WithPairValue sets how many units "pair" and "pr" stand for.
func WithPairValue(n int) Option {
	return func(g *Guesser) { g.setPairValue(int64(n)) }
}

// WithMaxInput caps the number of bytes scanned per call. Zero or less
// disables the cap.
func WithMaxInput(n int) Option {
	return func(g *Guesser) { g.maxInput = n }
}

// WithMatchTimeout bounds a single grammar scan.
func WithMatchTimeout(d time.Duration) Option {
	return func(g *Guesser) { g.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Guesser) {
		if logger != nil {
			g.logger = logger
		}
	}
}

type Guesser struct {
	mu   sync.RWMutex
	mult map[string]int64

	maxInput int
	timeout  time.Duration
	patterns []pattern
	logger   *zap.Logger
}

func New(opts ...Option) *Guesser {
	g := &Guesser{
		mult:     make(map[string]int64, len(defaultMultipliers)),
		maxInput: DefaultMaxInput,
		timeout:  DefaultMatchTimeout,
		logger:   zap.NewNop(),
	}
	for term, v := range defaultMultipliers {
		g.mult[term] = v
	}
	for _, opt := range opts {
		opt(g)
	}
	g.patterns = compilePatterns(g.timeout)
	return g
}

// SetPairsSingular makes "pair"/"pr" count as 1 when flag is set, 2 otherwise.
func (g *Guesser) SetPairsSingular(flag bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if flag {
		g.setPairValue(1)
		return
	}
	g.setPairValue(defaultPairValue)
}

func (g *Guesser) PairsSingular() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mult["pair"] == 1
}

func (g *Guesser) setPairValue(v int64) {
	for _, term := range pairTerms {
		g.mult[term] = v
	}
}

// Guess returns the most likely quantity in text, or false when no quantity
// expression was found.
func (g *Guesser) Guess(text string) (int, bool) {
	candidates := g.Candidates(text)
	values := make([]int, len(candidates))
	for i, c := range candidates {
		values[i] = c.Value
	}
	return Select(values)
}

// Candidates lists every candidate in report order: all container-of
// matches, then per-container, then multiplier matches, each left to right.
// Whitespace runs are folded to one space before scanning; Phrase and Offset
// refer to the folded text.
func (g *Guesser) Candidates(text string) []Candidate {
	text = g.truncate(foldSpace(text))

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Candidate
	for _, p := range g.patterns {
		out = g.scan(p, text, out)
	}
	return out
}

func (g *Guesser) scan(p pattern, text string, out []Candidate) []Candidate {
	m, err := p.re.FindStringMatch(text)
	for err == nil && m != nil {
		terms := make([]string, 0, 3)
		for _, name := range []string{groupLead, groupNum, groupMult} {
			if grp := m.GroupByName(name); grp != nil && len(grp.Captures) > 0 {
				terms = append(terms, grp.String())
			}
		}
		if v, ok := wholeQuantity(g.resolveLocked(terms)); ok {
			out = append(out, Candidate{Kind: p.kind, Phrase: m.String(), Offset: m.Index, Value: v})
		}
		m, err = p.re.FindNextMatch(m)
	}
	if err != nil {
		g.logger.Warn("quantity scan aborted",
			zap.Stringer("kind", p.kind),
			zap.Int("textLen", len(text)),
			zap.Error(err))
	}
	return out
}

// foldSpace trims text and collapses every whitespace run to a single space,
// which keeps the grammars' optional gaps from backtracking over long blanks.
func foldSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (g *Guesser) truncate(text string) string {
	if g.maxInput <= 0 || len(text) <= g.maxInput {
		return text
	}
	n := g.maxInput
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}

// Select picks the value that occurs most often, preferring the largest
// among equally frequent values. It reports false for an empty slice.
func Select(values []int) (int, bool) {
	if len(values) == 0 {
		return 0, false
	}

	counts := make(map[int]int, len(values))
	most := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > most {
			most = counts[v]
		}
	}

	best, found := 0, false
	for v, n := range counts {
		if n == most && (!found || v > best) {
			best, found = v, true
		}
	}
	return best, true
}
