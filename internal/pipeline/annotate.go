package pipeline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/qty"
	"listingqty/internal/transcode"
)

// Annotator cleans listing records and attaches the guessed quantity.
type Annotator struct {
	cleaner *cleaner.Cleaner
	guesser *qty.Guesser
	fields  []string
}

// NewAnnotator guesses from fields, in order. Records carrying none of them
// are guessed from all of their values.
func NewAnnotator(g *qty.Guesser, fields []string) *Annotator {
	norm := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			norm = append(norm, f)
		}
	}
	return &Annotator{cleaner: cleaner.New(), guesser: g, fields: norm}
}

type Annotated struct {
	Item    internal.ListingItem
	Cleaned cleaner.Record
	Guess   internal.QuantityGuess
}

// Annotate returns the cleaned record, with the quantity column set, and the
// guess behind it.
func (a *Annotator) Annotate(rec cleaner.Record) (cleaner.Record, internal.QuantityGuess) {
	cleaned := a.cleaner.Clean(rec)

	text := cleaner.ListingText(cleaned, a.fields)
	if text == "" {
		text = cleaner.ListingText(cleaned, lowerKeys(cleaned))
	}
	guess := a.Guess(text)

	value := ""
	if guess.Quantity != nil {
		value = strconv.Itoa(*guess.Quantity)
	}
	cleaned.Set(cleaner.QuantityColumn, value)
	return cleaned, guess
}

// Guess runs the guesser over text and keeps every candidate.
func (a *Annotator) Guess(text string) internal.QuantityGuess {
	candidates := a.guesser.Candidates(text)
	out := internal.QuantityGuess{Candidates: make([]internal.GuessCandidate, 0, len(candidates))}
	values := make([]int, 0, len(candidates))
	for _, c := range candidates {
		out.Candidates = append(out.Candidates, internal.GuessCandidate{
			Kind:   c.Kind.String(),
			Phrase: c.Phrase,
			Offset: c.Offset,
			Value:  c.Value,
		})
		values = append(values, c.Value)
	}

	n, ok := qty.Select(values)
	if !ok {
		return out
	}
	out.Quantity = &n
	for _, c := range candidates {
		if c.Value == n {
			phrase := c.Phrase
			out.Phrase = &phrase
			break
		}
	}
	return out
}

func (a *Annotator) AnnotateItems(items []internal.ListingItem) []Annotated {
	out := make([]Annotated, 0, len(items))
	for _, item := range items {
		cleaned, guess := a.Annotate(item.Record)
		out = append(out, Annotated{Item: item, Cleaned: cleaned, Guess: guess})
	}
	return out
}

type AnnotateResult struct {
	Records int
	Guessed int
}

// AnnotateFile extracts listings from in, annotates them and writes the
// cleaned records to out (csv or xlsx, by extension). inputType follows
// ExtractItemsFromInput.
func (a *Annotator) AnnotateFile(inputType, in, out string, opts transcode.Options) (AnnotateResult, error) {
	items, err := ExtractItemsFromInput(inputType, in)
	if err != nil {
		return AnnotateResult{}, err
	}
	if len(items) == 0 {
		return AnnotateResult{}, errors.New("no listings found in input")
	}

	res := AnnotateResult{}
	rows := make([]cleaner.Record, 0, len(items))
	for _, annotated := range a.AnnotateItems(items) {
		rows = append(rows, annotated.Cleaned)
		res.Records++
		if annotated.Guess.Quantity != nil {
			res.Guessed++
		}
	}
	if err := transcode.WriteFile(out, rows, opts); err != nil {
		return AnnotateResult{}, fmt.Errorf("write %s: %w", out, err)
	}
	return res, nil
}

func lowerKeys(rec cleaner.Record) []string {
	keys := rec.Keys()
	for i, k := range keys {
		keys[i] = strings.ToLower(strings.TrimSpace(k))
	}
	return keys
}
