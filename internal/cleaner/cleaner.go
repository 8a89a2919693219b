// Package cleaner normalises listing records field by field before they are
// stored, exported, or handed to the quantity guesser.
package cleaner

import (
	"regexp"
	"strings"
)

var (
	reSpaces   = regexp.MustCompile(`\s+`)
	reSymbols  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	rePriceOut = regexp.MustCompile(`[^0-9.]`)
)

// FieldFunc produces the cleaned value of key from the raw record.
type FieldFunc func(rec Record, key string) string

// ColumnFunc derives an extra column from an already cleaned record.
type ColumnFunc func(cleaned Record) string

type derived struct {
	column string
	fn     ColumnFunc
}

// Cleaner maps field names to handlers. Fields without a handler go through
// the default, which collapses whitespace.
type Cleaner struct {
	handlers map[string]FieldFunc
	fallback FieldFunc
	columns  []derived
}

// New returns a cleaner with the stock handlers: price keeps digits and dots,
// desc/description lose their markup.
func New() *Cleaner {
	c := &Cleaner{
		handlers: map[string]FieldFunc{},
		fallback: DefaultField,
	}
	c.Register("price", PriceField)
	c.Register("desc", DescriptionField)
	c.Register("description", DescriptionField)
	return c
}

// Register sets the handler for a field name (case-insensitive).
func (c *Cleaner) Register(field string, fn FieldFunc) {
	c.handlers[normalizeKey(field)] = fn
}

func (c *Cleaner) SetDefault(fn FieldFunc) {
	if fn != nil {
		c.fallback = fn
	}
}

// AddColumn appends a derived column after the cleaned fields. Columns run in
// the order they were added.
func (c *Cleaner) AddColumn(column string, fn ColumnFunc) {
	c.columns = append(c.columns, derived{column: column, fn: fn})
}

func (c *Cleaner) Clean(rec Record) Record {
	var out Record
	for _, key := range rec.keys {
		handler, ok := c.handlers[normalizeKey(key)]
		if !ok {
			handler = c.fallback
		}
		out.Set(key, handler(rec, key))
	}
	for _, col := range c.columns {
		out.Set(col.column, col.fn(out))
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// DefaultField returns the field with whitespace normalised.
func DefaultField(rec Record, key string) string {
	return NormalizeWhitespace(rec.Value(key))
}

func PriceField(rec Record, key string) string {
	return CleanPrice(rec.Value(key))
}

func DescriptionField(rec Record, key string) string {
	return NormalizeWhitespace(StripHTML(rec.Value(key)))
}

// NormalizeWhitespace trims s and turns every whitespace run into one space.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// RemoveSymbols drops everything except letters, digits, underscores and
// whitespace.
func RemoveSymbols(s string) string {
	return reSymbols.ReplaceAllString(s, "")
}

// CleanPrice keeps only digits and dots: " $1,000.00 dollars" -> "1000.00".
func CleanPrice(s string) string {
	return rePriceOut.ReplaceAllString(s, "")
}
