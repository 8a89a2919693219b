package cleaner

import (
	"strconv"
	"strings"

	"listingqty/internal/qty"
)

const QuantityColumn = "quantity"

// fieldSeparator joins text fields for guessing. None of the grammars cross a
// "|", so a number at the end of the title cannot pair with a word at the
// start of the description.
const fieldSeparator = " | "

// ListingText joins the non-empty values of fields, in the given order.
func ListingText(rec Record, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, key := range rec.keys {
			if normalizeKey(key) != field {
				continue
			}
			if v := strings.TrimSpace(rec.values[key]); v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, fieldSeparator)
}

// QuantityFunc guesses the quantity from the given text fields of a cleaned
// record. The column is empty when nothing was found.
func QuantityFunc(g *qty.Guesser, fields []string) ColumnFunc {
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = normalizeKey(f)
	}
	return func(cleaned Record) string {
		n, ok := g.Guess(ListingText(cleaned, norm))
		if !ok {
			return ""
		}
		return strconv.Itoa(n)
	}
}

// WithQuantity adds the quantity column to c and returns it.
func (c *Cleaner) WithQuantity(g *qty.Guesser, fields []string) *Cleaner {
	c.AddColumn(QuantityColumn, QuantityFunc(g, fields))
	return c
}
