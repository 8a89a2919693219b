package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"listingqty/internal/qty"
)

func TestDetectListingEmail(t *testing.T) {
	g := qty.New()
	cases := []struct {
		name        string
		subject     string
		text        string
		html        string
		attachments []string
		want        bool
	}{
		{name: "offer with quantities", subject: "Weekly stock offer", text: "Glasses - Box of 2 doz", want: true},
		{name: "spreadsheet and table", subject: "Re: files", html: "<table><tr><td>x</td></tr></table>", attachments: []string{"Sheet.XLSX"}, want: true},
		{name: "small talk", subject: "Lunch tomorrow?", text: "See you at noon", want: false},
		{name: "one quantity only", subject: "hello", text: "I bought a 6 pack", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectListingEmail(g, tc.subject, tc.text, tc.html, tc.attachments)
			assert.Equal(t, tc.want, got.IsListing, "score=%v", got.Score)
			assert.LessOrEqual(t, got.Score, 1.0)
		})
	}
}

func TestDetectCountsQuantityHits(t *testing.T) {
	got := DetectListingEmail(qty.New(), "", "Pens 10pk, plates set of 6", "", nil)
	assert.Equal(t, 2, got.QuantityHits)
	assert.Equal(t, "rules_negative", got.Reason)
}
