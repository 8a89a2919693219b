package pipeline

import (
	"strings"

	"listingqty/internal/qty"
)

type DetectResult struct {
	IsListing bool
	Score     float64
	// QuantityHits is the number of quantity candidates found in the body.
	QuantityHits int
	Reason       string
}

var detectKeywords = []string{"listing", "offer", "price list", "pricelist", "stock", "inventory", "wholesale", "catalog", "lot ", "available"}

var listingAttachmentExts = []string{".xlsx", ".xlsm", ".csv", ".tsv", ".pdf"}

// DetectListingEmail scores a message on keywords, quantity expressions in
// the body, listing-like attachments and html tables.
func DetectListingEmail(g *qty.Guesser, subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	lowerText := strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(lowerText, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	hits := len(g.Candidates(text))
	if hits >= 2 {
		score += 0.4
	} else if hits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		if hasAnySuffix(strings.ToLower(name), listingAttachmentExts) {
			score += 0.25
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isListing := score >= 0.45
	reason := "rules_negative"
	if isListing {
		reason = "rules_positive"
	}

	return DetectResult{IsListing: isListing, Score: score, QuantityHits: hits, Reason: reason}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
