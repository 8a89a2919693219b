package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reMarkup = regexp.MustCompile(`(?i)<(?:[a-z][a-z0-9]*|/[a-z][a-z0-9]*|br\s*/?|!--)[^>]*>|&[a-z]+;|&#[0-9]+;`)

// blockTags end a line of text; without the break "12 pack<br>6 each" would
// read as one phrase.
const blockTags = "br, p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6"

// StripHTML returns the text content of s when it looks like markup and s
// unchanged otherwise.
func StripHTML(s string) string {
	if !reMarkup.MatchString(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find(blockTags).Each(func(_ int, sel *goquery.Selection) {
		sel.AfterHtml("\n")
	})
	doc.Find("script, style").Remove()
	return doc.Text()
}
