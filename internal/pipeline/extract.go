package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/transcode"
)

// TitleField is the key of single-line listings taken from text and pdf.
const TitleField = "title"

var (
	ignorePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^--+$`),
		regexp.MustCompile(`^>`),
		regexp.MustCompile(`(?i)^(thanks|thank you)\b`),
		regexp.MustCompile(`(?i)^(best |kind )?regards\b`),
		regexp.MustCompile(`(?i)^sent from\b`),
		regexp.MustCompile(`(?i)^(tel|phone)[:\s]`),
		regexp.MustCompile(`(?i)^e-?mail[:\s]`),
		regexp.MustCompile(`(?i)^https?:`),
		regexp.MustCompile(`(?i)^(from|to|cc|subject|date):`),
	}
	reLetters = regexp.MustCompile(`\p{L}`)
	reDigits  = regexp.MustCompile(`[0-9]`)
)

// EmailExtraction is what a raw message yields.
type EmailExtraction struct {
	Items       []internal.ListingItem
	Subject     string
	Text        string
	HTML        string
	Attachments []string
}

func ExtractItemsFromEmailRaw(raw []byte) (EmailExtraction, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailExtraction{}, fmt.Errorf("read envelope: %w", err)
	}

	out := EmailExtraction{
		Subject: env.GetHeader("Subject"),
		Text:    env.Text,
		HTML:    env.HTML,
	}

	items := make([]internal.ListingItem, 0)
	tables := []internal.ListingItem{}
	if env.HTML != "" {
		tables = parseEmailHTMLTable(env.HTML)
		items = append(items, tables...)
	}
	// enmime down-converts HTML-only mail into Text; those lines repeat the
	// table rows, so the text body is only read when no table was found.
	if env.Text != "" && len(tables) == 0 {
		items = append(items, parseEmailText(env.Text)...)
	}

	out.Attachments = make([]string, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		out.Attachments = append(out.Attachments, filename)

		extra, err := parseAttachment(filename, att.Content)
		if err != nil || extra == nil {
			continue
		}
		for i := range extra {
			extra[i].Ref = filename
		}
		items = append(items, extra...)
	}

	out.Items = dedupeItems(items)
	return out, nil
}

func parseAttachment(filename string, content []byte) ([]internal.ListingItem, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return parsePDF(content)
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xlsm"):
		return parseXLSX(content)
	case strings.HasSuffix(lower, ".csv"):
		return parseCSV(content, ',')
	case strings.HasSuffix(lower, ".tsv"):
		return parseCSV(content, '\t')
	default:
		return nil, nil
	}
}

// parseEmailText keeps one listing per body line. Lines without letters, and
// short lines without a digit, are greetings or separators.
func parseEmailText(text string) []internal.ListingItem {
	return linesToItems(internal.SourceEmailText, "body", splitLines(text))
}

func linesToItems(source internal.ItemSource, ref string, lines []string) []internal.ListingItem {
	out := make([]internal.ListingItem, 0, len(lines))
	lineNo := 0
	for _, line := range lines {
		lineNo++
		compact := cleaner.NormalizeWhitespace(line)
		if compact == "" || isLikelyNoise(compact) {
			continue
		}
		if !reLetters.MatchString(compact) {
			continue
		}
		if !reDigits.MatchString(compact) && len([]rune(compact)) < 8 {
			continue
		}
		out = append(out, internal.ListingItem{
			LineNo: lineNo,
			Source: source,
			Ref:    ref,
			Record: cleaner.NewRecord(TitleField, compact),
		})
	}
	return out
}

// parseEmailHTMLTable reads every table with a header row and at least one
// data row. Header cells name the record fields.
func parseEmailHTMLTable(html string) []internal.ListingItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.ListingItem{}
	doc.Find("table").Each(func(tableIdx int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		headers := []string{}
		rows.First().Find("th,td").Each(func(i int, cell *goquery.Selection) {
			name := strings.ToLower(cleaner.NormalizeWhitespace(cell.Text()))
			if name == "" {
				name = fmt.Sprintf("col_%d", i+1)
			}
			headers = append(headers, name)
		})

		ref := fmt.Sprintf("table %d", tableIdx+1)
		rows.Slice(1, rows.Length()).Each(func(rowIdx int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cleaner.NormalizeWhitespace(cell.Text()))
			})
			if isBlankRow(cells) {
				return
			}
			out = append(out, internal.ListingItem{
				LineNo: rowIdx + 2,
				Source: internal.SourceEmailHTMLTable,
				Ref:    ref,
				Record: cleaner.FromRow(headers, cells),
			})
		})
	})

	return out
}

func parseXLSX(content []byte) ([]internal.ListingItem, error) {
	records, err := transcode.ReadXLSX(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return recordsToItems(internal.SourceXLSX, records), nil
}

func parseCSV(content []byte, comma rune) ([]internal.ListingItem, error) {
	records, err := transcode.ReadCSV(bytes.NewReader(content), comma)
	if err != nil {
		return nil, err
	}
	return recordsToItems(internal.SourceCSV, records), nil
}

func recordsToItems(source internal.ItemSource, records []cleaner.Record) []internal.ListingItem {
	out := make([]internal.ListingItem, 0, len(records))
	for i, rec := range records {
		out = append(out, internal.ListingItem{LineNo: i + 1, Source: source, Record: rec})
	}
	return out
}

// parsePDF treats every text line of every page as a listing.
func parsePDF(content []byte) ([]internal.ListingItem, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	out := []internal.ListingItem{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		items := linesToItems(internal.SourcePDF, fmt.Sprintf("page %d", i), splitLines(text))
		out = append(out, items...)
	}
	return out, nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func dedupeItems(items []internal.ListingItem) []internal.ListingItem {
	seen := map[string]struct{}{}
	out := make([]internal.ListingItem, 0, len(items))
	for _, item := range items {
		blob, _ := json.Marshal(item.Record)
		key := string(item.Source) + "|" + item.Ref + "|" + string(blob)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
