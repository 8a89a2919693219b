package internal

import "listingqty/internal/cleaner"

type ItemSource string

const (
	SourceCSV            ItemSource = "csv"
	SourceXLSX           ItemSource = "xlsx"
	SourcePDF            ItemSource = "pdf"
	SourceEmailText      ItemSource = "email_text"
	SourceEmailHTMLTable ItemSource = "email_html_table"
	SourceFeed           ItemSource = "feed"
)

// ListingItem is one listing pulled out of an input, before cleaning.
type ListingItem struct {
	LineNo int
	Source ItemSource
	// Ref names where the item came from: a file, an attachment, a feed id.
	Ref    string
	Record cleaner.Record
	Meta   map[string]any
}

type GuessCandidate struct {
	Kind   string `json:"kind"`
	Phrase string `json:"phrase"`
	Offset int    `json:"offset"`
	Value  int    `json:"value"`
}

// QuantityGuess is the guesser's verdict on one listing. Quantity is nil
// when no quantity expression was found.
type QuantityGuess struct {
	Quantity   *int             `json:"quantity"`
	Phrase     *string          `json:"phrase"`
	Candidates []GuessCandidate `json:"candidates"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// FeedListing is a listing as delivered by the marketplace feed.
type FeedListing struct {
	ExternalID string
	Title      string
	Record     cleaner.Record
	UpdatedAt  *string
	RawJSON    string
}

type ExportRow struct {
	ListingID  int
	Source     string
	Ref        string
	LineNo     int
	Record     cleaner.Record
	Quantity   *int
	Phrase     *string
	Candidates int
}
