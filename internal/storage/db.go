package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"listingqty/internal"
	"listingqty/internal/cleaner"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS listings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  emailId INTEGER,
  externalId TEXT,
  source TEXT NOT NULL,
  ref TEXT NOT NULL DEFAULT '',
  lineNo INTEGER NOT NULL DEFAULT 0,
  title TEXT,
  fieldsJson TEXT NOT NULL,
  cleanedJson TEXT NOT NULL,
  metaJson TEXT NOT NULL DEFAULT '{}',
  sourceUpdatedAt TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source, externalId),
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_listings_emailId ON listings(emailId);

CREATE TABLE IF NOT EXISTS guesses (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  listingId INTEGER NOT NULL UNIQUE,
  quantity INTEGER,
  phrase TEXT,
  candidatesJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(listingId) REFERENCES listings(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  scope TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	return d.EmailByProviderMessageID(provider, messageID)
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(row interface{ Scan(...any) error }) (internal.EmailRow, error) {
	var e internal.EmailRow
	err := row.Scan(&e.ID, &e.Provider, &e.MessageID, &e.Subject, &e.Sender, &e.ReceivedAt, &e.Hash, &e.Status, &e.RawRef)
	return e, err
}

// EmailByProviderMessageID returns ErrNotFound when no such email is stored.
func (d *DB) EmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.EmailRow{}, fmt.Errorf("email provider=%s messageId=%s: %w", provider, messageID, ErrNotFound)
	}
	return row, err
}

func (d *DB) EmailByID(id int) (internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return internal.EmailRow{}, fmt.Errorf("email id=%d: %w", id, ErrNotFound)
	}
	return row, err
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// ClearEmailListings removes the listings and guesses of an email so it can
// be processed again.
func (d *DB) ClearEmailListings(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM guesses WHERE listingId IN (SELECT id FROM listings WHERE emailId = ?)`, emailID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM listings WHERE emailId = ?`, emailID); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertListing stores a listing extracted from a file or an email. emailID
// is nil for file runs.
func (d *DB) InsertListing(emailID *int, item internal.ListingItem, cleaned cleaner.Record) (int64, error) {
	fieldsJSON, err := json.Marshal(item.Record)
	if err != nil {
		return 0, err
	}
	cleanedJSON, err := json.Marshal(cleaned)
	if err != nil {
		return 0, err
	}
	metaJSON, _ := json.Marshal(item.Meta)

	result, err := d.conn.Exec(`
INSERT INTO listings (emailId, source, ref, lineNo, title, fieldsJson, cleanedJson, metaJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, emailID, string(item.Source), item.Ref, item.LineNo, nullIfEmpty(cleaned.Value("title")), string(fieldsJSON), string(cleanedJSON), string(metaJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpsertFeedListing stores a feed listing keyed by its external id and
// returns the local listing id.
func (d *DB) UpsertFeedListing(listing internal.FeedListing, cleaned cleaner.Record) (int64, error) {
	fieldsJSON, err := json.Marshal(listing.Record)
	if err != nil {
		return 0, err
	}
	cleanedJSON, err := json.Marshal(cleaned)
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.conn.QueryRow(`
INSERT INTO listings (externalId, source, ref, title, fieldsJson, cleanedJson, metaJson, sourceUpdatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source, externalId) DO UPDATE SET
  title=excluded.title,
  fieldsJson=excluded.fieldsJson,
  cleanedJson=excluded.cleanedJson,
  metaJson=excluded.metaJson,
  sourceUpdatedAt=excluded.sourceUpdatedAt,
  updatedAt=CURRENT_TIMESTAMP
RETURNING id
`, listing.ExternalID, string(internal.SourceFeed), listing.ExternalID, nullIfEmpty(listing.Title), string(fieldsJSON), string(cleanedJSON), listing.RawJSON, listing.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (d *DB) UpsertGuess(listingID int64, guess internal.QuantityGuess) error {
	candidatesJSON, err := json.Marshal(guess.Candidates)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`
INSERT INTO guesses (listingId, quantity, phrase, candidatesJson)
VALUES (?, ?, ?, ?)
ON CONFLICT(listingId) DO UPDATE SET
  quantity=excluded.quantity,
  phrase=excluded.phrase,
  candidatesJson=excluded.candidatesJson,
  createdAt=CURRENT_TIMESTAMP
`, listingID, guess.Quantity, guess.Phrase, string(candidatesJSON))
	return err
}

func (d *DB) InsertRun(traceID, scope string, emailID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, scope, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, scope, emailID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

// GetMetadata returns nil when the key is unset.
func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// ExportFilter narrows GetExportRows. Zero fields match everything.
type ExportFilter struct {
	EmailID int
	Source  internal.ItemSource
}

func (d *DB) GetExportRows(filter ExportFilter) ([]internal.ExportRow, error) {
	query := `
SELECT l.id, l.source, l.ref, l.lineNo, l.cleanedJson, g.quantity, g.phrase, g.candidatesJson
FROM listings l
LEFT JOIN guesses g ON g.listingId = l.id
WHERE 1 = 1`
	var args []any
	if filter.EmailID != 0 {
		query += ` AND l.emailId = ?`
		args = append(args, filter.EmailID)
	}
	if filter.Source != "" {
		query += ` AND l.source = ?`
		args = append(args, string(filter.Source))
	}
	query += `
ORDER BY
  CASE WHEN g.quantity IS NULL THEN 2 ELSE 1 END,
  l.ref ASC,
  l.lineNo ASC,
  l.id ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExportRow
	for rows.Next() {
		var row internal.ExportRow
		var cleanedJSON string
		var candidatesJSON sql.NullString
		if err := rows.Scan(&row.ListingID, &row.Source, &row.Ref, &row.LineNo, &cleanedJSON, &row.Quantity, &row.Phrase, &candidatesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(cleanedJSON), &row.Record); err != nil {
			return nil, fmt.Errorf("listing %d: %w", row.ListingID, err)
		}
		if candidatesJSON.Valid {
			var candidates []internal.GuessCandidate
			_ = json.Unmarshal([]byte(candidatesJSON.String), &candidates)
			row.Candidates = len(candidates)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QuantityStats counts stored listings per source, split by whether a
// quantity was guessed.
type QuantityStats struct {
	Source    string
	Listings  int
	WithGuess int
}

func (d *DB) Stats() ([]QuantityStats, error) {
	rows, err := d.conn.Query(`
SELECT l.source, COUNT(*), COUNT(g.quantity)
FROM listings l
LEFT JOIN guesses g ON g.listingId = l.id
GROUP BY l.source
ORDER BY l.source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuantityStats
	for rows.Next() {
		var s QuantityStats
		if err := rows.Scan(&s.Source, &s.Listings, &s.WithGuess); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
