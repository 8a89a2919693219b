package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"listingqty/internal"
	"listingqty/internal/storage"
)

// MailStoreService writes raw messages to content-addressed .eml files and
// records them in the database.
type MailStoreService struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStoreService(db *storage.DB, rawMailDir string) *MailStoreService {
	return &MailStoreService{db: db, rawMailDir: rawMailDir}
}

// RawPath is where a message with the given sha256 hex digest is kept.
func (s *MailStoreService) RawPath(hash string) string {
	return filepath.Join(s.rawMailDir, hash[:2], hash+".eml")
}

// Store saves msg and reports whether the message was new to the database.
func (s *MailStoreService) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	if len(msg.Raw) == 0 {
		return internal.EmailRow{}, false, fmt.Errorf("message %s: empty body", msg.MessageID)
	}

	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])
	rawPath := s.RawPath(hash)

	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return internal.EmailRow{}, false, err
	}
	if _, err := os.Stat(rawPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, false, err
		}
	}

	_, err := s.db.EmailByProviderMessageID(msg.Provider, msg.MessageID)
	created := errors.Is(err, storage.ErrNotFound)
	if err != nil && !created {
		return internal.EmailRow{}, false, err
	}

	row, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
	if err != nil {
		return internal.EmailRow{}, false, err
	}
	return row, created, nil
}
