package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketFailed = []byte("failed_deliveries")

// Entry is one recipient whose simulation message could not be
// delivered while the dispatch engine was running in
// failure-isolation mode.
type Entry struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	RecipientID string    `json:"recipient_id"`
	Email       string    `json:"email"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Spool is a BoltDB-backed dead-letter store for failed deliveries.
// Entries stay until an operator deletes them (typically after
// re-running publish-send, which skips already-sent recipients and
// retries the rest).
type Spool struct {
	db *bolt.DB
}

// Open opens (or creates) a spool at the given path.
func Open(path string) (*Spool, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFailed)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create spool bucket: %w", err)
	}

	return &Spool{db: db}, nil
}

// Record stores a failed delivery.
func (s *Spool) Record(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal spool entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).Put([]byte(entry.ID), data)
	})
}

// Get returns an entry by ID, or nil if it does not exist.
func (s *Spool) Get(id string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFailed).Get([]byte(id))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// List returns up to limit entries. A limit of 0 returns everything.
func (s *Spool) List(limit int) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).ForEach(func(_, data []byte) error {
			if limit > 0 && len(entries) >= limit {
				return nil
			}
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Delete removes an entry.
func (s *Spool) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).Delete([]byte(id))
	})
}

// Count returns the number of spooled failures.
func (s *Spool) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFailed).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database.
func (s *Spool) Close() error {
	return s.db.Close()
}
