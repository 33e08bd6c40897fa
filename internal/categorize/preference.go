package categorize

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.etcd.io/bbolt"
)

const preferencesBucketName = "category_preferences"

// PreferenceStore persists the category a user last settled on for a
// merchant and description pair. Last write wins.
type PreferenceStore interface {
	// GetPreference returns the stored category for key, if any
	GetPreference(ctx context.Context, userID, key string) (string, bool, error)

	// SetPreference stores category under key, replacing any previous value
	SetPreference(ctx context.Context, userID, key, category string) error
}

// preferenceKeySeparator joins merchant and description. NUL is stripped from
// both parts so keys stay unambiguous.
const preferenceKeySeparator = "\x00"

// PreferenceKey builds the lookup key for a merchant and description
func PreferenceKey(merchant, description string) string {
	description = normalizeKeyPart(description)
	merchant = normalizeKeyPart(merchant)
	if merchant == "" {
		return description
	}
	return merchant + preferenceKeySeparator + description
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, preferenceKeySeparator, "")))
}

// MemoryPreferences keeps preferences in process memory
type MemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]map[string]string
}

// NewMemoryPreferences creates an empty in-memory store
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{prefs: make(map[string]map[string]string)}
}

// GetPreference returns the stored category for key
func (m *MemoryPreferences) GetPreference(_ context.Context, userID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	category, ok := m.prefs[userID][key]
	return category, ok, nil
}

// SetPreference stores category under key
func (m *MemoryPreferences) SetPreference(_ context.Context, userID, key, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs[userID] == nil {
		m.prefs[userID] = make(map[string]string)
	}
	m.prefs[userID][key] = category
	return nil
}

// BoltPreferences keeps preferences in BoltDB, one nested bucket per user
type BoltPreferences struct {
	db *bbolt.DB
}

// NewBoltPreferences creates a BoltPreferences on an already opened database
func NewBoltPreferences(db *bbolt.DB) (*BoltPreferences, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(preferencesBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating preferences bucket: %w", err)
	}
	return &BoltPreferences{db: db}, nil
}

// GetPreference returns the stored category for key
func (b *BoltPreferences) GetPreference(_ context.Context, userID, key string) (string, bool, error) {
	var category string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(preferencesBucketName)).Bucket([]byte(userID))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			category = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("reading preference: %w", err)
	}
	return category, category != "", nil
}

// SetPreference stores category under key
func (b *BoltPreferences) SetPreference(_ context.Context, userID, key, category string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(preferencesBucketName)).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(category))
	})
	if err != nil {
		return fmt.Errorf("writing preference: %w", err)
	}
	return nil
}
