package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const rulesBucketName = "category_rules"

// Store defines the persistence operations for category rules.
// Every operation is scoped to a single user.
type Store interface {
	// CreateRule inserts a new rule
	CreateRule(ctx context.Context, rule *CategoryRule) error

	// GetRule retrieves one of the user's rules by ID
	GetRule(ctx context.Context, userID, id string) (*CategoryRule, error)

	// ListRules returns the user's rules ordered by priority then recency
	ListRules(ctx context.Context, userID string) ([]*CategoryRule, error)

	// UpdateRule replaces an existing rule
	UpdateRule(ctx context.Context, rule *CategoryRule) error

	// DeleteRule removes one of the user's rules
	DeleteRule(ctx context.Context, userID, id string) error
}

// BoltStore implements Store using BoltDB with one nested bucket per user
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore creates a BoltStore on an already opened database
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rulesBucketName))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating rules bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func userBucket(tx *bbolt.Tx, userID string) *bbolt.Bucket {
	return tx.Bucket([]byte(rulesBucketName)).Bucket([]byte(userID))
}

func (b *BoltStore) put(rule *CategoryRule, mustExist bool) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(rulesBucketName)).CreateBucketIfNotExists([]byte(rule.UserID))
		if err != nil {
			return fmt.Errorf("creating user bucket: %w", err)
		}
		if mustExist && bucket.Get([]byte(rule.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, rule.ID)
		}
		data, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("marshaling rule: %w", err)
		}
		return bucket.Put([]byte(rule.ID), data)
	})
}

// CreateRule saves a new rule
func (b *BoltStore) CreateRule(_ context.Context, rule *CategoryRule) error {
	return b.put(rule, false)
}

// UpdateRule overwrites an existing rule
func (b *BoltStore) UpdateRule(_ context.Context, rule *CategoryRule) error {
	return b.put(rule, true)
}

// GetRule retrieves a rule by ID
func (b *BoltStore) GetRule(_ context.Context, userID, id string) (*CategoryRule, error) {
	var rule *CategoryRule
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rule)
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns all of a user's rules in evaluation order
func (b *BoltStore) ListRules(_ context.Context, userID string) ([]*CategoryRule, error) {
	rules := make([]*CategoryRule, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var rule CategoryRule
			if err := json.Unmarshal(v, &rule); err != nil {
				return fmt.Errorf("unmarshaling rule: %w", err)
			}
			rules = append(rules, &rule)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortRules(rules)
	return rules, nil
}

// DeleteRule removes a rule
func (b *BoltStore) DeleteRule(_ context.Context, userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}
