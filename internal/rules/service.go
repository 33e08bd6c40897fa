package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for rules
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now().UTC()
}

// RuleInput carries the user editable fields of a rule. Nil fields are left
// unchanged on update; on create a nil priority means 0.
type RuleInput struct {
	Pattern  *string `json:"merchant_pattern"`
	Category *string `json:"category"`
	Priority *int    `json:"priority"`
}

// Service manages category rules and keeps a compiled RuleSet per user
type Service struct {
	store       Store
	idGenerator IDGenerator
	timeSource  TimeSource

	mu         sync.RWMutex
	cache      map[string]*RuleSet
	generation map[string]uint64
}

// NewService creates a new Service with uuid IDs and the system clock
func NewService(store Store) *Service {
	return NewServiceWithDeps(store, uuidGenerator{}, systemTime{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store Store, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		idGenerator: idGen,
		timeSource:  timeSrc,
		cache:       make(map[string]*RuleSet),
		generation:  make(map[string]uint64),
	}
}

// CreateRule validates and stores a new rule for the user
func (s *Service) CreateRule(ctx context.Context, userID string, input RuleInput) (*CategoryRule, error) {
	rule := &CategoryRule{UserID: userID}
	if input.Pattern != nil {
		rule.Pattern = *input.Pattern
	}
	if input.Category != nil {
		rule.Category = *input.Category
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	if len(existing) >= MaxRulesPerUser {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRules, MaxRulesPerUser)
	}

	now := s.timeSource.Now()
	rule.ID = s.idGenerator.Generate()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}
	s.invalidate(userID)
	slog.Debug("Created category rule", "user_id", userID, "rule_id", rule.ID, "priority", rule.Priority)
	return rule, nil
}

// GetRule retrieves one of the user's rules
func (s *Service) GetRule(ctx context.Context, userID, id string) (*CategoryRule, error) {
	rule, err := s.store.GetRule(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the user's rules in evaluation order
func (s *Service) ListRules(ctx context.Context, userID string) ([]*CategoryRule, error) {
	rules, err := s.store.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return rules, nil
}

// UpdateRule applies the non-nil fields of input to an existing rule
func (s *Service) UpdateRule(ctx context.Context, userID, id string, input RuleInput) (*CategoryRule, error) {
	rule, err := s.store.GetRule(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("getting rule for update: %w", err)
	}
	if input.Pattern != nil {
		rule.Pattern = *input.Pattern
	}
	if input.Category != nil {
		rule.Category = *input.Category
	}
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	rule.UpdatedAt = s.timeSource.Now()

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("updating rule: %w", err)
	}
	s.invalidate(userID)
	return rule, nil
}

// DeleteRule removes one of the user's rules
func (s *Service) DeleteRule(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteRule(ctx, userID, id); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	s.invalidate(userID)
	return nil
}

// RuleSet returns the user's compiled rules, building and caching them on
// first use after any change.
func (s *Service) RuleSet(ctx context.Context, userID string) (*RuleSet, error) {
	s.mu.RLock()
	set, ok := s.cache[userID]
	gen := s.generation[userID]
	s.mu.RUnlock()
	if ok {
		return set, nil
	}

	rules, err := s.store.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	set = Compile(rules)

	// a write during the load bumps the generation; don't cache the stale set
	s.mu.Lock()
	if s.generation[userID] == gen {
		s.cache[userID] = set
	}
	s.mu.Unlock()
	return set, nil
}

func (s *Service) invalidate(userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.generation[userID]++
	s.mu.Unlock()
}
