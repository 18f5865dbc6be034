// Package redis provides Redis-based adapters for the skuflow system.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skuflow/skuflow/internal/automation"
)

// SessionStateStore persists browser session state (cookies and fingerprint)
// per account so a restarted runner can resume without a fresh sign-in.
// TTL keeps stale cookie snapshots from outliving the site's own sessions.
type SessionStateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionStateStore creates a new Redis-backed session state store.
func NewSessionStateStore(client redis.UniversalClient, ttl time.Duration) *SessionStateStore {
	return &SessionStateStore{
		client: client,
		prefix: "session_state:",
		ttl:    ttl,
	}
}

// NewSessionStateStoreWithPrefix creates a session state store with a custom key prefix.
func NewSessionStateStoreWithPrefix(client redis.UniversalClient, prefix string, ttl time.Duration) *SessionStateStore {
	return &SessionStateStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Save stores the session state for an account, refreshing the TTL.
func (s *SessionStateStore) Save(ctx context.Context, accountRef string, state *automation.SessionState) error {
	if accountRef == "" {
		return errors.New("account ref cannot be empty")
	}
	if state == nil {
		return errors.New("session state cannot be nil")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	return s.client.Set(ctx, s.prefix+accountRef, data, s.ttl).Err()
}

// Load retrieves the session state for an account, or
// automation.ErrStateNotFound.
func (s *SessionStateStore) Load(ctx context.Context, accountRef string) (*automation.SessionState, error) {
	if accountRef == "" {
		return nil, automation.ErrStateNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+accountRef).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, automation.ErrStateNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var state automation.SessionState
	if unmarshalErr := json.Unmarshal([]byte(data), &state); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", unmarshalErr)
	}

	return &state, nil
}

// Delete removes the stored session state for an account.
func (s *SessionStateStore) Delete(ctx context.Context, accountRef string) error {
	if accountRef == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+accountRef).Err()
}
