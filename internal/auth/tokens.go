package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optimapos/optimapos/internal/shared"
)

// TokenStore keeps bearer tokens in redis. The value is the actor
// snapshot taken at login; a revoked or expired token simply stops
// resolving.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{client: client, ttl: ttl}
}

// Issue mints a token for the user and stores the actor payload.
func (s *TokenStore) Issue(ctx context.Context, user User) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: token entropy: %w", err)
	}
	token := hex.EncodeToString(buf)
	payload, err := json.Marshal(shared.Actor{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenKey(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token, nil
}

// Identity resolves a token back to its actor, refreshing the TTL.
func (s *TokenStore) Identity(ctx context.Context, token string) (shared.Actor, error) {
	raw, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if err == redis.Nil {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	if err != nil {
		return shared.Actor{}, fmt.Errorf("auth: load token: %w", err)
	}
	var actor shared.Actor
	if err := json.Unmarshal(raw, &actor); err != nil {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	s.client.Expire(ctx, tokenKey(token), s.ttl)
	return actor, nil
}

// Revoke deletes a token.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenKey(token)).Err()
}

func tokenKey(token string) string {
	return "auth:token:" + token
}
