package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/storage"
)

const (
	keyAccessToken = "access_token"
	keyUserProfile = "user_profile"
)

// TokenStore keeps the hosted-mode credential and the cached user profile in
// the durable store. The two keys live and die together: Clear removes both
// in a single atomic step so a half-cleared session can never be reused.
type TokenStore struct {
	store storage.Store
}

func NewTokenStore(store storage.Store) *TokenStore {
	return &TokenStore{store: store}
}

// Token returns the stored bearer token, or "" when signed out.
func (t *TokenStore) Token() string {
	v, err := t.store.Get(keyAccessToken)
	if err != nil {
		return ""
	}
	return v
}

// User returns the cached profile, or nil when signed out.
func (t *TokenStore) User() *models.User {
	v, err := t.store.Get(keyUserProfile)
	if err != nil {
		return nil
	}
	var u models.User
	if err := json.Unmarshal([]byte(v), &u); err != nil {
		return nil
	}
	return &u
}

func (t *TokenStore) SetSession(token string, user *models.User) error {
	profile, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := t.store.Set(keyAccessToken, token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	if err := t.store.Set(keyUserProfile, string(profile)); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	return nil
}

// Clear drops both keys atomically. Called on sign-out and on any
// AUTH_REQUIRED signal from the research API.
func (t *TokenStore) Clear() error {
	return t.store.DeleteAll(keyAccessToken, keyUserProfile)
}

// SignedIn reports whether a credential is present.
func (t *TokenStore) SignedIn() bool {
	_, err := t.store.Get(keyAccessToken)
	return !errors.Is(err, storage.ErrNotFound) && err == nil
}
