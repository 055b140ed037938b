// Package storage provides the key-value stores backing sessions and tokens.
//
// Two scopes exist with different lifetimes: the in-memory store is lost when
// the process exits (PKCE verifiers and CSRF state must never outlive a
// session), while the SQLite store survives restarts (access tokens, cached
// profiles, pending form values).
package storage

import "errors"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal key-value interface. Implementations must make
// DeleteAll atomic: either every key is removed or none is, so a session is
// never observed half-cleared.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	DeleteAll(keys ...string) error
}

// Take reads and deletes a key in one step. The value is delivered at most
// once; a second call reports ErrNotFound.
func Take(s Store, key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	if err := s.Delete(key); err != nil {
		return "", err
	}
	return v, nil
}
