package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/gotd/td/session"
)

// MemorySessionStorage implements session.Storage in process memory.
// The login flow uses an empty one for its short-lived unauthenticated
// connection; cached live connections get one preloaded from the
// operator's stored session token.
type MemorySessionStorage struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemorySessionStorage creates a storage with optional initial session data.
func NewMemorySessionStorage(initial []byte) *MemorySessionStorage {
	return &MemorySessionStorage{data: initial}
}

// LoadSession loads session data from memory
func (s *MemorySessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return s.data, nil
}

// StoreSession stores session data in memory
func (s *MemorySessionStorage) StoreSession(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	return nil
}

// Bytes returns a copy of the current session data.
func (s *MemorySessionStorage) Bytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out
}

// EncodeSessionToken serializes raw session bytes into the string form
// stored in the credential table.
func EncodeSessionToken(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeSessionToken is the inverse of EncodeSessionToken.
func DecodeSessionToken(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed session token: %w", err)
	}
	return data, nil
}

// Ensure MemorySessionStorage implements session.Storage interface
var _ session.Storage = (*MemorySessionStorage)(nil)
