package client

import "sync"

// TokenStore holds the current token pair. Implementations decide where it
// lives (memory, keychain, secure cookie jar) and must be safe for
// concurrent use.
type TokenStore interface {
	Get() (Tokens, bool)
	Set(Tokens)
	Clear()
}

// MemoryTokenStore keeps tokens in process memory only.
type MemoryTokenStore struct {
	mu  sync.RWMutex
	tok *Tokens
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Get() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return Tokens{}, false
	}
	return *s.tok, true
}

func (s *MemoryTokenStore) Set(t Tokens) {
	s.mu.Lock()
	s.tok = &t
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
}
