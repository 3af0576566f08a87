package account

import (
	"context"
	"sync"
)

// Memory is a Directory that keeps accounts in memory only.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]Hash
}

// NewMemory returns an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]Hash)}
}

// Login implements Directory.
func (m *Memory) Login(_ context.Context, name string, proof Hash, clientToken, serverToken uint32) (LoginResult, error) {
	m.mu.RLock()
	stored, ok := m.accounts[name]
	m.mu.RUnlock()

	if !ok {
		return LoginUnknownAccount, nil
	}
	return verify(stored, proof, clientToken, serverToken), nil
}

// Create implements Directory.
func (m *Memory) Create(_ context.Context, name string, passwordHash Hash) (CreateResult, error) {
	if r := ValidateName(name); r != CreateSuccess {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[name]; ok {
		return CreateAccountExists, nil
	}
	m.accounts[name] = passwordHash
	return CreateSuccess, nil
}
