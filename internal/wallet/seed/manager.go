package seed

import (
	"sync"

	"github/chapool/wallet-core/internal/wallet/errs"
)

// manager keeps the phrase in a private buffer; the seed only exists inside WithSeed.
type manager struct {
	phrase      []byte
	passphrase  []byte
	mu          sync.RWMutex
	initialized bool
}

// NewManager creates a new Manager
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewManager() Manager {
	return &manager{}
}

func (m *manager) Initialize(mnemonic string, passphrase string) error {
	if _, err := ValidateMnemonic(mnemonic); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
	m.phrase = []byte(normalize(mnemonic))
	m.passphrase = []byte(passphrase)
	m.initialized = true

	return nil
}

func (m *manager) WithSeed(fn func(seed []byte) error) error {
	m.mu.RLock()
	if !m.initialized {
		m.mu.RUnlock()
		return errs.Mnemonic("seed not initialized")
	}
	seed := deriveSeed(string(m.phrase), string(m.passphrase))
	m.mu.RUnlock()

	defer zero(seed)

	return fn(seed)
}

func (m *manager) WithPhrase(fn func(phrase []byte) error) error {
	m.mu.RLock()
	if !m.initialized {
		m.mu.RUnlock()
		return errs.Mnemonic("seed not initialized")
	}
	phraseCopy := make([]byte, len(m.phrase))
	copy(phraseCopy, m.phrase)
	m.mu.RUnlock()

	defer zero(phraseCopy)

	return fn(phraseCopy)
}

func (m *manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.initialized
}

func (m *manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
}

func (m *manager) clearLocked() {
	zero(m.phrase)
	zero(m.passphrase)
	m.phrase = nil
	m.passphrase = nil
	m.initialized = false
}
