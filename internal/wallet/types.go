package wallet

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/keystore"
	"github/chapool/wallet-core/internal/wallet/seed"
)

// Wallet owns one mnemonic. Only the name and the backup flag change after
// creation; the secret never leaves the wallet except through ExportKeystore.
type Wallet struct {
	id        uuid.UUID
	createdAt time.Time
	secret    seed.Manager

	mu         sync.RWMutex
	name       string
	isBackedUp bool
}

var _ keys.KeyRing = (*Wallet)(nil)

// New creates a wallet from a fresh random phrase of words words. The phrase
// is returned once so the caller can back it up.
func New(name string, words int, passphrase string) (*Wallet, string, error) {
	phrase, err := seed.GenerateMnemonic(words)
	if err != nil {
		return nil, "", err
	}

	w, err := open(uuid.New(), name, phrase, passphrase, false)
	if err != nil {
		return nil, "", err
	}

	return w, phrase, nil
}

// Import restores a wallet from a caller supplied phrase. Imported wallets
// count as backed up.
func Import(name string, phrase string, passphrase string) (*Wallet, error) {
	return open(uuid.New(), name, phrase, passphrase, true)
}

// ImportKeystore decrypts ks and restores the wallet it was exported from.
func ImportKeystore(name string, ks *keystore.KeystoreJSON, password string, passphrase string) (*Wallet, error) {
	if ks == nil {
		return nil, errs.Mnemonic("keystore is nil")
	}

	phrase, err := keystore.Decrypt(ks, password)
	if err != nil {
		return nil, err
	}
	defer wipe(phrase)

	id, err := uuid.Parse(ks.ID)
	if err != nil {
		id = uuid.New()
	}

	return open(id, name, string(phrase), passphrase, true)
}

func open(id uuid.UUID, name string, phrase string, passphrase string, backedUp bool) (*Wallet, error) {
	secret := seed.NewManager()
	if err := secret.Initialize(phrase, passphrase); err != nil {
		return nil, err
	}

	return &Wallet{
		id:         id,
		createdAt:  time.Now().UTC(),
		secret:     secret,
		name:       strings.TrimSpace(name),
		isBackedUp: backedUp,
	}, nil
}

func (w *Wallet) ID() uuid.UUID {
	return w.id
}

func (w *Wallet) CreatedAt() time.Time {
	return w.createdAt
}

func (w *Wallet) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.name
}

func (w *Wallet) SetName(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.name = strings.TrimSpace(name)
}

func (w *Wallet) IsBackedUp() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.isBackedUp
}

// MarkBackedUp records that the user has confirmed their phrase backup.
func (w *Wallet) MarkBackedUp() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.isBackedUp = true
}

// IsDestroyed reports whether Destroy has been called.
func (w *Wallet) IsDestroyed() bool {
	return !w.secret.IsInitialized()
}

// Destroy zeroes the secret. Every later key operation fails.
func (w *Wallet) Destroy() {
	w.secret.Clear()
}

// WithSeed lends the BIP39 seed to fn and zeroes it afterwards.
func (w *Wallet) WithSeed(fn func(seed []byte) error) error {
	return w.secret.WithSeed(fn)
}

// WithKeyPair derives the key at path and lends it to fn.
func (w *Wallet) WithKeyPair(tag chain.Tag, path string, fn func(kp *keys.KeyPair) error) error {
	return w.secret.WithSeed(func(seed []byte) error {
		kp, err := keys.DeriveKeyPair(seed, tag, path)
		if err != nil {
			return err
		}
		defer kp.Zero()

		return fn(kp)
	})
}

// ExportKeystore seals the phrase under password. The keystore id is the
// wallet id so ImportKeystore restores the same identity.
func (w *Wallet) ExportKeystore(password string, params keystore.ScryptParams) (*keystore.KeystoreJSON, error) {
	if password == "" {
		return nil, errs.Mnemonic("keystore password is empty")
	}

	var ks *keystore.KeystoreJSON
	err := w.secret.WithPhrase(func(phrase []byte) error {
		var err error
		ks, err = keystore.Encrypt(phrase, password, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	ks.ID = w.id.String()

	return ks, nil
}

type walletJSON struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	IsBackedUp bool      `json:"is_backed_up"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalJSON encodes the public fields only.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	return json.Marshal(walletJSON{
		ID:         w.id,
		Name:       w.Name(),
		IsBackedUp: w.IsBackedUp(),
		CreatedAt:  w.createdAt,
	})
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
