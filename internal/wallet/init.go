package wallet

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/keystore"
)

const minPasswordLength = 8

// KeystoreFile is the on-disk form of an exported wallet.
type KeystoreFile struct {
	Name                string                 `json:"name,omitempty"`
	VerificationAddress string                 `json:"verification_address,omitempty"`
	Keystore            *keystore.KeystoreJSON `json:"keystore"`
}

// PasswordPrompt asks the user for a secret.
type PasswordPrompt func(prompt string) (string, error)

// InitOptions configures InitializeKeystore.
type InitOptions struct {
	Name  string
	Words int
	// Phrase imports an existing recovery phrase instead of generating one
	// when the keystore is created.
	Phrase     string
	Passphrase string
	Scrypt     keystore.ScryptParams
}

// LoadKeystoreFile reads a keystore file written by SaveKeystoreFile.
func LoadKeystoreFile(path string) (*KeystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keystore file")
	}

	var f KeystoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to decode keystore file")
	}
	if f.Keystore == nil {
		return nil, errors.New("keystore file has no keystore")
	}

	return &f, nil
}

// SaveKeystoreFile writes f with owner-only permissions.
func SaveKeystoreFile(path string, f *KeystoreFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode keystore file")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create keystore directory")
	}

	return errors.Wrap(os.WriteFile(path, data, 0o600), "failed to write keystore file")
}

// ExportKeystoreFile seals w and writes it to path together with its
// verification address.
func ExportKeystoreFile(ctx context.Context, path string, w *Wallet, password string, addressService address.Service, params keystore.ScryptParams) error {
	ks, err := w.ExportKeystore(password, params)
	if err != nil {
		return err
	}

	verification, err := VerificationAddress(ctx, w, addressService)
	if err != nil {
		return err
	}

	return SaveKeystoreFile(path, &KeystoreFile{
		Name:                w.Name(),
		VerificationAddress: verification,
		Keystore:            ks,
	})
}

// InitializeKeystore unlocks the wallet stored at path, or creates one when
// the file does not exist. The phrase is returned only for a newly generated
// wallet.
func InitializeKeystore(ctx context.Context, path string, prompt PasswordPrompt, addressService address.Service, opts InitOptions) (*Wallet, string, error) {
	log := log.With().Str("component", "wallet_init").Logger()

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info().Msg("Keystore not found. Generating new mnemonic...")
		return createKeystore(ctx, path, prompt, addressService, opts)
	case err != nil:
		return nil, "", errors.Wrap(err, "failed to check keystore existence")
	}

	log.Info().Msg("Keystore found. Please enter password to unlock...")

	f, err := LoadKeystoreFile(path)
	if err != nil {
		return nil, "", err
	}

	password, err := prompt("Enter keystore password: ")
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to read password")
	}

	name := opts.Name
	if name == "" {
		name = f.Name
	}

	w, err := ImportKeystore(name, f.Keystore, password, opts.Passphrase)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to decrypt keystore (invalid password?)")
	}

	valid, err := VerifyPasswordByAddress(ctx, w, addressService, f.VerificationAddress)
	if err != nil {
		w.Destroy()
		return nil, "", errors.Wrap(err, "failed to verify password")
	}
	if !valid {
		w.Destroy()
		return nil, "", errors.New("password verification failed: derived address does not match stored verification address")
	}

	log.Info().Str("wallet_id", w.ID().String()).Msg("Wallet unlocked")

	return w, "", nil
}

// PromptNewPassword asks for a new keystore password twice and enforces the
// minimum length.
func PromptNewPassword(prompt PasswordPrompt) (string, error) {
	password, err := prompt("Enter password for keystore (min 8 characters): ")
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}
	if len(password) < minPasswordLength {
		return "", errors.New("password must be at least 8 characters")
	}

	passwordConfirm, err := prompt("Confirm password: ")
	if err != nil {
		return "", errors.Wrap(err, "failed to read password confirmation")
	}
	if password != passwordConfirm {
		return "", errors.New("passwords do not match")
	}

	return password, nil
}

func createKeystore(ctx context.Context, path string, prompt PasswordPrompt, addressService address.Service, opts InitOptions) (*Wallet, string, error) {
	password, err := PromptNewPassword(prompt)
	if err != nil {
		return nil, "", err
	}

	var (
		w      *Wallet
		phrase string
	)
	if opts.Phrase != "" {
		w, err = Import(opts.Name, opts.Phrase, opts.Passphrase)
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to import wallet")
		}
	} else {
		words := opts.Words
		if words == 0 {
			words = 24
		}

		w, phrase, err = New(opts.Name, words, opts.Passphrase)
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to generate wallet")
		}
	}

	params := opts.Scrypt
	if params.N == 0 {
		params = keystore.StandardScryptParams()
	}

	if err := ExportKeystoreFile(ctx, path, w, password, addressService, params); err != nil {
		w.Destroy()
		return nil, "", errors.Wrap(err, "failed to create keystore")
	}

	log.Info().Str("wallet_id", w.ID().String()).Msg("Keystore created successfully")

	return w, phrase, nil
}
