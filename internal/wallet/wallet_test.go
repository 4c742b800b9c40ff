package wallet_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/keystore"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testETH      = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func importTestWallet(t *testing.T) *wallet.Wallet {
	t.Helper()

	w, err := wallet.Import("main", testMnemonic, "")
	require.NoError(t, err)
	t.Cleanup(w.Destroy)

	return w
}

func newAddressService(t *testing.T) address.Service {
	t.Helper()

	s, err := address.NewService(address.Options{})
	require.NoError(t, err)
	return s
}

func TestNewWallet(t *testing.T) {
	w, phrase, err := wallet.New("  savings ", 12, "")
	require.NoError(t, err)
	defer w.Destroy()

	assert.Len(t, strings.Fields(phrase), 12)
	assert.Equal(t, "savings", w.Name())
	assert.False(t, w.IsBackedUp())
	assert.NotEqual(t, [16]byte{}, [16]byte(w.ID()))
	assert.False(t, w.CreatedAt().IsZero())

	other, otherPhrase, err := wallet.New("other", 24, "")
	require.NoError(t, err)
	defer other.Destroy()
	assert.Len(t, strings.Fields(otherPhrase), 24)
	assert.NotEqual(t, w.ID(), other.ID())
	assert.NotEqual(t, phrase, otherPhrase)

	_, _, err = wallet.New("bad", 15, "")
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))
}

func TestImportWallet(t *testing.T) {
	w := importTestWallet(t)
	assert.True(t, w.IsBackedUp())

	_, err := wallet.Import("bad", "abandon abandon abandon", "")
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))

	_, err = wallet.Import("bad", strings.Replace(testMnemonic, "about", "abandon", 1), "")
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))
}

func TestWalletMutations(t *testing.T) {
	w, _, err := wallet.New("a", 12, "")
	require.NoError(t, err)
	defer w.Destroy()

	w.SetName("b")
	w.MarkBackedUp()
	assert.Equal(t, "b", w.Name())
	assert.True(t, w.IsBackedUp())
}

func TestWalletJSONHasNoSecret(t *testing.T) {
	w := importTestWallet(t)

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "main", decoded["name"])
	assert.Equal(t, true, decoded["is_backed_up"])
	assert.Equal(t, w.ID().String(), decoded["id"])
	assert.Len(t, decoded, 4)
	assert.NotContains(t, string(data), "abandon")
}

func TestWithKeyPair(t *testing.T) {
	w := importTestWallet(t)

	var retained *keys.KeyPair
	err := w.WithKeyPair(chain.Ethereum, "m/44'/60'/0'/0/0", func(kp *keys.KeyPair) error {
		assert.Len(t, kp.PublicKey, 65)
		assert.Len(t, kp.PrivateKey, 32)
		retained = kp
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), retained.PrivateKey, "key is zeroed after use")

	err = w.WithKeyPair(chain.Solana, "m/44'/501'/0'/0", func(*keys.KeyPair) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.KindKeyDerivation, errs.KindOf(err))

	boom := errors.New("boom")
	err = w.WithKeyPair(chain.Bitcoin, "m/44'/0'/0'/0/0", func(*keys.KeyPair) error { return boom })
	assert.Equal(t, boom, err)
}

func TestDestroy(t *testing.T) {
	w, err := wallet.Import("main", testMnemonic, "")
	require.NoError(t, err)

	w.Destroy()
	assert.True(t, w.IsDestroyed())

	err = w.WithKeyPair(chain.Ethereum, "m/44'/60'/0'/0/0", func(*keys.KeyPair) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))

	_, err = w.ExportKeystore("password123", keystore.LightScryptParams())
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))
}

func TestKeystoreRoundTrip(t *testing.T) {
	w := importTestWallet(t)

	ks, err := w.ExportKeystore("correct horse", keystore.LightScryptParams())
	require.NoError(t, err)
	assert.Equal(t, w.ID().String(), ks.ID)

	restored, err := wallet.ImportKeystore("restored", ks, "correct horse", "")
	require.NoError(t, err)
	defer restored.Destroy()

	assert.Equal(t, w.ID(), restored.ID())
	assert.Equal(t, "restored", restored.Name())
	assert.True(t, restored.IsBackedUp())

	got, err := wallet.VerificationAddress(context.Background(), restored, newAddressService(t))
	require.NoError(t, err)
	assert.Equal(t, testETH, got)

	_, err = wallet.ImportKeystore("x", ks, "wrong", "")
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))

	_, err = w.ExportKeystore("", keystore.LightScryptParams())
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))
}

func TestVerifyPasswordByAddress(t *testing.T) {
	ctx := context.Background()
	svc := newAddressService(t)
	w := importTestWallet(t)

	ok, err := wallet.VerifyPasswordByAddress(ctx, w, svc, strings.ToLower(testETH))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = wallet.VerifyPasswordByAddress(ctx, w, svc, "")
	require.NoError(t, err)
	assert.True(t, ok)

	salted, err := wallet.Import("salted", testMnemonic, "TREZOR")
	require.NoError(t, err)
	defer salted.Destroy()

	ok, err = wallet.VerifyPasswordByAddress(ctx, salted, svc, testETH)
	require.NoError(t, err)
	assert.False(t, ok)
}

func scriptedPrompt(answers ...string) wallet.PasswordPrompt {
	return func(string) (string, error) {
		if len(answers) == 0 {
			return "", errors.New("no more answers")
		}
		a := answers[0]
		answers = answers[1:]
		return a, nil
	}
}

func TestInitializeKeystore(t *testing.T) {
	ctx := context.Background()
	svc := newAddressService(t)
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	opts := wallet.InitOptions{Name: "main", Words: 12, Scrypt: keystore.LightScryptParams()}

	created, phrase, err := wallet.InitializeKeystore(ctx, path, scriptedPrompt("password123", "password123"), svc, opts)
	require.NoError(t, err)
	defer created.Destroy()
	assert.Len(t, strings.Fields(phrase), 12)
	assert.False(t, created.IsBackedUp())

	file, err := wallet.LoadKeystoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, "main", file.Name)
	assert.True(t, address.ValidateEthereum(file.VerificationAddress))

	opened, phrase, err := wallet.InitializeKeystore(ctx, path, scriptedPrompt("password123"), svc, wallet.InitOptions{})
	require.NoError(t, err)
	defer opened.Destroy()
	assert.Empty(t, phrase)
	assert.Equal(t, created.ID(), opened.ID())
	assert.Equal(t, "main", opened.Name())

	_, _, err = wallet.InitializeKeystore(ctx, path, scriptedPrompt("password124"), svc, wallet.InitOptions{})
	require.Error(t, err)

	_, _, err = wallet.InitializeKeystore(ctx, path, scriptedPrompt("password123"), svc, wallet.InitOptions{Passphrase: "extra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password verification failed")
}

func TestInitializeKeystoreRejectsWeakPasswords(t *testing.T) {
	ctx := context.Background()
	svc := newAddressService(t)
	opts := wallet.InitOptions{Words: 12, Scrypt: keystore.LightScryptParams()}

	_, _, err := wallet.InitializeKeystore(ctx, filepath.Join(t.TempDir(), "a.json"), scriptedPrompt("short", "short"), svc, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")

	_, _, err = wallet.InitializeKeystore(ctx, filepath.Join(t.TempDir(), "b.json"), scriptedPrompt("password123", "password321"), svc, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
}

func TestInitializeKeystoreImportsPhrase(t *testing.T) {
	ctx := context.Background()
	svc := newAddressService(t)
	path := filepath.Join(t.TempDir(), "wallet.json")
	opts := wallet.InitOptions{Name: "imported", Phrase: testMnemonic, Scrypt: keystore.LightScryptParams()}

	w, phrase, err := wallet.InitializeKeystore(ctx, path, scriptedPrompt("password123", "password123"), svc, opts)
	require.NoError(t, err)
	defer w.Destroy()
	assert.Empty(t, phrase)
	assert.True(t, w.IsBackedUp())

	file, err := wallet.LoadKeystoreFile(path)
	require.NoError(t, err)
	assert.Equal(t, testETH, file.VerificationAddress)

	_, _, err = wallet.InitializeKeystore(ctx, filepath.Join(t.TempDir(), "bad.json"), scriptedPrompt("password123", "password123"), svc,
		wallet.InitOptions{Phrase: "abandon abandon", Scrypt: keystore.LightScryptParams()})
	require.Error(t, err)
	assert.Equal(t, errs.KindMnemonic, errs.KindOf(err))
}
