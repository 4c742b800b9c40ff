package seed

import (
	"crypto/sha512"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"github/chapool/wallet-core/internal/wallet/errs"
	"golang.org/x/crypto/pbkdf2"
)

// BIP39: seed = PBKDF2(mnemonic, "mnemonic" + passphrase, 2048, 64, SHA512)
const (
	pbkdf2Iterations = 2048
	pbkdf2KeyLength  = 64
	saltPrefix       = "mnemonic"
)

// SeedLength is the byte length of a BIP39 seed.
const SeedLength = pbkdf2KeyLength

var entropyBits = map[int]int{
	12: 128,
	24: 256,
}

// GenerateMnemonic returns a fresh English BIP39 phrase with 12 or 24 words.
func GenerateMnemonic(words int) (string, error) {
	bits, ok := entropyBits[words]
	if !ok {
		return "", errs.Mnemonic("unsupported mnemonic length %d, expected 12 or 24 words", words)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", errs.Wrap(errs.KindMnemonic, "generate entropy", err)
	}
	defer zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errs.Wrap(errs.KindMnemonic, "encode mnemonic", err)
	}

	return mnemonic, nil
}

// ValidateMnemonic reports true for a checksum-valid phrase. Malformed input
// (word count, unknown word, checksum) yields false and a Mnemonic error.
func ValidateMnemonic(mnemonic string) (bool, error) {
	words := strings.Fields(mnemonic)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return false, errs.Mnemonic("invalid word count %d", len(words))
	}

	for i, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return false, errs.Mnemonic("word %d is not in the wordlist", i+1)
		}
	}

	if _, err := bip39.MnemonicToByteArray(strings.Join(words, " ")); err != nil {
		return false, errs.Wrap(errs.KindMnemonic, "validate mnemonic", err)
	}

	return true, nil
}

// MnemonicToSeed derives the 64 byte BIP39 seed. Identical phrase and
// passphrase always produce identical bytes.
func MnemonicToSeed(mnemonic string, passphrase string) ([]byte, error) {
	if _, err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	return deriveSeed(normalize(mnemonic), passphrase), nil
}

func deriveSeed(mnemonic string, passphrase string) []byte {
	return pbkdf2.Key(
		[]byte(mnemonic),
		[]byte(saltPrefix+passphrase),
		pbkdf2Iterations,
		pbkdf2KeyLength,
		sha512.New,
	)
}

func normalize(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
