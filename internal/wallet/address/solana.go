package address

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const solanaPubKeyLength = 32

// SolanaAddress is the base58 form of a raw ed25519 public key.
func SolanaAddress(publicKey []byte) (string, error) {
	if len(publicKey) != solanaPubKeyLength {
		return "", errs.KeyDerivation("not a Solana public key: expected %d bytes, got %d", solanaPubKeyLength, len(publicKey))
	}

	return base58.Encode(publicKey), nil
}

// ValidateSolana accepts any base58 string decoding to 32 bytes. Program
// derived addresses are off-curve and still valid here.
func ValidateSolana(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil {
		return false
	}

	return len(raw) == solanaPubKeyLength
}

// IsOnCurve reports whether addr is a point on ed25519, i.e. whether a private
// key can exist for it. Signer addresses must pass this check.
func IsOnCurve(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != solanaPubKeyLength {
		return false
	}

	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
