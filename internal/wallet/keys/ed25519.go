package keys

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"

	"github/chapool/wallet-core/internal/wallet/errs"
)

var ed25519SeedKey = []byte("ed25519 seed")

// deriveEd25519 implements SLIP-10 for ed25519. Only hardened children exist
// on this curve.
func deriveEd25519(seed []byte, indices []uint32) ([]byte, []byte, error) {
	key, chainCode := slip10Split(hmacSHA512(ed25519SeedKey, seed))

	data := make([]byte, 1+32+4)
	for _, index := range indices {
		if !IsHardened(index) {
			return nil, nil, errs.KeyDerivation("ed25519 only supports hardened derivation, got index %d", index)
		}

		data[0] = 0x00
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], index)

		wipe(key)
		key, chainCode = slip10Split(hmacSHA512(chainCode, data))
	}
	wipe(data)
	wipe(chainCode)

	pub := ed25519.NewKeyFromSeed(key).Public().(ed25519.PublicKey) //nolint:forcetypeassert // ed25519 always returns PublicKey

	return key, []byte(pub), nil
}

func slip10Split(i []byte) ([]byte, []byte) {
	key := make([]byte, 32)
	chainCode := make([]byte, 32)
	copy(key, i[:32])
	copy(chainCode, i[32:])
	wipe(i)
	return key, chainCode
}

func hmacSHA512(key []byte, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
