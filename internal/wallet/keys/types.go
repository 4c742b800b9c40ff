// Package keys derives chain specific key pairs from a BIP39 seed.
package keys

import (
	"github/chapool/wallet-core/internal/wallet/chain"
)

// KeyPair is a derived key. PrivateKey is 32 bytes on every curve; PublicKey is
// 65 bytes uncompressed (Ethereum), 33 bytes compressed (Bitcoin) or a raw
// 32 byte ed25519 key (Solana).
type KeyPair struct {
	Chain      chain.Tag
	Path       string
	PrivateKey []byte `json:"-"`
	PublicKey  []byte
}

// Zero wipes the private key in place.
func (k *KeyPair) Zero() {
	if k == nil {
		return
	}
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}

// KeyRing lends short lived key pairs to signers. Implementations zero the pair
// once fn returns; fn must not retain it.
type KeyRing interface {
	WithKeyPair(tag chain.Tag, path string, fn func(kp *KeyPair) error) error
}
