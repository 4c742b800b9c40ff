package address

import (
	"context"

	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/keys"
)

// Address is a rendered chain address together with the path it came from.
type Address struct {
	Address string    `json:"address"`
	Chain   chain.Tag `json:"chain"`
	Path    string    `json:"path"`
}

func (a Address) String() string {
	return a.Address
}

// BitcoinFormat selects the output script an encoded Bitcoin address pays to.
type BitcoinFormat string

const (
	P2PKH  BitcoinFormat = "p2pkh"
	P2WPKH BitcoinFormat = "p2wpkh"
)

// Service provides address derivation and validation
type Service interface {
	// DeriveAddress derives the key pair at path and renders its address.
	DeriveAddress(ctx context.Context, seed []byte, tag chain.Tag, path string) (*Address, error)

	// FromKeyPair renders the address of an already derived key pair.
	FromKeyPair(kp *keys.KeyPair, tag chain.Tag) (*Address, error)

	// Validate reports whether addr is well formed for tag on the configured network.
	Validate(addr string, tag chain.Tag) bool

	// GetBIP44Path returns the default path for tag at account/index.
	GetBIP44Path(tag chain.Tag, account uint32, index uint32) string
}
