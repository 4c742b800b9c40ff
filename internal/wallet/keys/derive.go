package keys

import (
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const minSeedLength = 16

// DeriveKeyPair derives the key pair for tag at path. The result depends only
// on (seed, tag, path). The caller owns the returned pair and should Zero it.
func DeriveKeyPair(seed []byte, tag chain.Tag, path string) (*KeyPair, error) {
	if len(seed) < minSeedLength {
		return nil, errs.KeyDerivation("seed too short: %d bytes", len(seed))
	}

	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	var priv, pub []byte
	switch tag {
	case chain.Ethereum:
		priv, pub, err = deriveEthereum(seed, indices)
	case chain.Bitcoin:
		priv, pub, err = deriveBitcoin(seed, indices)
	case chain.Solana:
		priv, pub, err = deriveEd25519(seed, indices)
	default:
		return nil, errs.KeyDerivation("unsupported chain %q", tag)
	}

	if err != nil {
		if errs.KindOf(err) == errs.KindKeyDerivation {
			return nil, err
		}
		return nil, errs.WrapChain(errs.KindKeyDerivation, "derive key pair", tag, err)
	}

	return &KeyPair{
		Chain:      tag,
		Path:       path,
		PrivateKey: priv,
		PublicKey:  pub,
	}, nil
}
