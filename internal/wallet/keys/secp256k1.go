package keys

import (
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
)

// deriveEthereum walks the path with BIP32 and returns the private key plus
// the 65 byte uncompressed public key.
func deriveEthereum(seed []byte, indices []uint32) ([]byte, []byte, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create master key")
	}

	key := masterKey
	for _, index := range indices {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to derive child key at index %d", index)
		}
	}

	privateKey := make([]byte, len(key.Key))
	copy(privateKey, key.Key)

	ecdsaKey, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to convert to ECDSA private key")
	}

	return privateKey, crypto.FromECDSAPub(&ecdsaKey.PublicKey), nil
}

// deriveBitcoin walks the path with hdkeychain and returns the private key plus
// the 33 byte compressed public key. The key material does not depend on the
// network, only the extended key serialization does.
func deriveBitcoin(seed []byte, indices []uint32) ([]byte, []byte, error) {
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create master key")
	}

	for _, index := range indices {
		key, err = key.Derive(index)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to derive child key at index %d", index)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to extract private key")
	}

	return priv.Serialize(), priv.PubKey().SerializeCompressed(), nil
}
