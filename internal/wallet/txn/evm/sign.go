package evm

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/errs"
)

// unsignedTx is a fully resolved request: every field the node would otherwise
// have filled in is set.
type unsignedTx struct {
	chainID *big.Int
	nonce   uint64
	from    common.Address
	to      *common.Address
	value   *big.Int
	gas     uint64
	data    []byte

	// gasPrice set means legacy; otherwise tipCap/feeCap (EIP-1559).
	gasPrice *big.Int
	tipCap   *big.Int
	feeCap   *big.Int
}

func (u *unsignedTx) build() *types.Transaction {
	if u.gasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    u.nonce,
			GasPrice: u.gasPrice,
			Gas:      u.gas,
			To:       u.to,
			Value:    u.value,
			Data:     u.data,
		})
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   u.chainID,
		Nonce:     u.nonce,
		GasTipCap: u.tipCap,
		GasFeeCap: u.feeCap,
		Gas:       u.gas,
		To:        u.to,
		Value:     u.value,
		Data:      u.data,
	})
}

// signTx signs u with privateKey and returns the RLP/typed envelope bytes.
func signTx(u *unsignedTx, privateKey []byte) ([]byte, *types.Transaction, error) {
	ecdsaPrivateKey, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindKeyDerivation, "sign", errors.Wrap(err, "failed to convert private key to ECDSA"))
	}

	publicKeyECDSA, ok := ecdsaPrivateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, nil, errs.KeyDerivation("failed to cast public key to ECDSA")
	}

	if derived := crypto.PubkeyToAddress(*publicKeyECDSA); derived != u.from {
		return nil, nil, errs.Transaction("from address %s does not match the key at the derivation path (%s)", u.from.Hex(), derived.Hex())
	}

	var signer types.Signer
	if u.gasPrice != nil {
		signer = types.NewEIP155Signer(u.chainID)
	} else {
		signer = types.NewLondonSigner(u.chainID)
	}

	//nolint:varnamelen // tx is a common abbreviation for transaction
	tx, err := types.SignTx(u.build(), signer, ecdsaPrivateKey)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindTransaction, "sign", errors.Wrap(err, "failed to sign transaction"))
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindTransaction, "sign", errors.Wrap(err, "failed to marshal transaction"))
	}

	return raw, tx, nil
}
