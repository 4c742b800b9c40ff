package address

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const (
	ethereumAddressHexLength = 40
	ethereumAddressBytes     = 20
)

// EthereumAddress renders the EIP-55 checksummed address of a 65 byte
// uncompressed secp256k1 public key.
func EthereumAddress(publicKey []byte) (string, error) {
	pub, err := crypto.UnmarshalPubkey(publicKey)
	if err != nil {
		return "", errs.KeyDerivation("not an Ethereum public key: %v", err)
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// ValidateEthereum accepts "0x" followed by 40 hex characters.
func ValidateEthereum(addr string) bool {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return false
	}

	body := addr[2:]
	if len(body) != ethereumAddressHexLength {
		return false
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return false
	}

	return len(raw) == ethereumAddressBytes
}
