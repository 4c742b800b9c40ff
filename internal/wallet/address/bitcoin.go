package address

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const compressedPubKeyLength = 33

// BitcoinNetParams maps a network name to btcd chain parameters.
func BitcoinNetParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", chain.NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case chain.NetworkTestnet, "testnet3":
		return &chaincfg.TestNet3Params, nil
	case chain.NetworkRegtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errs.Provider("unsupported bitcoin network %q", network)
	}
}

// BitcoinAddress encodes a compressed public key as P2PKH or P2WPKH.
func BitcoinAddress(publicKey []byte, params *chaincfg.Params, format BitcoinFormat) (string, error) {
	if len(publicKey) != compressedPubKeyLength {
		return "", errs.KeyDerivation("not a Bitcoin public key: expected %d bytes, got %d", compressedPubKeyLength, len(publicKey))
	}

	hash := btcutil.Hash160(publicKey)

	var (
		addr btcutil.Address
		err  error
	)
	switch format {
	case "", P2PKH:
		addr, err = btcutil.NewAddressPubKeyHash(hash, params)
	case P2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(hash, params)
	default:
		return "", errs.KeyDerivation("unsupported bitcoin address format %q", format)
	}
	if err != nil {
		return "", errs.Wrap(errs.KindKeyDerivation, "encode bitcoin address", err)
	}

	return addr.EncodeAddress(), nil
}

// ValidateBitcoin runs the structural prefix/length check first and then a
// full decode, which verifies the checksum and the network.
func ValidateBitcoin(addr string, params *chaincfg.Params) bool {
	if !bitcoinShapeOK(addr, params) {
		return false
	}

	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return false
	}

	return decoded.IsForNet(params)
}

func bitcoinShapeOK(addr string, params *chaincfg.Params) bool {
	hrp := params.Bech32HRPSegwit + "1"
	if strings.HasPrefix(strings.ToLower(addr), hrp) {
		// P2WPKH (20 byte program) or P2WSH/P2TR (32 byte program)
		n := len(addr) - len(hrp)
		return n == 39 || n == 59
	}

	if len(addr) < 26 || len(addr) > 35 {
		return false
	}

	switch params.Net {
	case chaincfg.MainNetParams.Net:
		return addr[0] == '1' || addr[0] == '3'
	default:
		return addr[0] == 'm' || addr[0] == 'n' || addr[0] == '2'
	}
}
