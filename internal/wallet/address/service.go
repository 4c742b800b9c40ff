package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
)

// Options configures network dependent encodings.
type Options struct {
	BitcoinNetwork string
	BitcoinFormat  BitcoinFormat
}

type service struct {
	btcParams *chaincfg.Params
	btcFormat BitcoinFormat
}

// NewService creates a new address Service
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(opts Options) (Service, error) {
	params, err := BitcoinNetParams(opts.BitcoinNetwork)
	if err != nil {
		return nil, err
	}

	format := opts.BitcoinFormat
	if format == "" {
		format = P2PKH
	}

	return &service{
		btcParams: params,
		btcFormat: format,
	}, nil
}

func (s *service) DeriveAddress(_ context.Context, seed []byte, tag chain.Tag, path string) (*Address, error) {
	kp, err := keys.DeriveKeyPair(seed, tag, path)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()

	return s.FromKeyPair(kp, tag)
}

func (s *service) FromKeyPair(kp *keys.KeyPair, tag chain.Tag) (*Address, error) {
	if kp.Chain != tag {
		return nil, errs.KeyDerivation("not %s public key", withArticle(tag.DisplayName()))
	}

	var (
		rendered string
		err      error
	)
	switch tag {
	case chain.Ethereum:
		rendered, err = EthereumAddress(kp.PublicKey)
	case chain.Bitcoin:
		rendered, err = BitcoinAddress(kp.PublicKey, s.btcParams, s.btcFormat)
	case chain.Solana:
		rendered, err = SolanaAddress(kp.PublicKey)
	default:
		return nil, errs.KeyDerivation("unsupported chain %q", tag)
	}
	if err != nil {
		log.Debug().Str("chain", tag.String()).Err(err).Msg("Failed to render address")
		return nil, err
	}

	return &Address{Address: rendered, Chain: tag, Path: kp.Path}, nil
}

func (s *service) Validate(addr string, tag chain.Tag) bool {
	return Validate(addr, tag, s.btcParams)
}

// Validate dispatches to the chain specific validator.
func Validate(addr string, tag chain.Tag, btcParams *chaincfg.Params) bool {
	switch tag {
	case chain.Ethereum:
		return ValidateEthereum(addr)
	case chain.Bitcoin:
		return ValidateBitcoin(addr, btcParams)
	case chain.Solana:
		return ValidateSolana(addr)
	default:
		return false
	}
}

// GetBIP44Path returns the conventional path for tag.
// Ethereum: m/44'/60'/{account}'/0/{index}
// Bitcoin:  m/44'/0'/{account}'/0/{index} (m/84'/... for P2WPKH, coin 1' off mainnet)
// Solana:   m/44'/501'/{account}'/{index}'
func (s *service) GetBIP44Path(tag chain.Tag, account uint32, index uint32) string {
	switch tag {
	case chain.Bitcoin:
		purpose := 44
		if s.btcFormat == P2WPKH {
			purpose = 84
		}
		coin := 0
		if s.btcParams.Net != chaincfg.MainNetParams.Net {
			coin = 1
		}
		return fmt.Sprintf("m/%d'/%d'/%d'/0/%d", purpose, coin, account, index)
	case chain.Solana:
		return fmt.Sprintf("m/44'/501'/%d'/%d'", account, index)
	default:
		return fmt.Sprintf("m/44'/60'/%d'/0/%d", account, index)
	}
}

func withArticle(name string) string {
	if name != "" && strings.ContainsRune("AEIOU", rune(name[0])) {
		return "an " + name
	}
	return "a " + name
}
