package wallet

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
)

const (
	// VerificationAddressIndex is the address index used for password verification
	VerificationAddressIndex = 0
)

// VerificationAddress derives the Ethereum address at index 0. Stored next to
// an encrypted keystore it catches a wrong BIP39 passphrase, which the
// keystore MAC cannot.
func VerificationAddress(ctx context.Context, w *Wallet, addressService address.Service) (string, error) {
	path := addressService.GetBIP44Path(chain.Ethereum, 0, VerificationAddressIndex)

	var derived *address.Address
	err := w.WithSeed(func(seed []byte) error {
		var err error
		derived, err = addressService.DeriveAddress(ctx, seed, chain.Ethereum, path)
		return err
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to derive verification address")
	}

	return derived.Address, nil
}

// VerifyPasswordByAddress compares the wallet's verification address with a
// stored one. An empty stored address passes: older keystore files have none.
func VerifyPasswordByAddress(ctx context.Context, w *Wallet, addressService address.Service, stored string) (bool, error) {
	log := log.With().Str("component", "password_verification").Logger()

	if stored == "" {
		log.Info().Msg("No verification address stored, skipping check")
		return true, nil
	}

	derived, err := VerificationAddress(ctx, w, addressService)
	if err != nil {
		log.Error().Err(err).Msg("Failed to derive verification address")
		return false, err
	}

	if !strings.EqualFold(derived, stored) {
		log.Warn().
			Str("derived", derived).
			Str("stored", stored).
			Msg("Password verification failed: addresses do not match")
		return false, nil
	}

	log.Info().Msg("Password verification successful")
	return true, nil
}
