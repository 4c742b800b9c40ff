package txn

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/wallet/errs"
)

const DefaultPollInterval = 3 * time.Second

// WaitForTerminal polls until hash is Confirmed or Failed. Cancelling ctx only
// stops the waiting; an already broadcast transaction may still be mined.
func WaitForTerminal(ctx context.Context, r StatusReader, hash string, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := r.GetStatus(ctx, hash)
		if err != nil {
			return StatusPending, err
		}
		if status.IsTerminal() {
			return status, nil
		}

		log.Debug().Str("hash", hash).Msg("Transaction still pending")

		select {
		case <-ctx.Done():
			return StatusPending, errs.Wrap(errs.KindTransaction, "wait for transaction",
				errors.Wrapf(ctx.Err(), "stopped waiting for %s", hash))
		case <-ticker.C:
		}
	}
}
