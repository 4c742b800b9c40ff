package txn

import (
	"context"
	"math/big"

	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

// Signer turns a request into signed, serialized transaction bytes.
type Signer interface {
	Sign(ctx context.Context, req *Request) ([]byte, error)
}

// StatusReader reports where a transaction is in its lifecycle.
type StatusReader interface {
	GetStatus(ctx context.Context, hash string) (Status, error)
}

// Broadcaster submits signed bytes and tracks the result.
type Broadcaster interface {
	StatusReader
	Broadcast(ctx context.Context, signed []byte) (string, error)
	GetReceipt(ctx context.Context, hash string) (*Receipt, error)
}

// Manager is the full capability set of a chain provider.
type Manager interface {
	Signer
	Broadcaster

	Chain() chain.Tag

	// SendTransaction signs then broadcasts. It is not atomic and never retries.
	SendTransaction(ctx context.Context, req *Request) (string, error)

	// GetTransaction returns the transaction, with its receipt attached once terminal.
	GetTransaction(ctx context.Context, hash string) (*Transaction, error)
}

// SignAndBroadcast is the shared SendTransaction body.
func SignAndBroadcast(ctx context.Context, s Signer, b Broadcaster, req *Request) (string, error) {
	signed, err := s.Sign(ctx, req)
	if err != nil {
		return "", err
	}

	return b.Broadcast(ctx, signed)
}

// CheckChain rejects a request addressed to another chain before any network call.
func CheckChain(req *Request, want chain.Tag) error {
	if req == nil {
		return errs.Transaction("request is nil")
	}
	if req.Chain != want {
		return &errs.Error{
			Kind:  errs.KindTransaction,
			Op:    "sign",
			Chain: want.String(),
			Msg:   "not " + article(want.DisplayName()) + " transaction",
			Err:   errs.ErrChainMismatch,
		}
	}
	return nil
}

func article(name string) string {
	switch name {
	case "Ethereum":
		return "an " + name
	default:
		return "a " + name
	}
}

// ParseAmount parses a non-negative base-10 integer string.
func ParseAmount(field string, value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errs.Transaction("invalid %s %q: not a base-10 integer", field, value)
	}
	if n.Sign() < 0 {
		return nil, errs.Transaction("invalid %s %q: negative", field, value)
	}

	return n, nil
}
