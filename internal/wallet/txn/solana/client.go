package solana

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	pkgerrors "github.com/pkg/errors"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"golang.org/x/time/rate"
)

// SignatureStatus is the node's view of a submitted signature.
type SignatureStatus struct {
	Slot      uint64
	Finalized bool
	Failed    bool
}

// TransactionInfo is a landed transaction.
type TransactionInfo struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Fee       uint64
	Failed    bool
	Logs      []string
	From      string
	To        string
	Lamports  uint64
}

// Account is the raw state of an on-chain account.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// ErrUnknownSignature is returned by Client.Transaction for a signature the
// node has not seen.
var ErrUnknownSignature = errors.New("unknown signature")

// Client is the Solana node surface. Engine logic only talks to this seam;
// RPCClient adapts gagliardetto/solana-go.
type Client interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	// SignatureStatus returns nil when the signature is unknown.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	Transaction(ctx context.Context, sig solana.Signature) (*TransactionInfo, error)
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	// TokenBalance returns the owner's associated token account balance, "0"
	// when the account does not exist.
	TokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (string, error)
	// Account returns nil when the account does not exist.
	Account(ctx context.Context, key solana.PublicKey) (*Account, error)
	RentExemption(ctx context.Context, size uint64) (uint64, error)
	Epoch(ctx context.Context) (uint64, error)
}

type RPCClient struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	timeout time.Duration
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient talks to the first configured endpoint.
func NewRPCClient(cfg chain.ProviderConfig, m *metrics.Metrics) (*RPCClient, error) {
	urls := cfg.URLs()
	if len(urls) == 0 {
		return nil, pkgerrors.New("at least one RPC URL is required")
	}

	var client *rpc.Client
	if cfg.APIKey != "" {
		client = rpc.NewWithHeaders(urls[0], map[string]string{"Authorization": "Bearer " + cfg.APIKey})
	} else {
		client = rpc.New(urls[0])
	}

	c := &RPCClient{rpc: client, metrics: m, timeout: cfg.EffectiveTimeout()}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return c, nil
}

// begin bounds one RPC call by the configured timeout. The returned done
// must always be called.
func (c *RPCClient) begin(ctx context.Context, method string) (context.Context, func(), error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	done := func() {
		cancel()
		c.metrics.ObserveRPC(chain.Solana.String(), method, started)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx, done, err
		}
	}
	return ctx, done, nil
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	ctx, done, err := c.begin(ctx, "getLatestBlockhash")
	defer done()
	if err != nil {
		return solana.Hash{}, err
	}

	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, pkgerrors.Wrap(err, "failed to get latest blockhash")
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	ctx, done, err := c.begin(ctx, "sendTransaction")
	defer done()
	if err != nil {
		return solana.Signature{}, err
	}

	return c.rpc.SendRawTransaction(ctx, raw)
}

func (c *RPCClient) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	ctx, done, err := c.begin(ctx, "getSignatureStatuses")
	defer done()
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get signature status")
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	st := out.Value[0]
	return &SignatureStatus{
		Slot:      st.Slot,
		Finalized: st.ConfirmationStatus == rpc.ConfirmationStatusFinalized,
		Failed:    st.Err != nil,
	}, nil
}

func (c *RPCClient) Transaction(ctx context.Context, sig solana.Signature) (*TransactionInfo, error) {
	ctx, done, err := c.begin(ctx, "getTransaction")
	defer done()
	if err != nil {
		return nil, err
	}

	version := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrUnknownSignature
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get transaction")
	}

	info := &TransactionInfo{Signature: sig.String(), Slot: out.Slot}
	if out.BlockTime != nil {
		info.BlockTime = int64(*out.BlockTime)
	}
	if out.Meta != nil {
		info.Fee = out.Meta.Fee
		info.Failed = out.Meta.Err != nil
		info.Logs = out.Meta.LogMessages

		if len(out.Meta.PreBalances) > 1 && len(out.Meta.PostBalances) > 1 &&
			out.Meta.PostBalances[1] > out.Meta.PreBalances[1] {
			info.Lamports = out.Meta.PostBalances[1] - out.Meta.PreBalances[1]
		}
	}

	if out.Transaction != nil {
		if tx, err := out.Transaction.GetTransaction(); err == nil {
			keys := tx.Message.AccountKeys
			if len(keys) > 0 {
				info.From = keys[0].String()
			}
			if len(keys) > 1 {
				info.To = keys[1].String()
			}
		}
	}

	return info, nil
}

func (c *RPCClient) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	ctx, done, err := c.begin(ctx, "getBalance")
	defer done()
	if err != nil {
		return 0, err
	}

	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get balance")
	}
	return out.Value, nil
}

func (c *RPCClient) TokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (string, error) {
	ctx, done, err := c.begin(ctx, "getTokenAccountBalance")
	defer done()
	if err != nil {
		return "", err
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to find associated token address")
	}

	out, err := c.rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentFinalized)
	if err != nil {
		if strings.Contains(err.Error(), "could not find account") {
			return "0", nil
		}
		return "", pkgerrors.Wrap(err, "failed to get token account balance")
	}
	if out.Value == nil {
		return "0", nil
	}
	return out.Value.Amount, nil
}

func (c *RPCClient) Account(ctx context.Context, key solana.PublicKey) (*Account, error) {
	ctx, done, err := c.begin(ctx, "getAccountInfo")
	defer done()
	if err != nil {
		return nil, err
	}

	out, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get account %s", key)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	account := &Account{Lamports: out.Value.Lamports, Owner: out.Value.Owner}
	if out.Value.Data != nil {
		account.Data = out.Value.Data.GetBinary()
	}
	return account, nil
}

func (c *RPCClient) RentExemption(ctx context.Context, size uint64) (uint64, error) {
	ctx, done, err := c.begin(ctx, "getMinimumBalanceForRentExemption")
	defer done()
	if err != nil {
		return 0, err
	}

	out, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get rent exemption")
	}
	return out, nil
}

func (c *RPCClient) Epoch(ctx context.Context) (uint64, error) {
	ctx, done, err := c.begin(ctx, "getEpochInfo")
	defer done()
	if err != nil {
		return 0, err
	}

	out, err := c.rpc.GetEpochInfo(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get epoch info")
	}
	return out.Epoch, nil
}
