// Package solana signs and tracks SOL transfers, SPL token transfers and
// native stake delegations.
package solana

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/txn"
)

type Provider struct {
	client  Client
	keys    keys.KeyRing
	metrics *metrics.Metrics
	log     zerolog.Logger
}

var _ txn.Manager = (*Provider)(nil)

func NewProvider(client Client, keyRing keys.KeyRing, m *metrics.Metrics) *Provider {
	return &Provider{
		client:  client,
		keys:    keyRing,
		metrics: m,
		log:     log.With().Str("component", "solana_provider").Logger(),
	}
}

func (p *Provider) Chain() chain.Tag {
	return chain.Solana
}

// Client exposes the node seam to balance readers.
func (p *Provider) Client() Client {
	return p.client
}

// Sign builds the transaction req.Type asks for on a freshly fetched
// blockhash: a system transfer, an SPL TransferChecked of req.Token, or a new
// stake account delegated to the vote account in req.To.
func (p *Provider) Sign(ctx context.Context, req *txn.Request) ([]byte, error) {
	if err := txn.CheckChain(req, chain.Solana); err != nil {
		return nil, err
	}

	from, err := signingKey(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ParsePublicKey(req.To, "to")
	if err != nil {
		return nil, err
	}
	amount, err := parseLamports("value", req.Value)
	if err != nil {
		return nil, err
	}
	if req.DerivationPath == "" {
		return nil, errs.Transaction("derivation path is required to sign")
	}

	var (
		ixs   []solana.Instruction
		extra []solana.PrivateKey
	)
	switch req.Type {
	case "", txn.TypeTransfer:
		ixs = []solana.Instruction{system.NewTransferInstruction(amount, from, to).Build()}
	case txn.TypeTokenTransfer:
		mint, err := ParsePublicKey(req.Token, "token mint")
		if err != nil {
			return nil, err
		}
		ixs, err = p.tokenTransfer(ctx, from, to, mint, amount)
		if err != nil {
			return nil, err
		}
	case txn.TypeStaking:
		var stakeKey solana.PrivateKey
		ixs, stakeKey, err = p.delegateStake(ctx, from, to, amount)
		if err != nil {
			return nil, err
		}
		defer zero(stakeKey)
		extra = append(extra, stakeKey)
	default:
		return nil, errs.Transaction("unsupported Solana transaction type %q", req.Type)
	}

	return p.signInstructions(ctx, from, req.DerivationPath, ixs, extra...)
}

// SendInstructions signs ixs with the wallet key at path, paid by from, and
// broadcasts the result. Extra keys co-sign accounts the instructions create.
func (p *Provider) SendInstructions(ctx context.Context, from solana.PublicKey, path string, ixs []solana.Instruction, extra ...solana.PrivateKey) (string, error) {
	raw, err := p.signInstructions(ctx, from, path, ixs, extra...)
	if err != nil {
		return "", err
	}
	return p.Broadcast(ctx, raw)
}

func (p *Provider) signInstructions(ctx context.Context, from solana.PublicKey, path string, ixs []solana.Instruction, extra ...solana.PrivateKey) ([]byte, error) {
	if path == "" {
		return nil, errs.Transaction("derivation path is required to sign")
	}

	blockhash, err := p.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, p.providerErr("latest blockhash", err)
	}

	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to build transaction"))
	}

	err = p.keys.WithKeyPair(chain.Solana, path, func(kp *keys.KeyPair) error {
		priv := solana.PrivateKey(ed25519.NewKeyFromSeed(kp.PrivateKey))
		defer zero(priv)

		if !priv.PublicKey().Equals(from) {
			return errs.Transaction("from address %s does not match the key at the derivation path", from)
		}

		_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
			if key.Equals(from) {
				return &priv
			}
			for i := range extra {
				if key.Equals(extra[i].PublicKey()) {
					return &extra[i]
				}
			}
			return nil
		})
		if err != nil {
			return errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to sign transaction"))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to marshal transaction"))
	}

	return raw, nil
}

func zero(key solana.PrivateKey) {
	for i := range key {
		key[i] = 0
	}
}

// signingKey parses addr and requires it to be an ed25519 point.
func signingKey(addr string) (solana.PublicKey, error) {
	key, err := ParsePublicKey(addr, "from")
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !address.IsOnCurve(addr) {
		return solana.PublicKey{}, errs.Transaction("from address %s is not a signing key", addr)
	}
	return key, nil
}

func parseLamports(field string, value string) (uint64, error) {
	n, err := txn.ParseAmount(field, value)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() || n.Sign() == 0 {
		return 0, errs.Transaction("%s %s is out of range", field, value)
	}
	return n.Uint64(), nil
}

func (p *Provider) Broadcast(ctx context.Context, signed []byte) (string, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed))
	if err != nil || len(tx.Signatures) == 0 {
		return "", errs.Transaction("malformed signed transaction")
	}

	sig, err := p.client.SendTransaction(ctx, signed)
	p.metrics.ObserveBroadcast(chain.Solana.String(), err)
	if err != nil {
		p.log.Warn().Str("signature", tx.Signatures[0].String()).Err(err).Msg("Node rejected transaction")
		return "", p.providerErr("broadcast", err)
	}

	p.log.Info().Str("signature", sig.String()).Msg("Transaction broadcast")

	return sig.String(), nil
}

func (p *Provider) SendTransaction(ctx context.Context, req *txn.Request) (string, error) {
	return txn.SignAndBroadcast(ctx, p, p, req)
}

// GetStatus is Confirmed only at finalized commitment; an execution error is
// Failed as soon as the node reports it.
func (p *Provider) GetStatus(ctx context.Context, hash string) (txn.Status, error) {
	sig, err := parseSignature(hash)
	if err != nil {
		return txn.StatusPending, err
	}

	st, err := p.client.SignatureStatus(ctx, sig)
	if err != nil {
		return txn.StatusPending, p.providerErr("signature status", err)
	}

	switch {
	case st == nil:
		return txn.StatusPending, nil
	case st.Failed:
		return txn.StatusFailed, nil
	case st.Finalized:
		return txn.StatusConfirmed, nil
	default:
		return txn.StatusPending, nil
	}
}

func (p *Provider) GetReceipt(ctx context.Context, hash string) (*txn.Receipt, error) {
	info, err := p.info(ctx, hash)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.WrapChain(errs.KindTransaction, "receipt", chain.Solana, errs.ErrPending)
	}
	if err != nil {
		return nil, err
	}

	return receipt(info), nil
}

func (p *Provider) GetTransaction(ctx context.Context, hash string) (*txn.Transaction, error) {
	info, err := p.info(ctx, hash)
	if err != nil {
		return nil, err
	}

	out := &txn.Transaction{
		Hash:   info.Signature,
		Type:   txn.TypeTransfer,
		Chain:  chain.Solana,
		From:   info.From,
		To:     info.To,
		Value:  strconv.FormatUint(info.Lamports, 10),
		Status: txn.StatusPending,
	}

	status, err := p.GetStatus(ctx, hash)
	if err != nil {
		return nil, err
	}
	if status.IsTerminal() {
		out.Attach(receipt(info))
		out.Status = status
	}

	return out, nil
}

// Balance returns the lamport balance of addr.
func (p *Provider) Balance(ctx context.Context, addr string) (uint64, error) {
	key, err := ParsePublicKey(addr, "account")
	if err != nil {
		return 0, err
	}

	balance, err := p.client.Balance(ctx, key)
	if err != nil {
		return 0, p.providerErr("balance", err)
	}
	return balance, nil
}

func (p *Provider) info(ctx context.Context, hash string) (*TransactionInfo, error) {
	sig, err := parseSignature(hash)
	if err != nil {
		return nil, err
	}

	info, err := p.client.Transaction(ctx, sig)
	if errors.Is(err, ErrUnknownSignature) {
		return nil, errs.WrapChain(errs.KindTransaction, "get transaction", chain.Solana, errs.ErrNotFound)
	}
	if err != nil {
		return nil, p.providerErr("get transaction", err)
	}
	if info.Signature == "" {
		info.Signature = hash
	}

	return info, nil
}

func receipt(info *TransactionInfo) *txn.Receipt {
	status := txn.StatusConfirmed
	if info.Failed {
		status = txn.StatusFailed
	}

	logs := info.Logs
	if logs == nil {
		logs = []string{}
	}

	return &txn.Receipt{
		Hash:        info.Signature,
		Status:      status,
		BlockNumber: info.Slot,
		Timestamp:   uint64(info.BlockTime),
		Fee:         strconv.FormatUint(info.Fee, 10),
		Logs:        logs,
	}
}

func (p *Provider) providerErr(op string, err error) error {
	return errs.WrapChain(errs.KindProvider, op, chain.Solana, err)
}

// ParsePublicKey decodes a base58 account address.
func ParsePublicKey(addr string, field string) (solana.PublicKey, error) {
	if !address.ValidateSolana(addr) {
		return solana.PublicKey{}, errs.Transaction("invalid %s address %q", field, addr)
	}

	key, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, errs.Transaction("invalid %s address %q", field, addr)
	}
	return key, nil
}

func parseSignature(hash string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(hash)
	if err != nil {
		return solana.Signature{}, errs.Transaction("invalid transaction signature %q", hash)
	}
	return sig, nil
}
