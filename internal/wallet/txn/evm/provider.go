// Package evm builds, signs, broadcasts and tracks transactions on
// Ethereum-compatible chains.
package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
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

const hashHexLength = 64

// erc20TransferSelector is transfer(address,uint256).
var erc20TransferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// Provider implements txn.Manager for one EVM chain.
type Provider struct {
	client  Client
	keys    keys.KeyRing
	metrics *metrics.Metrics
	log     zerolog.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

var _ txn.Manager = (*Provider)(nil)

// NewProvider returns a provider signing with keyRing. A zero chainID is read
// from the node on first use.
func NewProvider(client Client, keyRing keys.KeyRing, chainID int64, m *metrics.Metrics) *Provider {
	p := &Provider{
		client:  client,
		keys:    keyRing,
		metrics: m,
		log:     log.With().Str("component", "evm_provider").Logger(),
	}
	if chainID > 0 {
		p.chainID = big.NewInt(chainID)
	}
	return p
}

func (p *Provider) Chain() chain.Tag {
	return chain.Ethereum
}

// Client exposes the RPC surface to contract-level callers such as DeFi providers.
func (p *Provider) Client() Client {
	return p.client
}

// ChainID returns the configured chain id, asking the node when none was set.
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	p.chainMu.Lock()
	defer p.chainMu.Unlock()

	if p.chainID != nil {
		return new(big.Int).Set(p.chainID), nil
	}

	id, err := p.client.ChainID(ctx)
	if err != nil {
		return nil, p.providerErr("chain id", err)
	}
	p.chainID = id

	return new(big.Int).Set(id), nil
}

// Sign resolves nonce, gas and fee caps that the request leaves open, then
// signs with the key at req.DerivationPath.
func (p *Provider) Sign(ctx context.Context, req *txn.Request) ([]byte, error) {
	u, err := p.validate(req)
	if err != nil {
		return nil, err
	}

	if err := p.fill(ctx, req, u); err != nil {
		return nil, err
	}

	var raw []byte
	err = p.keys.WithKeyPair(chain.Ethereum, req.DerivationPath, func(kp *keys.KeyPair) error {
		signed, _, err := signTx(u, kp.PrivateKey)
		raw = signed
		return err
	})
	if err != nil {
		return nil, err
	}

	return raw, nil
}

// validate performs every check that needs no network access.
func (p *Provider) validate(req *txn.Request) (*unsignedTx, error) {
	if err := txn.CheckChain(req, chain.Ethereum); err != nil {
		return nil, err
	}

	if !address.ValidateEthereum(req.From) {
		return nil, errs.Transaction("invalid from address %q", req.From)
	}
	if req.To != "" && !address.ValidateEthereum(req.To) {
		return nil, errs.Transaction("invalid to address %q", req.To)
	}
	if req.DerivationPath == "" {
		return nil, errs.Transaction("derivation path is required to sign")
	}

	value, err := txn.ParseAmount("value", req.Value)
	if err != nil {
		return nil, err
	}

	u := &unsignedTx{
		from:  common.HexToAddress(req.From),
		value: value,
		gas:   req.GasLimit,
		data:  req.Data,
	}
	if req.To != "" {
		to := common.HexToAddress(req.To)
		u.to = &to
	}

	switch {
	case req.GasPrice != "":
		if u.gasPrice, err = txn.ParseAmount("gas price", req.GasPrice); err != nil {
			return nil, err
		}
	case req.MaxFeePerGas != "":
		if u.feeCap, err = txn.ParseAmount("max fee per gas", req.MaxFeePerGas); err != nil {
			return nil, err
		}
		if req.MaxPriorityFeePerGas != "" {
			if u.tipCap, err = txn.ParseAmount("max priority fee per gas", req.MaxPriorityFeePerGas); err != nil {
				return nil, err
			}
			if u.tipCap.Cmp(u.feeCap) > 0 {
				return nil, errs.Transaction("max priority fee per gas exceeds max fee per gas")
			}
		}
	}

	return u, nil
}

// fill queries the node for whatever the request did not pin down.
func (p *Provider) fill(ctx context.Context, req *txn.Request, u *unsignedTx) error {
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	u.chainID = chainID

	if req.Nonce != nil {
		u.nonce = *req.Nonce
	} else {
		nonce, err := p.client.PendingNonceAt(ctx, u.from)
		if err != nil {
			return p.providerErr("pending nonce", err)
		}
		u.nonce = nonce
	}

	if u.gas == 0 {
		gas, err := p.client.EstimateGas(ctx, ethereum.CallMsg{
			From:  u.from,
			To:    u.to,
			Value: u.value,
			Data:  u.data,
		})
		if err != nil {
			return p.providerErr("estimate gas", err)
		}
		u.gas = gas
	}

	if u.gasPrice != nil {
		return nil
	}

	if u.tipCap == nil {
		tip, err := p.client.SuggestGasTipCap(ctx)
		if err != nil {
			return p.providerErr("suggest tip cap", err)
		}
		u.tipCap = tip
	}

	if u.feeCap != nil {
		if u.tipCap.Cmp(u.feeCap) > 0 {
			u.tipCap = new(big.Int).Set(u.feeCap)
		}
		return nil
	}

	head, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return p.providerErr("latest header", err)
	}

	if head.BaseFee == nil {
		// Pre-London chain: fall back to a legacy transaction.
		price, err := p.client.SuggestGasPrice(ctx)
		if err != nil {
			return p.providerErr("suggest gas price", err)
		}
		u.gasPrice = price
		return nil
	}

	// 2 * baseFee + tip leaves room for six consecutive full blocks.
	u.feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), u.tipCap)

	return nil
}

// Broadcast submits RLP or typed-envelope bytes and returns the hash.
func (p *Provider) Broadcast(ctx context.Context, signed []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed); err != nil {
		return "", errs.Wrap(errs.KindTransaction, "broadcast", pkgerrors.Wrap(err, "malformed signed transaction"))
	}

	err := p.client.SendTransaction(ctx, tx)
	p.metrics.ObserveBroadcast(chain.Ethereum.String(), err)
	if err != nil {
		p.log.Warn().Str("hash", tx.Hash().Hex()).Err(err).Msg("Node rejected transaction")
		return "", p.providerErr("broadcast", err)
	}

	p.log.Info().Str("hash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).Msg("Transaction broadcast")

	return tx.Hash().Hex(), nil
}

func (p *Provider) SendTransaction(ctx context.Context, req *txn.Request) (string, error) {
	return txn.SignAndBroadcast(ctx, p, p, req)
}

// GetStatus is Pending while the node has no receipt.
func (p *Provider) GetStatus(ctx context.Context, hash string) (txn.Status, error) {
	h, err := parseHash(hash)
	if err != nil {
		return txn.StatusPending, err
	}

	receipt, err := p.client.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return txn.StatusPending, nil
	}
	if err != nil {
		return txn.StatusPending, p.providerErr("receipt", err)
	}

	return receiptStatus(receipt), nil
}

func (p *Provider) GetReceipt(ctx context.Context, hash string) (*txn.Receipt, error) {
	h, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	receipt, err := p.client.TransactionReceipt(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, errs.WrapChain(errs.KindTransaction, "receipt", chain.Ethereum, errs.ErrPending)
	}
	if err != nil {
		return nil, p.providerErr("receipt", err)
	}

	out := &txn.Receipt{
		Hash:   hash,
		Status: receiptStatus(receipt),
		Logs:   make([]string, 0, len(receipt.Logs)),
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()

		header, err := p.client.HeaderByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return nil, p.providerErr("block header", err)
		}
		out.Timestamp = header.Time
	}

	price := receipt.EffectiveGasPrice
	if price == nil {
		tx, _, err := p.client.TransactionByHash(ctx, h)
		if err != nil {
			return nil, p.providerErr("transaction", err)
		}
		price = tx.GasPrice()
	}
	out.Fee = new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price).String()

	for _, l := range receipt.Logs {
		encoded, err := json.Marshal(l)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransaction, "receipt", pkgerrors.Wrap(err, "failed to encode log"))
		}
		out.Logs = append(out.Logs, string(encoded))
	}

	return out, nil
}

// GetTransaction looks up hash and attaches the receipt once it is mined.
func (p *Provider) GetTransaction(ctx context.Context, hash string) (*txn.Transaction, error) {
	h, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	//nolint:varnamelen // tx is a common abbreviation for transaction
	tx, isPending, err := p.client.TransactionByHash(ctx, h)
	if errors.Is(err, ethereum.NotFound) {
		return nil, errs.WrapChain(errs.KindTransaction, "get transaction", chain.Ethereum, errs.ErrNotFound)
	}
	if err != nil {
		return nil, p.providerErr("transaction", err)
	}

	out := &txn.Transaction{
		Hash:     tx.Hash().Hex(),
		Type:     classify(tx),
		Chain:    chain.Ethereum,
		Value:    tx.Value().String(),
		GasPrice: tx.GasPrice().String(),
		GasLimit: tx.Gas(),
		Data:     tx.Data(),
		Status:   txn.StatusPending,
	}
	nonce := tx.Nonce()
	out.Nonce = &nonce

	if tx.To() != nil {
		out.To = tx.To().Hex()
	}
	if from, err := sender(tx); err == nil {
		out.From = from.Hex()
	} else {
		p.log.Debug().Str("hash", out.Hash).Err(err).Msg("Failed to recover sender")
	}

	if isPending {
		return out, nil
	}

	receipt, err := p.GetReceipt(ctx, hash)
	if errors.Is(err, errs.ErrPending) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.Attach(receipt)

	return out, nil
}

// Balance returns the native balance of addr in wei.
func (p *Provider) Balance(ctx context.Context, addr string) (*big.Int, error) {
	if !address.ValidateEthereum(addr) {
		return nil, errs.Transaction("invalid address %q", addr)
	}

	balance, err := p.client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, p.providerErr("balance", err)
	}

	return balance, nil
}

func (p *Provider) providerErr(op string, err error) error {
	return errs.WrapChain(errs.KindProvider, op, chain.Ethereum, err)
}

// sender recovers the signer of tx. Legacy transactions without replay
// protection carry no chain id and only verify under the Homestead rules.
func sender(tx *types.Transaction) (common.Address, error) {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err == nil {
		return from, nil
	}
	if tx.Type() != types.LegacyTxType || tx.Protected() {
		return common.Address{}, err
	}
	return types.Sender(types.HomesteadSigner{}, tx)
}

func receiptStatus(r *types.Receipt) txn.Status {
	if r.Status == types.ReceiptStatusSuccessful {
		return txn.StatusConfirmed
	}
	return txn.StatusFailed
}

func classify(tx *types.Transaction) txn.Type {
	data := tx.Data()
	switch {
	case len(data) == 0:
		return txn.TypeTransfer
	case len(data) >= 4 && bytes.Equal(data[:4], erc20TransferSelector):
		return txn.TypeTokenTransfer
	default:
		return txn.TypeContractCall
	}
}

func parseHash(hash string) (common.Hash, error) {
	if !strings.HasPrefix(hash, "0x") || len(hash) != hashHexLength+2 {
		return common.Hash{}, errs.Transaction("invalid transaction hash %q", hash)
	}

	raw, err := hexutil.Decode(hash)
	if err != nil {
		return common.Hash{}, errs.Transaction("invalid transaction hash %q", hash)
	}

	return common.BytesToHash(raw), nil
}
