// Package bitcoin builds, signs and tracks UTXO transactions against a
// Bitcoin Core compatible node.
package bitcoin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// DefaultMinConfirmations marks a transaction Confirmed once it is in a block.
const DefaultMinConfirmations = 1

type Provider struct {
	client           Client
	keys             keys.KeyRing
	params           *chaincfg.Params
	minConfirmations int64
	metrics          *metrics.Metrics
	log              zerolog.Logger
}

var _ txn.Manager = (*Provider)(nil)

func NewProvider(client Client, keyRing keys.KeyRing, params *chaincfg.Params, m *metrics.Metrics) *Provider {
	return &Provider{
		client:           client,
		keys:             keyRing,
		params:           params,
		minConfirmations: DefaultMinConfirmations,
		metrics:          m,
		log:              log.With().Str("component", "bitcoin_provider").Str("network", params.Name).Logger(),
	}
}

func (p *Provider) Chain() chain.Tag {
	return chain.Bitcoin
}

// Sign builds the transaction from req.Inputs and signs every input with the
// key at req.DerivationPath, which must own req.From.
func (p *Provider) Sign(_ context.Context, req *txn.Request) ([]byte, error) {
	u, err := build(req, p.params)
	if err != nil {
		return nil, err
	}
	if req.DerivationPath == "" {
		return nil, errs.Transaction("derivation path is required to sign")
	}

	err = p.keys.WithKeyPair(chain.Bitcoin, req.DerivationPath, func(kp *keys.KeyPair) error {
		return signInputs(u, kp, p.params)
	})
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Int("inputs", len(u.plan.Inputs)).
		Int64("pay", u.plan.Pay).
		Int64("change", u.plan.Change).
		Int64("fee", u.plan.Fee).
		Msg("Signed transaction")

	return serialize(u.tx)
}

func signInputs(u *unsigned, kp *keys.KeyPair, params *chaincfg.Params) error {
	privKey, pubKey := btcec.PrivKeyFromBytes(kp.PrivateKey)
	defer privKey.Zero()

	compressed := pubKey.SerializeCompressed()
	pubKeyHash := btcutil.Hash160(compressed)

	switch from := u.from.(type) {
	case *btcutil.AddressPubKeyHash:
		if !bytes.Equal(from.ScriptAddress(), pubKeyHash) {
			return errs.Transaction("from address %s does not match the key at the derivation path", from.EncodeAddress())
		}
		return signP2PKH(u, privKey, compressed)

	case *btcutil.AddressWitnessPubKeyHash:
		if !bytes.Equal(from.ScriptAddress(), pubKeyHash) {
			return errs.Transaction("from address %s does not match the key at the derivation path", from.EncodeAddress())
		}
		return signP2WPKH(u, privKey)

	default:
		return errs.Transaction("unsupported from address type on %s", params.Name)
	}
}

func signP2PKH(u *unsigned, privKey *btcec.PrivateKey, compressed []byte) error {
	for i := range u.tx.TxIn {
		sigHash, err := txscript.CalcSignatureHash(u.fromPkSc, txscript.SigHashAll, u.tx, i)
		if err != nil {
			return errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to calculate signature hash"))
		}

		signature := ecdsa.Sign(privKey, sigHash)
		sigBytes := append(signature.Serialize(), byte(txscript.SigHashAll))

		sigScript, err := txscript.NewScriptBuilder().
			AddData(sigBytes).
			AddData(compressed).
			Script()
		if err != nil {
			return errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to build signature script"))
		}

		u.tx.TxIn[i].SignatureScript = sigScript
	}

	return nil
}

func signP2WPKH(u *unsigned, privKey *btcec.PrivateKey) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range u.tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, wire.NewTxOut(u.plan.Inputs[i].Amount, u.fromPkSc))
	}
	sigHashes := txscript.NewTxSigHashes(u.tx, fetcher)

	for i := range u.tx.TxIn {
		witness, err := txscript.WitnessSignature(u.tx, sigHashes, i, u.plan.Inputs[i].Amount,
			u.fromPkSc, txscript.SigHashAll, privKey, true)
		if err != nil {
			return errs.Wrap(errs.KindTransaction, "sign", pkgerrors.Wrap(err, "failed to create witness"))
		}
		u.tx.TxIn[i].Witness = witness
	}

	return nil
}

// Broadcast hands raw transaction bytes to the node.
func (p *Provider) Broadcast(ctx context.Context, signed []byte) (string, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(signed)); err != nil {
		return "", errs.Wrap(errs.KindTransaction, "broadcast", pkgerrors.Wrap(err, "malformed signed transaction"))
	}

	txid, err := p.client.SendRawTransaction(ctx, hex.EncodeToString(signed))
	p.metrics.ObserveBroadcast(chain.Bitcoin.String(), err)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpcCodeVerifyRejected {
			p.log.Warn().Str("txid", tx.TxHash().String()).Str("reason", rpcErr.Message).Msg("Node rejected transaction")
		}
		return "", p.providerErr("broadcast", err)
	}

	p.log.Info().Str("txid", txid).Msg("Transaction broadcast")

	return txid, nil
}

func (p *Provider) SendTransaction(ctx context.Context, req *txn.Request) (string, error) {
	return txn.SignAndBroadcast(ctx, p, p, req)
}

// GetStatus is Pending while the transaction is unknown or unconfirmed.
// Bitcoin has no mined-but-failed state.
func (p *Provider) GetStatus(ctx context.Context, hash string) (txn.Status, error) {
	if err := validateTxID(hash); err != nil {
		return txn.StatusPending, err
	}

	raw, err := p.client.GetRawTransaction(ctx, hash)
	if isNotFound(err) {
		return txn.StatusPending, nil
	}
	if err != nil {
		return txn.StatusPending, p.providerErr("get transaction", err)
	}

	if raw.Confirmations >= p.minConfirmations {
		return txn.StatusConfirmed, nil
	}
	return txn.StatusPending, nil
}

func (p *Provider) GetReceipt(ctx context.Context, hash string) (*txn.Receipt, error) {
	if err := validateTxID(hash); err != nil {
		return nil, err
	}

	raw, err := p.client.GetRawTransaction(ctx, hash)
	if isNotFound(err) {
		return nil, errs.WrapChain(errs.KindTransaction, "receipt", chain.Bitcoin, errs.ErrPending)
	}
	if err != nil {
		return nil, p.providerErr("get transaction", err)
	}

	return p.receipt(ctx, raw)
}

func (p *Provider) receipt(ctx context.Context, raw *RawTransaction) (*txn.Receipt, error) {
	if raw.Confirmations < p.minConfirmations || raw.BlockHash == "" {
		return nil, errs.WrapChain(errs.KindTransaction, "receipt", chain.Bitcoin, errs.ErrPending)
	}

	header, err := p.client.GetBlockHeader(ctx, raw.BlockHash)
	if err != nil {
		return nil, p.providerErr("block header", err)
	}

	out := &txn.Receipt{
		Hash:        raw.TxID,
		Status:      txn.StatusConfirmed,
		BlockNumber: uint64(header.Height),
		Timestamp:   uint64(header.Time),
		Fee:         "0",
		Logs:        []string{},
	}
	if raw.Fee != nil {
		out.Fee = decimalSats(*raw.Fee)
	}

	return out, nil
}

// GetTransaction reports the first output as the payment.
func (p *Provider) GetTransaction(ctx context.Context, hash string) (*txn.Transaction, error) {
	if err := validateTxID(hash); err != nil {
		return nil, err
	}

	raw, err := p.client.GetRawTransaction(ctx, hash)
	if isNotFound(err) {
		return nil, errs.WrapChain(errs.KindTransaction, "get transaction", chain.Bitcoin, errs.ErrNotFound)
	}
	if err != nil {
		return nil, p.providerErr("get transaction", err)
	}

	out := &txn.Transaction{
		Hash:   raw.TxID,
		Type:   txn.TypeTransfer,
		Chain:  chain.Bitcoin,
		Status: txn.StatusPending,
		Value:  "0",
	}
	if len(raw.Vout) > 0 {
		out.To = raw.Vout[0].ScriptPubKey.Address
		out.Value = decimalSats(raw.Vout[0].Value)
	}
	if len(raw.Vin) > 0 && raw.Vin[0].Prevout != nil {
		out.From = raw.Vin[0].Prevout.ScriptPubKey.Address
	}

	if raw.Confirmations < p.minConfirmations {
		return out, nil
	}

	receipt, err := p.receipt(ctx, raw)
	if err != nil {
		return nil, err
	}
	out.Attach(receipt)

	return out, nil
}

func (p *Provider) providerErr(op string, err error) error {
	return errs.WrapChain(errs.KindProvider, op, chain.Bitcoin, err)
}

func validateTxID(hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != 32 {
		return errs.Transaction("invalid transaction id %q", hash)
	}
	return nil
}
