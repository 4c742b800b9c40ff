package bitcoin

import (
	"bytes"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

const (
	// DefaultFee is charged when a request carries no explicit fee.
	DefaultFee int64 = 10_000

	// DustLimit is the smallest standard P2PKH output. Change below it is
	// left to the miner.
	DustLimit int64 = 546

	// sequenceRBF opts every input into replace-by-fee.
	sequenceRBF = 0xfffffffd

	satoshiPerBitcoin = 100_000_000
)

// Plan is the value flow of a built transaction.
type Plan struct {
	Inputs []txn.UTXO
	Pay    int64
	Change int64
	Fee    int64
}

// unsigned holds a built but unsigned transaction plus what signing needs.
type unsigned struct {
	tx       *wire.MsgTx
	plan     Plan
	from     btcutil.Address
	fromPkSc []byte
}

// Build lays out inputs, the payment and change for req without signing.
func Build(req *txn.Request, params *chaincfg.Params) (*wire.MsgTx, *Plan, error) {
	u, err := build(req, params)
	if err != nil {
		return nil, nil, err
	}
	return u.tx, &u.plan, nil
}

func build(req *txn.Request, params *chaincfg.Params) (*unsigned, error) {
	if err := txn.CheckChain(req, chain.Bitcoin); err != nil {
		return nil, err
	}

	from, err := decodeAddress(req.From, params, "from")
	if err != nil {
		return nil, err
	}
	to, err := decodeAddress(req.To, params, "to")
	if err != nil {
		return nil, err
	}

	pay, err := satoshis("value", req.Value)
	if err != nil {
		return nil, err
	}
	if pay < DustLimit {
		return nil, errs.Transaction("value %d is below the dust limit of %d satoshis", pay, DustLimit)
	}

	fee := DefaultFee
	if req.Fee != "" {
		if fee, err = ParseFee(req.Fee); err != nil {
			return nil, err
		}
	}

	if len(req.Inputs) == 0 {
		return nil, errs.Transaction("at least one input is required")
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	var total int64
	for i, in := range req.Inputs {
		if in.Amount <= 0 {
			return nil, errs.Transaction("input %d has non-positive amount %d", i, in.Amount)
		}
		if total > math.MaxInt64-in.Amount {
			return nil, errs.Transaction("input amounts overflow")
		}
		total += in.Amount

		prevHash, err := chainhash.NewHashFromStr(in.TxID)
		if err != nil {
			return nil, errs.Wrap(errs.KindTransaction, "build", errors.Wrapf(err, "invalid txid for input %d", i))
		}

		txIn := wire.NewTxIn(wire.NewOutPoint(prevHash, in.Vout), nil, nil)
		txIn.Sequence = sequenceRBF
		tx.AddTxIn(txIn)
	}

	if pay > math.MaxInt64-fee || total < pay+fee {
		return nil, errs.TransactionErr(errs.ErrInsufficientFunds)
	}

	toScript, err := txscript.PayToAddrScript(to)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "build", errors.Wrap(err, "failed to create output script"))
	}
	tx.AddTxOut(wire.NewTxOut(pay, toScript))

	fromScript, err := txscript.PayToAddrScript(from)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "build", errors.Wrap(err, "failed to create change script"))
	}

	change := total - pay - fee
	// A change output below the dust limit would make the transaction
	// non-standard, so the leftover is paid to the miner instead.
	if change > 0 && change < DustLimit {
		fee += change
		change = 0
	}
	if change > 0 {
		tx.AddTxOut(wire.NewTxOut(change, fromScript))
	}

	return &unsigned{
		tx: tx,
		plan: Plan{
			Inputs: append([]txn.UTXO(nil), req.Inputs...),
			Pay:    pay,
			Change: change,
			Fee:    fee,
		},
		from:     from,
		fromPkSc: fromScript,
	}, nil
}

func decodeAddress(addr string, params *chaincfg.Params, field string) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, errs.Transaction("invalid %s address %q", field, addr)
	}
	if !decoded.IsForNet(params) {
		return nil, errs.Transaction("%s address %q is not for %s", field, addr, params.Name)
	}

	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash, *btcutil.AddressWitnessPubKeyHash:
		return decoded, nil
	default:
		if field == "from" {
			return nil, errs.Transaction("from address %q must be P2PKH or P2WPKH", addr)
		}
		return decoded, nil
	}
}

func satoshis(field string, value string) (int64, error) {
	n, err := txn.ParseAmount(field, value)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, errs.Transaction("%s %s exceeds the satoshi range", field, value)
	}
	return n.Int64(), nil
}

// ParseFee reads a fee in satoshis, or in BTC when it carries a decimal point.
func ParseFee(value string) (int64, error) {
	if !strings.Contains(value, ".") {
		return satoshis("fee", value)
	}

	btc, err := decimal.NewFromString(value)
	if err != nil {
		return 0, errs.Transaction("invalid fee %q", value)
	}

	sats := btc.Shift(8)
	if sats.IsNegative() || !sats.Equal(sats.Truncate(0)) {
		return 0, errs.Transaction("invalid fee %q: must be a non-negative whole number of satoshis", value)
	}
	if !sats.BigInt().IsInt64() {
		return 0, errs.Transaction("fee %s exceeds the satoshi range", value)
	}

	return sats.IntPart(), nil
}

// decimalSats renders a node reported BTC amount in satoshis.
func decimalSats(btc decimal.Decimal) string {
	return btc.Abs().Mul(decimal.NewFromInt(satoshiPerBitcoin)).Round(0).String()
}

func serialize(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(tx.SerializeSize())
	if err := tx.Serialize(&buf); err != nil {
		return nil, errs.Wrap(errs.KindTransaction, "serialize", errors.Wrap(err, "failed to serialize transaction"))
	}
	return buf.Bytes(), nil
}
