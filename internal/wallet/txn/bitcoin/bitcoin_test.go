package bitcoin_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/keys"
	"github/chapool/wallet-core/internal/wallet/seed"
	"github/chapool/wallet-core/internal/wallet/txn"
	"github/chapool/wallet-core/internal/wallet/txn/bitcoin"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	legacyPath   = "m/44'/0'/0'/0/0"
	legacyFrom   = "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA"
	segwitPath   = "m/84'/0'/0'/0/0"
	segwitFrom   = "bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu"
	testTo       = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
)

var (
	txidA = strings.Repeat("ab", 32)
	txidB = strings.Repeat("cd", 32)
)

type seedKeyRing struct {
	seed []byte
}

func (k seedKeyRing) WithKeyPair(tag chain.Tag, path string, fn func(kp *keys.KeyPair) error) error {
	kp, err := keys.DeriveKeyPair(k.seed, tag, path)
	if err != nil {
		return err
	}
	defer kp.Zero()

	return fn(kp)
}

func newKeyRing(t *testing.T) keys.KeyRing {
	t.Helper()

	s, err := seed.MnemonicToSeed(testMnemonic, "")
	require.NoError(t, err)

	return seedKeyRing{seed: s}
}

func TestBuildWithChange(t *testing.T) {
	tx, plan, err := bitcoin.Build(&txn.Request{
		Chain:  chain.Bitcoin,
		From:   legacyFrom,
		To:     testTo,
		Value:  "50000000",
		Fee:    "10000",
		Inputs: []txn.UTXO{{TxID: txidA, Vout: 0, Amount: 100_000_000}},
	}, &chaincfg.MainNetParams)
	require.NoError(t, err)

	require.Len(t, tx.TxOut, 2)
	assert.EqualValues(t, 50_000_000, tx.TxOut[0].Value)
	assert.EqualValues(t, 49_990_000, tx.TxOut[1].Value)
	assert.EqualValues(t, 49_990_000, plan.Change)
	assert.EqualValues(t, 10_000, plan.Fee)

	require.Len(t, tx.TxIn, 1)
	assert.Equal(t, txidA, tx.TxIn[0].PreviousOutPoint.Hash.String())
}

func TestBuildDefaultFee(t *testing.T) {
	_, plan, err := bitcoin.Build(&txn.Request{
		Chain:  chain.Bitcoin,
		From:   legacyFrom,
		To:     testTo,
		Value:  "50000000",
		Inputs: []txn.UTXO{{TxID: txidA, Amount: 60_000_000}},
	}, &chaincfg.MainNetParams)
	require.NoError(t, err)
	assert.Equal(t, bitcoin.DefaultFee, plan.Fee)
	assert.EqualValues(t, 9_990_000, plan.Change)
}

func TestBuildFoldsDustChange(t *testing.T) {
	tx, plan, err := bitcoin.Build(&txn.Request{
		Chain:  chain.Bitcoin,
		From:   legacyFrom,
		To:     testTo,
		Value:  "50000000",
		Fee:    "10000",
		Inputs: []txn.UTXO{{TxID: txidA, Amount: 50_010_100}},
	}, &chaincfg.MainNetParams)
	require.NoError(t, err)

	assert.Len(t, tx.TxOut, 1)
	assert.Zero(t, plan.Change)
	assert.EqualValues(t, 10_100, plan.Fee)
}

func TestBuildKeepsChangeAtDustLimit(t *testing.T) {
	tx, plan, err := bitcoin.Build(&txn.Request{
		Chain:  chain.Bitcoin,
		From:   legacyFrom,
		To:     testTo,
		Value:  "50000000",
		Fee:    "10000",
		Inputs: []txn.UTXO{{TxID: txidA, Amount: 50_010_000 + bitcoin.DustLimit}},
	}, &chaincfg.MainNetParams)
	require.NoError(t, err)

	require.Len(t, tx.TxOut, 2)
	assert.Equal(t, bitcoin.DustLimit, plan.Change)
	assert.Equal(t, bitcoin.DustLimit, tx.TxOut[1].Value)
	assert.EqualValues(t, 10_000, plan.Fee)
}

func TestBuildInsufficientFunds(t *testing.T) {
	_, _, err := bitcoin.Build(&txn.Request{
		Chain: chain.Bitcoin,
		From:  legacyFrom,
		To:    testTo,
		Value: "50000000",
		Fee:   "10000",
		Inputs: []txn.UTXO{
			{TxID: txidA, Amount: 30_000_000},
			{TxID: txidB, Vout: 1, Amount: 20_000_000},
		},
	}, &chaincfg.MainNetParams)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInsufficientFunds))
	assert.Equal(t, errs.KindTransaction, errs.KindOf(err))
	assert.Contains(t, err.Error(), "Insufficient funds")
}

func TestBuildRejects(t *testing.T) {
	base := func() *txn.Request {
		return &txn.Request{
			Chain:  chain.Bitcoin,
			From:   legacyFrom,
			To:     testTo,
			Value:  "50000000",
			Inputs: []txn.UTXO{{TxID: txidA, Amount: 100_000_000}},
		}
	}

	tests := map[string]func(r *txn.Request){
		"wrong chain":   func(r *txn.Request) { r.Chain = chain.Ethereum },
		"bad to":        func(r *txn.Request) { r.To = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb" },
		"testnet to":    func(r *txn.Request) { r.To = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn" },
		"dust value":    func(r *txn.Request) { r.Value = "100" },
		"no inputs":     func(r *txn.Request) { r.Inputs = nil },
		"bad txid":      func(r *txn.Request) { r.Inputs[0].TxID = "zz" },
		"zero input":    func(r *txn.Request) { r.Inputs[0].Amount = 0 },
		"fraction sats": func(r *txn.Request) { r.Fee = "0.000000001" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := base()
			mutate(req)

			_, _, err := bitcoin.Build(req, &chaincfg.MainNetParams)
			require.Error(t, err)
			assert.Equal(t, errs.KindTransaction, errs.KindOf(err))
		})
	}
}

func TestParseFee(t *testing.T) {
	fee, err := bitcoin.ParseFee("12345")
	require.NoError(t, err)
	assert.EqualValues(t, 12345, fee)

	fee, err = bitcoin.ParseFee("0.0001")
	require.NoError(t, err)
	assert.EqualValues(t, 10_000, fee)

	_, err = bitcoin.ParseFee("-0.1")
	assert.Error(t, err)
}

// verify runs every input script through the btcd script engine.
func verify(t *testing.T, raw []byte, from string, inputs []txn.UTXO) {
	t.Helper()

	tx := wire.NewMsgTx(wire.TxVersion)
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))

	addr, err := btcutil.DecodeAddress(from, &chaincfg.MainNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, wire.NewTxOut(inputs[i].Amount, pkScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i := range tx.TxIn {
		vm, err := txscript.NewEngine(pkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, inputs[i].Amount, fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestSignP2PKH(t *testing.T) {
	p := bitcoin.NewProvider(nil, newKeyRing(t), &chaincfg.MainNetParams, nil)
	inputs := []txn.UTXO{
		{TxID: txidA, Vout: 0, Amount: 70_000_000},
		{TxID: txidB, Vout: 3, Amount: 30_000_000},
	}

	raw, err := p.Sign(context.Background(), &txn.Request{
		Chain:          chain.Bitcoin,
		From:           legacyFrom,
		To:             testTo,
		Value:          "50000000",
		Inputs:         inputs,
		DerivationPath: legacyPath,
	})
	require.NoError(t, err)

	verify(t, raw, legacyFrom, inputs)
}

func TestSignP2WPKH(t *testing.T) {
	p := bitcoin.NewProvider(nil, newKeyRing(t), &chaincfg.MainNetParams, nil)
	inputs := []txn.UTXO{{TxID: txidA, Vout: 1, Amount: 100_000_000}}

	raw, err := p.Sign(context.Background(), &txn.Request{
		Chain:          chain.Bitcoin,
		From:           segwitFrom,
		To:             testTo,
		Value:          "50000000",
		Inputs:         inputs,
		DerivationPath: segwitPath,
	})
	require.NoError(t, err)

	verify(t, raw, segwitFrom, inputs)
}

func TestSignWrongKey(t *testing.T) {
	p := bitcoin.NewProvider(nil, newKeyRing(t), &chaincfg.MainNetParams, nil)

	_, err := p.Sign(context.Background(), &txn.Request{
		Chain:          chain.Bitcoin,
		From:           legacyFrom,
		To:             testTo,
		Value:          "50000000",
		Inputs:         []txn.UTXO{{TxID: txidA, Amount: 100_000_000}},
		DerivationPath: "m/44'/0'/0'/0/1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

// node is a minimal Bitcoin Core JSON-RPC stand-in.
type node struct {
	mu        sync.Mutex
	confirmed map[string]bool
	sent      []string
	reject    bool
	auth      string
}

func (n *node) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.auth = r.Header.Get("Authorization")

	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
		Params []any  `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	reply := func(status int, result any, rpcErr map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "result": result, "error": rpcErr})
	}

	switch req.Method {
	case "sendrawtransaction":
		if n.reject {
			reply(http.StatusInternalServerError, nil, map[string]any{"code": -26, "message": "min relay fee not met"})
			return
		}
		raw, _ := hex.DecodeString(req.Params[0].(string))
		tx := wire.NewMsgTx(wire.TxVersion)
		_ = tx.Deserialize(bytes.NewReader(raw))
		txid := tx.TxHash().String()
		n.sent = append(n.sent, txid)
		reply(http.StatusOK, txid, nil)

	case "getrawtransaction":
		txid := req.Params[0].(string)
		known := false
		for _, s := range n.sent {
			known = known || s == txid
		}
		if !known {
			reply(http.StatusNotFound, nil, map[string]any{"code": -5, "message": "No such mempool or blockchain transaction"})
			return
		}
		result := map[string]any{
			"txid": txid,
			"vout": []any{map[string]any{"value": 0.5, "n": 0, "scriptPubKey": map[string]any{"address": testTo}}},
			"vin":  []any{map[string]any{"txid": txidA, "vout": 0, "prevout": map[string]any{"value": 1.0, "scriptPubKey": map[string]any{"address": legacyFrom}}}},
		}
		if n.confirmed[txid] {
			result["confirmations"] = 3
			result["blockhash"] = strings.Repeat("00", 31) + "01"
			result["fee"] = 0.0001
		}
		reply(http.StatusOK, result, nil)

	case "getblockheader":
		reply(http.StatusOK, map[string]any{"hash": req.Params[0], "height": 840000, "time": 1713571767}, nil)

	default:
		reply(http.StatusNotFound, nil, map[string]any{"code": -32601, "message": "Method not found"})
	}
}

func TestProviderLifecycle(t *testing.T) {
	n := &node{confirmed: map[string]bool{}}
	srv := httptest.NewServer(n)
	defer srv.Close()

	client, err := bitcoin.NewRPCClient(chain.ProviderConfig{Type: chain.ProviderHTTP, URL: srv.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)

	p := bitcoin.NewProvider(client, newKeyRing(t), &chaincfg.MainNetParams, nil)
	ctx := context.Background()

	txid, err := p.SendTransaction(ctx, &txn.Request{
		Chain:          chain.Bitcoin,
		From:           legacyFrom,
		To:             testTo,
		Value:          "50000000",
		Inputs:         []txn.UTXO{{TxID: txidA, Amount: 100_000_000}},
		DerivationPath: legacyPath,
	})
	require.NoError(t, err)
	assert.Len(t, txid, 64)
	assert.Equal(t, "Bearer secret", n.auth)

	status, err := p.GetStatus(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusPending, status)

	_, err = p.GetReceipt(ctx, txid)
	assert.True(t, errors.Is(err, errs.ErrPending))

	n.mu.Lock()
	n.confirmed[txid] = true
	n.mu.Unlock()

	for i := 0; i < 3; i++ {
		status, err := p.GetStatus(ctx, txid)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusConfirmed, status)
	}

	got, err := p.GetTransaction(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, got.Status)
	assert.Equal(t, "50000000", got.Value)
	assert.Equal(t, legacyFrom, got.From)
	assert.Equal(t, "10000", got.Fee)
	require.NotNil(t, got.BlockNumber)
	assert.EqualValues(t, 840000, *got.BlockNumber)

	unknown := strings.Repeat("ef", 32)
	status, err = p.GetStatus(ctx, unknown)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusPending, status)

	_, err = p.GetTransaction(ctx, unknown)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestProviderBroadcastRejected(t *testing.T) {
	n := &node{confirmed: map[string]bool{}, reject: true}
	srv := httptest.NewServer(n)
	defer srv.Close()

	client, err := bitcoin.NewRPCClient(chain.ProviderConfig{URL: srv.URL}, nil)
	require.NoError(t, err)
	p := bitcoin.NewProvider(client, newKeyRing(t), &chaincfg.MainNetParams, nil)

	_, err = p.SendTransaction(context.Background(), &txn.Request{
		Chain:          chain.Bitcoin,
		From:           legacyFrom,
		To:             testTo,
		Value:          "50000000",
		Inputs:         []txn.UTXO{{TxID: txidA, Amount: 100_000_000}},
		DerivationPath: legacyPath,
	})
	require.Error(t, err)
	assert.Equal(t, errs.KindProvider, errs.KindOf(err))
	assert.Contains(t, err.Error(), "min relay fee not met")
}

func TestRPCClientFailover(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	n := &node{confirmed: map[string]bool{}}
	srv := httptest.NewServer(n)
	defer srv.Close()

	client, err := bitcoin.NewRPCClient(chain.ProviderConfig{URL: deadURL + "," + srv.URL}, nil)
	require.NoError(t, err)

	hdr, err := client.GetBlockHeader(context.Background(), "00ff")
	require.NoError(t, err)
	assert.EqualValues(t, 840000, hdr.Height)
}
