// Package txn holds the chain independent transaction model and the
// capability interfaces every chain provider implements.
package txn

import (
	"github/chapool/wallet-core/internal/wallet/chain"
)

// Status is Pending until the transaction reaches Confirmed or Failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether s can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Type classifies what a transaction does.
type Type string

const (
	TypeTransfer           Type = "transfer"
	TypeContractCall       Type = "contract_call"
	TypeTokenTransfer      Type = "token_transfer"
	TypeSwap               Type = "swap"
	TypeLiquidityProvision Type = "liquidity_provision"
	TypeStaking            Type = "staking"
	TypeOther              Type = "other"
)

// UTXO is an explicit Bitcoin input.
type UTXO struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount int64  `json:"amount"` // satoshis
}

// Request is caller intent. Amounts are base-10 integer strings in the chain's
// smallest unit (wei, satoshi, lamport).
type Request struct {
	Chain chain.Tag
	Type  Type
	From  string
	To    string
	Value string

	// EVM. GasPrice selects a legacy transaction; MaxFeePerGas selects EIP-1559.
	// Both empty means the provider picks EIP-1559 caps from the node.
	GasPrice             string
	MaxFeePerGas         string
	MaxPriorityFeePerGas string
	GasLimit             uint64 // 0 = estimate
	Nonce                *uint64
	Data                 []byte

	// Bitcoin.
	Inputs []UTXO
	Fee    string // satoshis; empty = provider default

	// Solana. Token is the SPL mint moved by a TypeTokenTransfer; Value is
	// then in the mint's smallest unit. A TypeStaking request delegates Value
	// lamports to the vote account in To.
	Token string

	// DerivationPath selects the signing key from the wallet.
	DerivationPath string
}

// Transaction is a submitted request identified by its hash.
type Transaction struct {
	Hash        string    `json:"hash"`
	Type        Type      `json:"type"`
	Chain       chain.Tag `json:"chain"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       string    `json:"value"`
	GasPrice    string    `json:"gas_price,omitempty"`
	GasLimit    uint64    `json:"gas_limit,omitempty"`
	Nonce       *uint64   `json:"nonce,omitempty"`
	Data        []byte    `json:"data,omitempty"`
	Status      Status    `json:"status"`
	BlockNumber *uint64   `json:"block_number,omitempty"`
	Timestamp   *uint64   `json:"timestamp,omitempty"`
	Fee         string    `json:"fee,omitempty"`
	Receipt     *Receipt  `json:"receipt,omitempty"`
}

// Receipt is available once a transaction is terminal.
type Receipt struct {
	Hash        string   `json:"hash"`
	Status      Status   `json:"status"`
	BlockNumber uint64   `json:"block_number"`
	Timestamp   uint64   `json:"timestamp"`
	Fee         string   `json:"fee"`
	Logs        []string `json:"logs"`
}

// Attach copies the receipt's settlement data onto t.
func (t *Transaction) Attach(r *Receipt) {
	if r == nil {
		return
	}
	t.Receipt = r
	t.Status = r.Status
	block := r.BlockNumber
	ts := r.Timestamp
	t.BlockNumber = &block
	t.Timestamp = &ts
	t.Fee = r.Fee
}
