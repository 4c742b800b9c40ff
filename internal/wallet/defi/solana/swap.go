package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	pkgerrors "github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
)

// orcaSwapTag selects the token-swap program's Swap instruction.
const orcaSwapTag = 1

// ExecuteSwap swaps through an Orca pool. A SOL input is wrapped into the
// owner's wrapped-SOL account first; a SOL output arrives as wrapped SOL.
// Missing token accounts are created in the same transaction.
func (p *Provider) ExecuteSwap(ctx context.Context, req *defi.SwapRequest) (result *defi.SwapResult, err error) {
	if err := p.validateSwap(req); err != nil {
		return nil, err
	}

	protocol := req.Protocol
	switch protocol {
	case "", defi.ProtocolOrca:
		protocol = defi.ProtocolOrca
	case defi.ProtocolRaydium:
		return nil, p.refuse("swap", protocol, "swap", "Raydium swaps need the AMM's order book accounts and are not available")
	default:
		if !defi.Supports(p, protocol) {
			return nil, errs.DeFi("%s is not available on Solana", protocol)
		}
		return nil, errs.DeFi("%s is not a swap protocol", protocol)
	}
	defer func() { p.metrics.ObserveDeFi(string(protocol), "swap", err) }()

	owner, err := parseKey(req.Owner, "owner")
	if err != nil {
		return nil, err
	}
	if req.DerivationPath == "" {
		return nil, errs.DeFi("derivation path is required to swap")
	}
	amountIn, _ := new(big.Int).SetString(req.From.Amount, 10)
	if !amountIn.IsUint64() {
		return nil, errs.DeFi("%s amount %s is out of range", req.From.Token.Symbol, req.From.Amount)
	}

	r, err := p.route(protocol, req.From.Token, req.To)
	if err != nil {
		return nil, err
	}
	quote, err := p.poolQuote(ctx, r, amountIn)
	if err != nil {
		return nil, err
	}
	minOut, err := defi.MinAmountOut(quote.String(), req.Slippage)
	if err != nil {
		return nil, err
	}
	if minOut.Sign() == 0 {
		return nil, errs.DeFi("%s %s is too small to swap", req.From.Amount, req.From.Token.Symbol)
	}

	ixs, err := p.swapInstructions(ctx, r, owner, req.From.Token.IsNative(), amountIn.Uint64(), minOut.Uint64())
	if err != nil {
		return nil, err
	}

	p.log.Info().
		Str("protocol", string(protocol)).
		Str("pool", r.pool.ID).
		Str("from", req.From.Token.Symbol).
		Str("to", req.To.Symbol).
		Str("amount_in", amountIn.String()).
		Str("min_out", minOut.String()).
		Msg("Executing swap")

	sig, err := p.tx.SendInstructions(ctx, owner, req.DerivationPath, ixs)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap", err)
	}
	receipt, err := p.confirm(ctx, sig)
	if err != nil {
		return nil, err
	}

	return &defi.SwapResult{
		From:            req.From,
		To:              defi.TokenAmount{Token: req.To, Amount: quote.String()},
		TransactionHash: sig,
		Protocol:        protocol,
		Fee:             receipt.Fee,
	}, nil
}

func (p *Provider) swapInstructions(ctx context.Context, r *route, owner solana.PublicKey, wrapInput bool, amountIn uint64, minOut uint64) ([]solana.Instruction, error) {
	pool := map[string]solana.PublicKey{
		"pool":        parsed(r.pool.ID),
		"authority":   parsed(r.pool.Authority),
		"pool mint":   parsed(r.pool.PoolMint),
		"fee account": parsed(r.pool.FeeAccount),
	}
	for name, key := range pool {
		if key.IsZero() {
			return nil, errs.DeFi("%s pool %s has no valid %s", r.pool.Protocol, r.pool.ID, name)
		}
	}

	var ixs []solana.Instruction

	source, create, err := p.tx.AssociatedTokenAccount(ctx, owner, owner, r.mintIn)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap", err)
	}
	switch {
	case wrapInput:
		if create != nil {
			ixs = append(ixs, create)
		}
		ixs = append(ixs,
			system.NewTransferInstruction(amountIn, owner, source).Build(),
			token.NewSyncNativeInstruction(source).Build(),
		)
	case create != nil:
		return nil, errs.DeFi("owner has no token account for %s", r.mintIn)
	}

	destination, create, err := p.tx.AssociatedTokenAccount(ctx, owner, owner, r.mintOut)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "swap", err)
	}
	if create != nil {
		ixs = append(ixs, create)
	}

	data := new(bytes.Buffer)
	enc := bin.NewBinEncoder(data)
	for _, write := range []func() error{
		func() error { return enc.WriteUint8(orcaSwapTag) },
		func() error { return enc.WriteUint64(amountIn, binary.LittleEndian) },
		func() error { return enc.WriteUint64(minOut, binary.LittleEndian) },
	} {
		if err := write(); err != nil {
			return nil, errs.Wrap(errs.KindDeFi, "swap", pkgerrors.Wrap(err, "failed to encode swap instruction"))
		}
	}

	swap := solana.NewInstruction(solana.MustPublicKeyFromBase58(OrcaSwapProgramID), solana.AccountMetaSlice{
		solana.Meta(pool["pool"]),
		solana.Meta(pool["authority"]),
		solana.Meta(owner).SIGNER(),
		solana.Meta(source).WRITE(),
		solana.Meta(r.vaultIn).WRITE(),
		solana.Meta(r.vaultOut).WRITE(),
		solana.Meta(destination).WRITE(),
		solana.Meta(pool["pool mint"]).WRITE(),
		solana.Meta(pool["fee account"]).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, data.Bytes())

	return append(ixs, swap), nil
}

// confirm waits for sig to settle and returns its receipt.
func (p *Provider) confirm(ctx context.Context, sig string) (*txn.Receipt, error) {
	status, err := txn.WaitForTerminal(ctx, p.tx, sig, p.pollInterval)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "confirm", err)
	}
	if status != txn.StatusConfirmed {
		return nil, &errs.Error{
			Kind:  errs.KindDeFi,
			Op:    "confirm",
			Chain: chain.Solana.String(),
			Msg:   "transaction " + sig + " failed",
			Err:   defi.ErrStepFailed,
		}
	}

	receipt, err := p.tx.GetReceipt(ctx, sig)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "confirm", err)
	}
	return receipt, nil
}
