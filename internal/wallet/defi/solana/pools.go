package solana

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
)

// OrcaSwapProgramID is Orca's token-swap program.
const OrcaSwapProgramID = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"

const bpsDenominator = 10_000

// Pool is a two-sided constant-product pool. Vaults hold the reserves;
// Authority, PoolMint and FeeAccount are only needed to execute swaps.
type Pool struct {
	Protocol   defi.Protocol
	ID         string
	MintA      string
	MintB      string
	VaultA     string
	VaultB     string
	Authority  string
	PoolMint   string
	FeeAccount string
	// FeeBps is the trading fee in basis points.
	FeeBps uint64
}

// DefaultPools are the SOL/USDC pools quotes are read from.
func DefaultPools() []Pool {
	return []Pool{
		{
			Protocol:   defi.ProtocolOrca,
			ID:         "EGZ7tiLeH62TPV1gL8WwbXGzEPa9zmcpVnnkPKKnrE2U",
			MintA:      defi.NativeSolanaMint,
			MintB:      USDCMint,
			VaultA:     "ANP74VNsHwSrq9uUSjiSNyNWvf6ZPrKTmE4gHoNd13Lg",
			VaultB:     "75HgnSvXbWKZBpZHveX68ZzAhDqMzNDS29X6BGLtxMo1",
			Authority:  "8JUjWjAyXTMB4ZXcV7nk3p6Gg1fWAAoSck7xekuyADKL",
			PoolMint:   "APDFRM3HMr8CAGXwKHiu2f5ePSpaiEJhaURwhsRrUUt9",
			FeeAccount: "3XMrhbv989VxAMi3DErLV9eJht1pHppW5LbKxe9fkEFR",
			FeeBps:     30,
		},
		{
			Protocol: defi.ProtocolRaydium,
			ID:       "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
			MintA:    defi.NativeSolanaMint,
			MintB:    USDCMint,
			VaultA:   "DQyrAcCrDXQ7NeoqGgDCZwBvWDcYmFCjSb9JtteuvPpz",
			VaultB:   "HLmqeL62xR1QoZ1HKKbXRrdN1p3phKpxRMb2VVopvBBz",
			FeeBps:   25,
		},
	}
}

// route is a pool oriented for one swap direction.
type route struct {
	pool     Pool
	mintIn   solana.PublicKey
	mintOut  solana.PublicKey
	vaultIn  solana.PublicKey
	vaultOut solana.PublicKey
}

func mintOf(t defi.Token) string {
	if t.IsNative() {
		return defi.NativeSolanaMint
	}
	return t.Address
}

func (p *Provider) route(protocol defi.Protocol, from defi.Token, to defi.Token) (*route, error) {
	in, out := mintOf(from), mintOf(to)

	for _, pool := range p.pools {
		if pool.Protocol != protocol {
			continue
		}

		var r route
		switch {
		case pool.MintA == in && pool.MintB == out:
			r = route{pool: pool}
			r.mintIn, r.mintOut = parsed(pool.MintA), parsed(pool.MintB)
			r.vaultIn, r.vaultOut = parsed(pool.VaultA), parsed(pool.VaultB)
		case pool.MintB == in && pool.MintA == out:
			r = route{pool: pool}
			r.mintIn, r.mintOut = parsed(pool.MintB), parsed(pool.MintA)
			r.vaultIn, r.vaultOut = parsed(pool.VaultB), parsed(pool.VaultA)
		default:
			continue
		}
		if r.mintIn.IsZero() || r.mintOut.IsZero() || r.vaultIn.IsZero() || r.vaultOut.IsZero() {
			return nil, errs.DeFi("%s pool %s has an invalid address", protocol, pool.ID)
		}
		return &r, nil
	}

	return nil, errs.Wrap(errs.KindDeFi, "pool", errs.ErrNotFound)
}

// parsed decodes a configured address, the zero key when it is invalid.
func parsed(addr string) solana.PublicKey {
	key, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}
	}
	return key
}

// reserves reads both vault balances of r.
func (p *Provider) reserves(ctx context.Context, r *route) (*big.Int, *big.Int, error) {
	var out [2]*big.Int
	for i, vault := range []solana.PublicKey{r.vaultIn, r.vaultOut} {
		account, err := p.tx.TokenAccount(ctx, vault)
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindDeFi, "pool reserves", err)
		}
		if account == nil {
			return nil, nil, errs.DeFi("%s pool vault %s does not exist", r.pool.Protocol, vault)
		}
		out[i] = new(big.Int).SetUint64(account.Amount)
	}
	return out[0], out[1], nil
}

// ConstantProductOut is the output of swapping amountIn into a pool holding
// reserveIn and reserveOut, after a fee of feeBps on the input:
//
//	in' = in * (10000 - fee) / 10000
//	out = reserveOut * in' / (reserveIn + in')
func ConstantProductOut(amountIn *big.Int, reserveIn *big.Int, reserveOut *big.Int, feeBps uint64) (*big.Int, error) {
	if feeBps >= bpsDenominator {
		return nil, errs.DeFi("pool fee %d bps is out of range", feeBps)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, errs.DeFi("pool has no liquidity")
	}

	in := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenominator-feeBps)))
	in.Quo(in, big.NewInt(bpsDenominator))

	num := new(big.Int).Mul(reserveOut, in)
	den := new(big.Int).Add(reserveIn, in)

	return num.Quo(num, den), nil
}

func (p *Provider) poolQuote(ctx context.Context, r *route, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.reserves(ctx, r)
	if err != nil {
		return nil, err
	}

	out, err := ConstantProductOut(amountIn, reserveIn, reserveOut, r.pool.FeeBps)
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("protocol", string(r.pool.Protocol)).
		Str("pool", r.pool.ID).
		Str("reserve_in", reserveIn.String()).
		Str("reserve_out", reserveOut.String()).
		Str("amount_out", out.String()).
		Msg("Quoted from pool reserves")

	return out, nil
}
