package ethereum

import (
	"context"
	"math/big"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/defi"
	"github/chapool/wallet-core/internal/wallet/errs"
	"github/chapool/wallet-core/internal/wallet/txn"
	"github/chapool/wallet-core/internal/wallet/txn/evm"
)

// call packs a read-only contract call and unpacks its outputs. An empty
// answer means the target has no code and is returned as nil outputs.
func call(ctx context.Context, client evm.Client, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	out, err := client.CallContract(ctx, goethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, method, err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}

	return values, nil
}

func firstUint(values []any) *big.Int {
	if len(values) == 0 {
		return new(big.Int)
	}
	n, ok := values[0].(*big.Int)
	if !ok || n == nil {
		return new(big.Int)
	}
	return n
}

func parseAddress(addr string, field string) (common.Address, error) {
	if !address.ValidateEthereum(addr) {
		return common.Address{}, errs.DeFi("invalid %s address %q", field, addr)
	}
	return common.HexToAddress(addr), nil
}

// ERC20 reads token state and builds approve transactions.
type ERC20 struct {
	client evm.Client
}

var _ defi.Allowances = (*ERC20)(nil)

func NewERC20(client evm.Client) *ERC20 {
	return &ERC20{client: client}
}

func (e *ERC20) BalanceOf(ctx context.Context, token string, owner string) (*big.Int, error) {
	tokenAddr, err := parseAddress(token, "token")
	if err != nil {
		return nil, err
	}
	ownerAddr, err := parseAddress(owner, "owner")
	if err != nil {
		return nil, err
	}

	values, err := call(ctx, e.client, tokenAddr, erc20Contract, "balanceOf", ownerAddr)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "token balance", err)
	}

	return firstUint(values), nil
}

func (e *ERC20) Allowance(ctx context.Context, token string, owner string, spender string) (*big.Int, error) {
	tokenAddr, err := parseAddress(token, "token")
	if err != nil {
		return nil, err
	}
	ownerAddr, err := parseAddress(owner, "owner")
	if err != nil {
		return nil, err
	}
	spenderAddr, err := parseAddress(spender, "spender")
	if err != nil {
		return nil, err
	}

	values, err := call(ctx, e.client, tokenAddr, erc20Contract, "allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "allowance", err)
	}

	return firstUint(values), nil
}

func (e *ERC20) ApproveRequest(token string, owner string, spender string, amount *big.Int, derivationPath string) (*txn.Request, error) {
	spenderAddr, err := parseAddress(spender, "spender")
	if err != nil {
		return nil, err
	}

	data, err := erc20Contract.Pack("approve", spenderAddr, amount)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "approve", errors.Wrap(err, "failed to pack approve"))
	}

	return &txn.Request{
		Chain:          chain.Ethereum,
		Type:           txn.TypeContractCall,
		From:           owner,
		To:             token,
		Value:          "0",
		Data:           data,
		DerivationPath: derivationPath,
	}, nil
}
