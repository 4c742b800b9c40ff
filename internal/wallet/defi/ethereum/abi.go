package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github/chapool/wallet-core/internal/wallet/defi"
)

// Mainnet contract addresses.
const (
	UniswapV2Router     = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	SushiSwapRouter     = "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"
	AaveV2LendingPool   = "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9"
	AaveV2DataProvider  = "0x057835Ad21a177dbdd3090bB1CAE03EaCF78Fc6d"
	LidoStETH           = "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84"
	LidoWithdrawalQueue = "0x889edC2eDab5f40e902b864aD4d7AdE8E412F9B1"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

const routerABI = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

const lendingPoolABI = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"interestRateMode","type":"uint256"},{"name":"referralCode","type":"uint16"},{"name":"onBehalfOf","type":"address"}],"name":"borrow","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"rateMode","type":"uint256"},{"name":"onBehalfOf","type":"address"}],"name":"repay","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"name":"totalCollateralETH","type":"uint256"},{"name":"totalDebtETH","type":"uint256"},{"name":"availableBorrowsETH","type":"uint256"},{"name":"currentLiquidationThreshold","type":"uint256"},{"name":"ltv","type":"uint256"},{"name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const dataProviderABI = `[
	{"inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],"name":"getUserReserveData","outputs":[{"name":"currentATokenBalance","type":"uint256"},{"name":"currentStableDebt","type":"uint256"},{"name":"currentVariableDebt","type":"uint256"},{"name":"principalStableDebt","type":"uint256"},{"name":"scaledVariableDebt","type":"uint256"},{"name":"stableBorrowRate","type":"uint256"},{"name":"liquidityRate","type":"uint256"},{"name":"stableRateLastUpdated","type":"uint40"},{"name":"usageAsCollateralEnabled","type":"bool"}],"stateMutability":"view","type":"function"}
]`

const lidoABI = `[
	{"inputs":[{"name":"_referral","type":"address"}],"name":"submit","outputs":[{"name":"","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

const withdrawalQueueABI = `[
	{"inputs":[{"name":"_amounts","type":"uint256[]"},{"name":"_owner","type":"address"}],"name":"requestWithdrawals","outputs":[{"name":"requestIds","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"_requestIds","type":"uint256[]"}],"name":"getWithdrawalStatus","outputs":[{"components":[{"name":"amountOfStETH","type":"uint256"},{"name":"amountOfShares","type":"uint256"},{"name":"owner","type":"address"},{"name":"timestamp","type":"uint256"},{"name":"isFinalized","type":"bool"},{"name":"isClaimed","type":"bool"}],"name":"statuses","type":"tuple[]"}],"stateMutability":"view","type":"function"}
]`

var (
	erc20Contract           = mustParse(erc20ABI)
	routerContract          = mustParse(routerABI)
	lendingPoolContract     = mustParse(lendingPoolABI)
	dataProviderContract    = mustParse(dataProviderABI)
	lidoContract            = mustParse(lidoABI)
	withdrawalQueueContract = mustParse(withdrawalQueueABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Addresses holds the contracts a Provider talks to. Zero fields fall back
// to the mainnet deployments.
type Addresses struct {
	UniswapRouter       string `mapstructure:"uniswap_router"`
	SushiSwapRouter     string `mapstructure:"sushiswap_router"`
	AaveLendingPool     string `mapstructure:"aave_lending_pool"`
	AaveDataProvider    string `mapstructure:"aave_data_provider"`
	LidoStETH           string `mapstructure:"lido_steth"`
	LidoWithdrawalQueue string `mapstructure:"lido_withdrawal_queue"`
	WETH                string `mapstructure:"weth"`
}

func orDefault(v string, def string) common.Address {
	if v == "" {
		return common.HexToAddress(def)
	}
	return common.HexToAddress(v)
}

type contracts struct {
	uniswap         common.Address
	sushiswap       common.Address
	lendingPool     common.Address
	dataProvider    common.Address
	stETH           common.Address
	withdrawalQueue common.Address
	weth            common.Address
}

func (a Addresses) resolve() contracts {
	return contracts{
		uniswap:         orDefault(a.UniswapRouter, UniswapV2Router),
		sushiswap:       orDefault(a.SushiSwapRouter, SushiSwapRouter),
		lendingPool:     orDefault(a.AaveLendingPool, AaveV2LendingPool),
		dataProvider:    orDefault(a.AaveDataProvider, AaveV2DataProvider),
		stETH:           orDefault(a.LidoStETH, LidoStETH),
		withdrawalQueue: orDefault(a.LidoWithdrawalQueue, LidoWithdrawalQueue),
		weth:            orDefault(a.WETH, defi.WETHAddress),
	}
}
