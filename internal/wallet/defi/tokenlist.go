package defi

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github/chapool/wallet-core/internal/wallet/chain"
	"github/chapool/wallet-core/internal/wallet/errs"
)

// maxDecimals bounds Token.Decimals to what uint256 amounts can carry.
const maxDecimals = 77

type tokenList struct {
	Tokens []Token `toml:"token"`
}

// ParseTokenList reads a TOML document of [[token]] tables.
func ParseTokenList(data string) ([]Token, error) {
	var list tokenList
	if _, err := toml.Decode(data, &list); err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "parse token list", errors.Wrap(err, "failed to decode token list"))
	}

	for i, t := range list.Tokens {
		if t.Symbol == "" {
			return nil, errs.DeFi("token %d has no symbol", i)
		}
		tag, err := chain.ParseTag(string(t.Chain))
		if err != nil {
			return nil, errs.DeFi("token %s: unknown chain %q", t.Symbol, t.Chain)
		}
		list.Tokens[i].Chain = tag
		if t.Decimals > maxDecimals {
			return nil, errs.DeFi("token %s: %d decimals is out of range", t.Symbol, t.Decimals)
		}
	}

	return list.Tokens, nil
}

// LoadTokenList reads a token list file.
func LoadTokenList(path string) ([]Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeFi, "load token list", errors.Wrapf(err, "failed to read %s", path))
	}
	return ParseTokenList(string(data))
}

// ForChain filters tokens down to one chain.
func ForChain(tokens []Token, tag chain.Tag) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Chain == tag {
			out = append(out, t)
		}
	}
	return out
}
