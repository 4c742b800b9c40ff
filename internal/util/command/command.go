// Package command holds helpers shared by the cobra subcommands.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/config"
	"github/chapool/wallet-core/internal/metrics"
	"github/chapool/wallet-core/internal/util"
	"github/chapool/wallet-core/internal/wallet"
	"github/chapool/wallet-core/internal/wallet/address"
	"github/chapool/wallet-core/internal/wallet/chain"
	"golang.org/x/term"
)

const (
	// ConfigFlag names the persistent flag holding the config file path.
	ConfigFlag = "config"
	ChainFlag  = "chain"
)

// stdin is shared so consecutive prompts on piped input see every line.
var stdin = bufio.NewReader(os.Stdin)

// NewSubcommandGroup returns a command that only groups subcommands and
// prints its help when run on its own.
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s related subcommands", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(subcommands...)

	return cmd
}

// PromptPassword reads a secret from the terminal without echoing it. Piped
// input is read line by line instead.
//
//nolint:forbidigo // password input requires direct terminal I/O
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd()) //nolint:gosec // stdin fd fits in int
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", errors.Wrap(err, "failed to read password")
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}

	return string(password), nil
}

// Env is what a subcommand needs to open the wallet.
type Env struct {
	Config *config.Engine
	Prompt wallet.PasswordPrompt
	// Out receives user facing output such as a freshly generated phrase.
	Out io.Writer
}

// EnvFromCommand loads the configuration named by the --config flag.
func EnvFromCommand(cmd *cobra.Command) (Env, error) {
	path, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		return Env{}, err
	}

	return Env{Config: cfg, Prompt: PromptPassword, Out: cmd.ErrOrStderr()}, nil
}

// AddChainFlag registers --chain on cmd.
func AddChainFlag(cmd *cobra.Command) {
	cmd.Flags().String(ChainFlag, chain.Ethereum.String(), "ethereum, bitcoin or solana")
}

// ChainFromFlags parses --chain.
func ChainFromFlags(cmd *cobra.Command) (chain.Tag, error) {
	name, err := cmd.Flags().GetString(ChainFlag)
	if err != nil {
		return "", errors.Wrap(err, "failed to read chain flag")
	}
	return chain.ParseTag(name)
}

// PrintJSON writes v as indented JSON to the command's output.
func PrintJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return errors.Wrap(enc.Encode(v), "failed to encode output")
}

// WithEngine opens (or creates) the configured keystore, builds an engine on
// top of it and runs fn. The wallet is wiped and provider connections are
// closed once fn returns.
func WithEngine(ctx context.Context, env Env, fn func(ctx context.Context, e *wallet.Engine) error) error {
	cfg := env.Config
	logger := config.SetupLogger(cfg.Logger, os.Stderr)
	ctx = util.WithLogger(ctx, logger)

	addressService, err := address.NewService(cfg.AddressOptions())
	if err != nil {
		return errors.Wrap(err, "failed to create address service")
	}

	w, phrase, err := wallet.InitializeKeystore(ctx, cfg.Keystore.Path, env.Prompt, addressService, wallet.InitOptions{
		Words:  cfg.Keystore.Words,
		Scrypt: cfg.Keystore.ScryptParams(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to initialize keystore")
	}
	defer w.Destroy()

	if phrase != "" {
		out := env.Out
		if out == nil {
			out = os.Stderr
		}
		fmt.Fprintf(out, "New wallet created. Write down the recovery phrase and keep it offline:\n\n%s\n\n", phrase)
	}

	opts, err := cfg.EngineOptions(metrics.New(prometheus.NewRegistry()))
	if err != nil {
		return err
	}

	engine, err := wallet.NewEngine(w, opts)
	if err != nil {
		return errors.Wrap(err, "failed to create engine")
	}
	defer engine.Close()

	return fn(ctx, engine)
}
