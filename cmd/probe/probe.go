package probe

import (
	"github.com/spf13/cobra"
	"github/chapool/wallet-core/internal/util/command"
)

const (
	verboseFlag string = "verbose"
)

// New returns the health check group. Both checks exit non-zero on failure
// so they can back container liveness and readiness hooks.
func New() *cobra.Command {
	cmd := command.NewSubcommandGroup("probe",
		newLiveness(),
		newReadiness(),
	)
	cmd.Short = "Wallet health checks"
	cmd.Long = `Wallet health checks.

liveness inspects the configuration and keystore file without unlocking it.
readiness dials every configured chain provider.`
	cmd.PersistentFlags().BoolP(verboseFlag, "v", false, "print a line per successful check")

	return cmd
}
