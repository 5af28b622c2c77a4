package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewReconcileCmd creates the reconcile command
func NewReconcileCmd() *cobra.Command {
	var contractRef string

	cmd := &cobra.Command{
		Use:   "reconcile [proxy]",
		Short: "Bring the registry in line with on-chain proxy state",
		Long: `Read the EIP-1967 implementation and admin slots of a proxy and the owner of
its ProxyAdmin. An implementation swapped outside treb-proxy is recorded only
after its storage layout has been verified against the registered one; it is
identified by bytecode hash, or by --contract when the hash has no match.`,
		Example: `  treb-proxy reconcile sale
  treb-proxy reconcile sale --contract SaleV2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			var ref string
			if len(args) == 1 {
				ref = args[0]
			}
			ref, err = selectProxy(cmd, app, ref)
			if err != nil {
				return err
			}

			result, err := app.ReconcileProxy.Run(cmd.Context(), usecase.ReconcileProxyParams{
				Proxy:       ref,
				ContractRef: contractRef,
			})
			if result != nil {
				if renderErr := output(cmd, app, result, render.NewReconcileRenderer(cmd.OutOrStdout())); renderErr != nil && err == nil {
					return renderErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&contractRef, "contract", "", "Artifact of the on-chain implementation when it cannot be found by bytecode")

	return cmd
}
