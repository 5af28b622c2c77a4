package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewUpgradeCmd creates the upgrade command
func NewUpgradeCmd() *cobra.Command {
	var (
		implementation string
		callMethod     string
		callArgs       []string
		yes            bool
	)

	cmd := &cobra.Command{
		Use:   "upgrade [proxy] <contract>",
		Short: "Upgrade a proxy to a new implementation",
		Long: `Upgrade a proxy to <contract>. The candidate's storage layout is checked
against the proxy's current implementation first; any incompatibility aborts the
upgrade before anything is sent. Only the registered admin can upgrade.

The proxy is given by address or label. Without it you pick one of the
registered proxies.`,
		Example: `  # Upgrade the sale proxy to SaleV2
  treb-proxy upgrade sale SaleV2

  # Point the proxy at an already deployed implementation
  treb-proxy upgrade 0x5FbDB2315678afecb367f032d93F642f64180aa3 SaleV2 --implementation 0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512

  # Run a migration in the same transaction
  treb-proxy upgrade sale SaleV2 --call migrate --call-args 42`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			var proxyRef, contractRef string
			if len(args) == 2 {
				proxyRef, contractRef = args[0], args[1]
			} else {
				contractRef = args[0]
			}
			proxyRef, err = selectProxy(cmd, app, proxyRef)
			if err != nil {
				return err
			}

			params := usecase.UpgradeProxyParams{
				Proxy:       proxyRef,
				ContractRef: contractRef,
				CallMethod:  callMethod,
				CallArgs:    callArgs,
				SkipConfirm: yes,
			}
			if implementation != "" {
				if !common.IsHexAddress(implementation) {
					return fmt.Errorf("invalid implementation address: %s", implementation)
				}
				params.Implementation = common.HexToAddress(implementation)
			}

			result, err := app.UpgradeProxy.Run(cmd.Context(), params)
			if result != nil {
				if renderErr := output(cmd, app, result, render.NewUpgradeRenderer(cmd.OutOrStdout())); renderErr != nil && err == nil {
					return renderErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&implementation, "implementation", "", "Use an already deployed implementation (its code must match the contract artifact)")
	cmd.Flags().StringVar(&callMethod, "call", "", "Method to call on the new implementation in the upgrade transaction")
	cmd.Flags().StringSliceVar(&callArgs, "call-args", nil, "Arguments for --call, comma separated")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [proxy] <contract>",
		Short: "Check whether a contract can safely replace a proxy's implementation",
		Long: `Extract the storage layout of <contract> and verify it against the proxy's
current implementation without authorizing or sending anything. Exits non-zero
when the layouts are incompatible.`,
		Example: `  treb-proxy check sale SaleV2`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			var proxyRef, contractRef string
			if len(args) == 2 {
				proxyRef, contractRef = args[0], args[1]
			} else {
				contractRef = args[0]
			}
			proxyRef, err = selectProxy(cmd, app, proxyRef)
			if err != nil {
				return err
			}

			result, err := app.CheckUpgrade.Run(cmd.Context(), usecase.CheckUpgradeParams{
				Proxy:       proxyRef,
				ContractRef: contractRef,
			})
			if err != nil {
				return err
			}
			if err := output(cmd, app, result, render.NewCheckRenderer(cmd.OutOrStdout())); err != nil {
				return err
			}
			return result.Report.Err()
		},
	}

	return cmd
}
