package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "show [proxy]",
		Short: "Show a proxy with its version and admin history",
		Long: `Show a registered proxy: its current implementation, admin, ProxyAdmin and
the full version and admin history. With --live the EIP-1967 slots and the
ProxyAdmin owner are read from the chain and compared with the registry.

The proxy is given by address or label.`,
		Example: `  treb-proxy show sale
  treb-proxy show 0x5FbDB2315678afecb367f032d93F642f64180aa3 --live`,
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

			result, err := app.ShowProxy.Run(cmd.Context(), usecase.ShowProxyParams{Proxy: ref, Live: live})
			if err != nil {
				return err
			}
			return output(cmd, app, result, render.NewProxyRenderer(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Compare the registry with on-chain state")

	return cmd
}

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [proxy]",
		Short: "Show the version and admin history of a proxy",
		Args:  cobra.MaximumNArgs(1),
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

			result, err := app.ProxyHistory.Run(cmd.Context(), ref)
			if err != nil {
				return err
			}
			renderer := render.NewProxyRenderer(cmd.OutOrStdout())
			renderer.HistoryOnly = true
			return output(cmd, app, result, renderer)
		},
	}

	return cmd
}
