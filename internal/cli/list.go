package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var (
		admin        string
		contractName string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List proxies from the registry",
		Long: `List every proxy registered on the current network.

The list can be filtered by admin authority or contract name.`,
		Example: `  # List all proxies
  treb-proxy list

  # List the proxies a given account can upgrade
  treb-proxy list --admin 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266

  # List all Sale proxies
  treb-proxy list --contract Sale`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			params := usecase.ListProxiesParams{Contract: contractName}
			if admin != "" {
				if !common.IsHexAddress(admin) {
					return fmt.Errorf("invalid admin address: %s", admin)
				}
				addr := common.HexToAddress(admin)
				params.Admin = &addr
			}

			result, err := app.ListProxies.Run(cmd.Context(), params)
			if err != nil {
				return err
			}
			return output(cmd, app, result, render.NewProxyListRenderer(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&admin, "admin", "", "Filter by admin authority")
	cmd.Flags().StringVar(&contractName, "contract", "", "Filter by contract name")

	return cmd
}
