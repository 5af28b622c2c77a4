package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewAdminCmd creates the admin command group
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage proxy admin authority",
	}
	cmd.AddCommand(newAdminTransferCmd())
	return cmd
}

func newAdminTransferCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "transfer [proxy] <new-admin>",
		Short: "Transfer ownership of a proxy's ProxyAdmin",
		Long: `Transfer ownership of the ProxyAdmin behind a proxy to <new-admin>. Every
registered proxy sharing that ProxyAdmin changes admin with it and gets an
admin record; version history is untouched.`,
		Example: `  treb-proxy admin transfer sale 0x70997970C51812dc3A010C7d01b50e0d17dc79C8`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			var proxyRef, newAdmin string
			if len(args) == 2 {
				proxyRef, newAdmin = args[0], args[1]
			} else {
				newAdmin = args[0]
			}
			if !common.IsHexAddress(newAdmin) {
				return fmt.Errorf("invalid admin address: %s", newAdmin)
			}
			proxyRef, err = selectProxy(cmd, app, proxyRef)
			if err != nil {
				return err
			}

			result, err := app.TransferAdmin.Run(cmd.Context(), usecase.TransferAdminParams{
				Proxy:       proxyRef,
				NewAdmin:    common.HexToAddress(newAdmin),
				SkipConfirm: yes,
			})
			if err != nil {
				return err
			}
			return output(cmd, app, result, render.NewTransferAdminRenderer(cmd.OutOrStdout()))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}
