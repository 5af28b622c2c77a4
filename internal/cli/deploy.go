package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewDeployCmd creates the deploy command
func NewDeployCmd() *cobra.Command {
	var (
		label      string
		initMethod string
		initArgs   []string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <contract>",
		Short: "Deploy a contract behind a transparent proxy",
		Long: `Deploy an implementation of <contract>, a transparent proxy pointing at it
and, unless one is configured or already registered, a ProxyAdmin owned by the
sender. The initializer runs once through the proxy constructor. The proxy is
registered with its genesis version record.`,
		Example: `  # Deploy Sale with initialize(1000, wallet)
  treb-proxy deploy Sale --label sale --init-args 1000,0x70997970C51812dc3A010C7d01b50e0d17dc79C8

  # Use a different initializer
  treb-proxy deploy src/Market.sol:Market --label market --init-method initializeV1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.DeployProxy.Run(cmd.Context(), usecase.DeployProxyParams{
				ContractRef: args[0],
				Label:       label,
				InitMethod:  initMethod,
				InitArgs:    initArgs,
				SkipConfirm: yes,
			})
			if result != nil {
				if renderErr := output(cmd, app, result, render.NewDeployRenderer(cmd.OutOrStdout())); renderErr != nil && err == nil {
					return renderErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Label identifying the proxy on this network")
	cmd.Flags().StringVar(&initMethod, "init-method", "", "Initializer to call (defaults to the configured initializer)")
	cmd.Flags().StringSliceVar(&initArgs, "init-args", nil, "Initializer arguments, comma separated")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}
