package cli

import (
	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// NewApplyCmd creates the apply command
func NewApplyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply <manifest>",
		Short: "Deploy every proxy listed in a YAML manifest",
		Long: `Deploy the proxies listed in a manifest, in order. Entries whose label is
already registered on the network are skipped, so applying a manifest twice is
safe. The first failure stops the run.

  network: bsctest
  proxies:
    - contract: Sale
      label: sale
      args: ["1000", "${SALE_WALLET}"]`,
		Example: `  treb-proxy apply proxies.yaml --network bsctest`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := getApp(cmd)
			if err != nil {
				return err
			}

			result, err := app.ApplyManifest.Run(cmd.Context(), usecase.ApplyManifestParams{
				Path:        args[0],
				SkipConfirm: yes,
			})
			if result != nil {
				if renderErr := output(cmd, app, result, render.NewManifestRenderer(cmd.OutOrStdout())); renderErr != nil && err == nil {
					return renderErr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")

	return cmd
}
