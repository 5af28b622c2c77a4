package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trebuchet-org/treb-proxy/internal/app"
	"github.com/trebuchet-org/treb-proxy/internal/cli/render"
	"github.com/trebuchet-org/treb-proxy/internal/config"
)

// contextKey is the type for context keys
type contextKey string

const (
	// appKey is the context key for the app instance
	appKey contextKey = "app"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treb-proxy",
		Short: "Upgradeable proxy lifecycle manager for Foundry",
		Long: `treb-proxy deploys transparent upgradeable proxies, keeps an append-only
registry of every proxy's implementation and admin history, and refuses any
upgrade whose storage layout is incompatible with the running implementation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			projectRoot, err := config.FindProjectRoot()
			if err != nil {
				return err
			}

			v := config.SetupViper(projectRoot, cmd)

			appInstance, err := app.InitApp(v)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			if appInstance.Config.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, appInstance.Config.Timeout)
				cmd.PostRun = func(cmd *cobra.Command, args []string) {
					cancel()
				}
			}
			cmd.SetContext(ctx)

			return nil
		},
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable debug output")
	flags.Bool("non-interactive", false, "Disable interactive prompts")
	flags.Bool("json", false, "Output in JSON format")
	flags.StringP("namespace", "s", "", "Namespace to use (defaults to 'default') [also sets foundry profile]")
	flags.StringP("network", "n", "", "Network to use (e.g., mainnet, sepolia, local)")
	flags.String("sender", "", "Sender from [profile.<namespace>.treb.senders] acting as admin (defaults to 'deployer')")
	flags.Bool("no-build", false, "Use existing artifacts without running forge build")
	flags.String("registry-backend", "", "Registry storage: file or sqlite")
	flags.Duration("timeout", 0, "Overall command timeout (defaults to 5m)")
	flags.Duration("confirm-timeout", 0, "How long to wait for a transaction to be mined (defaults to 2m)")

	rootCmd.AddGroup(&cobra.Group{
		ID:    "main",
		Title: "Main Commands",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands",
	})

	// Main commands
	for _, cmd := range []*cobra.Command{
		NewDeployCmd(),
		NewUpgradeCmd(),
		NewCheckCmd(),
		NewApplyCmd(),
	} {
		cmd.GroupID = "main"
		rootCmd.AddCommand(cmd)
	}

	// Management commands
	for _, cmd := range []*cobra.Command{
		NewListCmd(),
		NewShowCmd(),
		NewHistoryCmd(),
		NewReconcileCmd(),
		NewAdminCmd(),
	} {
		cmd.GroupID = "management"
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// getApp retrieves the app instance from the command context
func getApp(cmd *cobra.Command) (*app.App, error) {
	appInstance := cmd.Context().Value(appKey)
	if appInstance == nil {
		return nil, fmt.Errorf("app not initialized")
	}

	app, ok := appInstance.(*app.App)
	if !ok {
		return nil, fmt.Errorf("invalid app instance")
	}

	return app, nil
}

// selectProxy returns ref when given, otherwise asks the user to pick one of
// the registered proxies
func selectProxy(cmd *cobra.Command, app *app.App, ref string) (string, error) {
	if ref != "" {
		return ref, nil
	}
	proxies, err := app.Registry.ListProxies(cmd.Context())
	if err != nil {
		return "", err
	}
	if len(proxies) == 0 {
		return "", fmt.Errorf("no proxies registered on this network")
	}
	p, err := app.Selector.SelectProxy(cmd.Context(), proxies, "Select proxy")
	if err != nil {
		return "", err
	}
	return p.Address.Hex(), nil
}

// output renders result as JSON with --json and with renderer otherwise
func output[T any](cmd *cobra.Command, app *app.App, result T, renderer render.Renderer[T]) error {
	if s, ok := app.Progress.(interface{ Stop() }); ok {
		s.Stop()
	}
	if app.Config.JSON {
		return render.RenderJSON(cmd.OutOrStdout(), result)
	}
	return renderer.Render(result)
}
