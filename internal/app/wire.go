//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-proxy/internal/adapters"
	"github.com/trebuchet-org/treb-proxy/internal/config"
	"github.com/trebuchet-org/treb-proxy/internal/logging"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// InitApp creates a fully wired App instance
func InitApp(v *viper.Viper) (*App, error) {
	wire.Build(
		// Configuration
		config.Provider,
		logging.LoggingSet,

		// Adapters
		adapters.AllAdapters,

		// Use cases
		usecase.NewDeployProxy,
		usecase.NewUpgradeProxy,
		usecase.NewCheckUpgrade,
		usecase.NewShowProxy,
		usecase.NewProxyHistory,
		usecase.NewListProxies,
		usecase.NewReconcileProxy,
		usecase.NewTransferAdmin,
		usecase.NewApplyManifest,

		// App
		NewApp,
	)
	return nil, nil
}
