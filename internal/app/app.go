package app

import (
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// App is the main application container that holds all use cases
type App struct {
	// Configuration
	Config *config.RuntimeConfig

	// Shared dependencies
	Selector usecase.ProxySelector
	Registry usecase.ProxyRegistry
	Progress usecase.ProgressSink

	// Use cases
	DeployProxy    *usecase.DeployProxy
	UpgradeProxy   *usecase.UpgradeProxy
	CheckUpgrade   *usecase.CheckUpgrade
	ShowProxy      *usecase.ShowProxy
	ProxyHistory   *usecase.ProxyHistory
	ListProxies    *usecase.ListProxies
	ReconcileProxy *usecase.ReconcileProxy
	TransferAdmin  *usecase.TransferAdmin
	ApplyManifest  *usecase.ApplyManifest
}

// NewApp creates a new application instance with all use cases
func NewApp(
	cfg *config.RuntimeConfig,
	selector usecase.ProxySelector,
	registry usecase.ProxyRegistry,
	progress usecase.ProgressSink,
	deployProxy *usecase.DeployProxy,
	upgradeProxy *usecase.UpgradeProxy,
	checkUpgrade *usecase.CheckUpgrade,
	showProxy *usecase.ShowProxy,
	proxyHistory *usecase.ProxyHistory,
	listProxies *usecase.ListProxies,
	reconcileProxy *usecase.ReconcileProxy,
	transferAdmin *usecase.TransferAdmin,
	applyManifest *usecase.ApplyManifest,
) (*App, error) {
	return &App{
		Config:         cfg,
		Selector:       selector,
		Registry:       registry,
		Progress:       progress,
		DeployProxy:    deployProxy,
		UpgradeProxy:   upgradeProxy,
		CheckUpgrade:   checkUpgrade,
		ShowProxy:      showProxy,
		ProxyHistory:   proxyHistory,
		ListProxies:    listProxies,
		ReconcileProxy: reconcileProxy,
		TransferAdmin:  transferAdmin,
		ApplyManifest:  applyManifest,
	}, nil
}
