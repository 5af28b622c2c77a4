package adapters

import (
	"fmt"
	"log/slog"

	"github.com/google/wire"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/abi"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/blockchain"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/forge"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/fs"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/interactive"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/progress"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/repository/contracts"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/repository/proxies"
	"github.com/trebuchet-org/treb-proxy/internal/adapters/tracing"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// ProvideRegistry opens the proxy registry of the selected network with the
// configured backend
func ProvideRegistry(cfg *config.RuntimeConfig, log *slog.Logger) (*proxies.Registry, error) {
	switch cfg.RegistryBackend {
	case config.RegistryBackendSQLite:
		return proxies.NewSQLiteRegistry(cfg.ProjectRoot, cfg.ChainID(), log)
	case config.RegistryBackendFile, "":
		return proxies.NewFileRegistry(cfg.ProjectRoot, cfg.ChainID(), log)
	}
	return nil, fmt.Errorf("unknown registry backend %q", cfg.RegistryBackend)
}

// RepositorySet provides the proxy registry and the artifact repository
var RepositorySet = wire.NewSet(
	ProvideRegistry,
	wire.Bind(new(usecase.ProxyRegistry), new(*proxies.Registry)),

	forge.NewBuilder,
	wire.Bind(new(usecase.ContractBuilder), new(*forge.Builder)),

	contracts.ProvideRepository,
	wire.Bind(new(usecase.ArtifactRepository), new(*contracts.Repository)),
)

// BlockchainSet provides the signer and the transaction submitter
var BlockchainSet = wire.NewSet(
	blockchain.NewSigner,
	wire.Bind(new(usecase.Signer), new(*blockchain.KeySigner)),

	blockchain.NewSubmitter,
	wire.Bind(new(usecase.TransactionSubmitter), new(*blockchain.Submitter)),

	abi.NewEncoder,
	wire.Bind(new(usecase.CalldataEncoder), new(*abi.Encoder)),
)

// FSSet provides filesystem-based implementations
var FSSet = wire.NewSet(
	fs.NewManifestLoader,
	wire.Bind(new(usecase.ManifestLoader), new(*fs.ManifestLoader)),
)

// InteractiveSet provides interactive implementations
var InteractiveSet = wire.NewSet(
	interactive.NewSelectorAdapter,
	wire.Bind(new(usecase.ProxySelector), new(*interactive.SelectorAdapter)),
	wire.Bind(new(usecase.Confirmer), new(*interactive.SelectorAdapter)),
)

// AllAdapters includes all adapter sets
var AllAdapters = wire.NewSet(
	RepositorySet,
	BlockchainSet,
	FSSet,
	InteractiveSet,

	progress.ProvideProgressSink,
	tracing.ProvideTracerProvider,
	layout.NewCache,
)
