package usecase

import (
	"context"
	"iter"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// ProxyRegistry is the authoritative record of proxies, their version
// history and their admin history on one chain
type ProxyRegistry interface {
	Register(ctx context.Context, proxy *models.Proxy, impl *models.Implementation, initiator common.Address, txHash common.Hash) (*models.VersionRecord, error)
	RecordUpgrade(ctx context.Context, proxy, expectedCurrent common.Address, impl *models.Implementation, initiator common.Address, txHash common.Hash) (*models.VersionRecord, error)
	RecordAdminChange(ctx context.Context, proxy, expectedAdmin, newAdmin, initiator common.Address, txHash common.Hash) (*models.AdminRecord, error)

	Current(ctx context.Context, proxy common.Address) (*models.Implementation, error)
	History(ctx context.Context, proxy common.Address) (iter.Seq[models.VersionRecord], error)
	AdminHistory(ctx context.Context, proxy common.Address) (iter.Seq[models.AdminRecord], error)

	GetProxy(ctx context.Context, proxy common.Address) (*models.Proxy, error)
	ListProxies(ctx context.Context) ([]*models.Proxy, error)
	FindByLabel(ctx context.Context, label string) (*models.Proxy, error)
	GetImplementation(ctx context.Context, impl common.Address) (*models.Implementation, error)
	ControlledBy(ctx context.Context, admin common.Address) (*models.AdminController, error)
}

// TransactionSubmitter sends transactions to the chain and reads proxy state.
// Submit blocks until the transaction is mined or ctx is done. Errors are
// *domain.NetworkError (retryable) or *domain.RevertedError.
type TransactionSubmitter interface {
	Submit(ctx context.Context, tx models.Transaction) (*models.Receipt, error)

	// ImplementationOf reads the EIP-1967 implementation slot
	ImplementationOf(ctx context.Context, proxy common.Address) (common.Address, error)
	// AdminOf reads the EIP-1967 admin slot (the ProxyAdmin contract)
	AdminOf(ctx context.Context, proxy common.Address) (common.Address, error)
	// OwnerOf calls owner() on a ProxyAdmin
	OwnerOf(ctx context.Context, adminContract common.Address) (common.Address, error)
	// CodeHashAt returns keccak256 of the runtime code at addr, or the zero
	// hash when there is none
	CodeHashAt(ctx context.Context, addr common.Address) (common.Hash, error)
}

// Signer is the admin authority submitting transactions. The key stays
// inside the implementation.
type Signer interface {
	Address() common.Address
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// ArtifactRepository provides compiled contracts from the project
type ArtifactRepository interface {
	// GetContract resolves "Name" or "path:Name"
	GetContract(ctx context.Context, ref string) (*models.Contract, error)
	ListContracts(ctx context.Context) []*models.Contract
	FindByBytecodeHash(ctx context.Context, hash common.Hash) (*models.Contract, error)
}

// ContractBuilder compiles the project so artifacts carry storage layouts
type ContractBuilder interface {
	Build(ctx context.Context) error
}

// CalldataEncoder packs a method call from string arguments
type CalldataEncoder interface {
	EncodeCall(artifact *models.Artifact, method string, args []string) ([]byte, error)
}

// ManifestLoader reads a proxy manifest
type ManifestLoader interface {
	Load(ctx context.Context, path string) (*models.Manifest, error)
}

// Confirmer asks the user to confirm an action
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ProxySelector handles interactive selection of proxies
type ProxySelector interface {
	SelectProxy(ctx context.Context, proxies []*models.Proxy, prompt string) (*models.Proxy, error)
}

// Progress tracking interfaces

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Stage    string
	Current  int
	Total    int
	Message  string
	Spinner  bool
	Metadata interface{}
}

// ProgressSink receives progress events
type ProgressSink interface {
	OnProgress(ctx context.Context, event ProgressEvent)
	Info(message string)
	Error(message string)
}

// NopProgress is a no-op implementation of ProgressSink
type NopProgress struct{}

func (NopProgress) OnProgress(context.Context, ProgressEvent) {}
func (NopProgress) Info(string)                               {}
func (NopProgress) Error(string)                              {}
