package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// ShowProxyParams contains parameters for showing a proxy
type ShowProxyParams struct {
	Proxy string // address or label

	// Live also reads the EIP-1967 slots and ProxyAdmin owner from the chain
	Live bool
}

// ProxyDetails is the registry view of one proxy
type ProxyDetails struct {
	Proxy    *models.Proxy
	Current  *models.Implementation
	Versions []models.VersionRecord
	Admins   []models.AdminRecord

	OnChain *OnChainState
}

// OnChainState is what the chain reports for a proxy
type OnChainState struct {
	Implementation common.Address
	AdminContract  common.Address
	Owner          common.Address
}

// InSync reports whether the chain agrees with the registry
func (d *ProxyDetails) InSync() bool {
	if d.OnChain == nil {
		return true
	}
	return d.OnChain.Implementation == d.Proxy.Implementation &&
		d.OnChain.Owner == d.Proxy.Admin
}

// ShowProxy is the use case for showing a proxy with its history
type ShowProxy struct {
	registry  ProxyRegistry
	submitter TransactionSubmitter
	progress  ProgressSink
}

// NewShowProxy creates a new ShowProxy use case
func NewShowProxy(registry ProxyRegistry, submitter TransactionSubmitter, progress ProgressSink) *ShowProxy {
	return &ShowProxy{
		registry:  registry,
		submitter: submitter,
		progress:  progress,
	}
}

// Run executes the show proxy use case
func (uc *ShowProxy) Run(ctx context.Context, params ShowProxyParams) (*ProxyDetails, error) {
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "loading", Message: "Loading proxy", Spinner: true})

	proxy, err := resolveProxy(ctx, uc.registry, params.Proxy)
	if err != nil {
		return nil, err
	}
	details, err := loadDetails(ctx, uc.registry, proxy)
	if err != nil {
		return nil, err
	}

	if params.Live {
		uc.progress.OnProgress(ctx, ProgressEvent{Stage: "chain", Message: "Reading on-chain state", Spinner: true})
		state, err := readOnChain(ctx, uc.submitter, proxy)
		if err != nil {
			return nil, err
		}
		details.OnChain = state
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done"})
	return details, nil
}

// ProxyHistory returns the version and admin history of a proxy
type ProxyHistory struct {
	registry ProxyRegistry
}

// NewProxyHistory creates a new ProxyHistory use case
func NewProxyHistory(registry ProxyRegistry) *ProxyHistory {
	return &ProxyHistory{registry: registry}
}

// Run executes the history use case
func (uc *ProxyHistory) Run(ctx context.Context, proxyRef string) (*ProxyDetails, error) {
	proxy, err := resolveProxy(ctx, uc.registry, proxyRef)
	if err != nil {
		return nil, err
	}
	return loadDetails(ctx, uc.registry, proxy)
}

func loadDetails(ctx context.Context, registry ProxyRegistry, proxy *models.Proxy) (*ProxyDetails, error) {
	current, err := registry.Current(ctx, proxy.Address)
	if err != nil {
		return nil, err
	}
	versions, err := registry.History(ctx, proxy.Address)
	if err != nil {
		return nil, err
	}
	admins, err := registry.AdminHistory(ctx, proxy.Address)
	if err != nil {
		return nil, err
	}
	return &ProxyDetails{
		Proxy:    proxy,
		Current:  current,
		Versions: slices.Collect(versions),
		Admins:   slices.Collect(admins),
	}, nil
}

func readOnChain(ctx context.Context, submitter TransactionSubmitter, proxy *models.Proxy) (*OnChainState, error) {
	impl, err := submitter.ImplementationOf(ctx, proxy.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read implementation slot: %w", err)
	}
	adminContract, err := submitter.AdminOf(ctx, proxy.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin slot: %w", err)
	}
	owner, err := submitter.OwnerOf(ctx, adminContract)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner of %s: %w", adminContract.Hex(), err)
	}
	return &OnChainState{Implementation: impl, AdminContract: adminContract, Owner: owner}, nil
}
