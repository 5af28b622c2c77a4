package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// ReconcileProxyParams contains parameters for reconciling a proxy
type ReconcileProxyParams struct {
	Proxy string

	// ContractRef names the artifact of an out-of-band implementation when
	// several artifacts share its bytecode. The code must still match.
	ContractRef string
}

// ReconcileProxyResult reports what reconcile found and recorded
type ReconcileProxyResult struct {
	Proxy   *models.Proxy
	OnChain *OnChainState

	InSync      bool
	Version     *models.VersionRecord
	AdminChange *models.AdminRecord
	Report      *layout.Report

	// AdminContractMismatch is set when the EIP-1967 admin slot no longer
	// holds the registered ProxyAdmin
	AdminContractMismatch bool
}

// ReconcileProxy brings the registry in line with on-chain state after an
// unknown outcome or an upgrade made outside this tool. An on-chain
// implementation is only recorded once its layout verifies against the
// registered one.
type ReconcileProxy struct {
	registry  ProxyRegistry
	artifacts ArtifactRepository
	submitter TransactionSubmitter
	signer    Signer
	layouts   *layout.Cache
	progress  ProgressSink
	log       *slog.Logger
	now       func() time.Time
}

// NewReconcileProxy creates a new ReconcileProxy use case
func NewReconcileProxy(
	registry ProxyRegistry,
	artifacts ArtifactRepository,
	submitter TransactionSubmitter,
	signer Signer,
	layouts *layout.Cache,
	progress ProgressSink,
	log *slog.Logger,
) *ReconcileProxy {
	return &ReconcileProxy{
		registry:  registry,
		artifacts: artifacts,
		submitter: submitter,
		signer:    signer,
		layouts:   layouts,
		progress:  progress,
		log:       log.With("component", "ReconcileProxy"),
		now:       time.Now,
	}
}

// Run executes the reconcile use case
func (uc *ReconcileProxy) Run(ctx context.Context, params ReconcileProxyParams) (*ReconcileProxyResult, error) {
	proxy, err := resolveProxy(ctx, uc.registry, params.Proxy)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "chain", Message: "Reading on-chain state", Spinner: true})
	state, err := readOnChain(ctx, uc.submitter, proxy)
	if err != nil {
		return nil, err
	}

	result := &ReconcileProxyResult{
		Proxy:                 proxy,
		OnChain:               state,
		AdminContractMismatch: proxy.AdminContract != (common.Address{}) && state.AdminContract != proxy.AdminContract,
	}

	if state.Implementation != proxy.Implementation {
		if err := uc.recordImplementation(ctx, proxy, state.Implementation, params.ContractRef, result); err != nil {
			return result, err
		}
	}

	if state.Owner != proxy.Admin && state.Owner != (common.Address{}) {
		rec, err := uc.registry.RecordAdminChange(ctx, proxy.Address, proxy.Admin, state.Owner, uc.signer.Address(), common.Hash{})
		if err != nil {
			return result, fmt.Errorf("failed to record admin change: %w", err)
		}
		result.AdminChange = rec
		uc.log.Info("recorded out-of-band admin change", "proxy", proxy.Address.Hex(), "admin", state.Owner.Hex())
	}

	result.InSync = result.Version == nil && result.AdminChange == nil && !result.AdminContractMismatch
	if updated, err := uc.registry.GetProxy(ctx, proxy.Address); err == nil {
		result.Proxy = updated
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done"})
	return result, nil
}

func (uc *ReconcileProxy) recordImplementation(ctx context.Context, proxy *models.Proxy, onChain common.Address, ref string, result *ReconcileProxyResult) error {
	// already known, e.g. a rollback to an earlier version
	impl, err := uc.registry.GetImplementation(ctx, onChain)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	var candidate models.StorageLayout
	if impl != nil {
		candidate = impl.Layout
	} else {
		contract, err := uc.identify(ctx, onChain, ref)
		if err != nil {
			return err
		}
		contract, candidate, err = loadCandidate(ctx, uc.artifacts, contract.Ref())
		if err != nil {
			return err
		}
		impl = newImplementation(contract, onChain, candidate, uc.now())
	}

	current, err := uc.registry.Current(ctx, proxy.Address)
	if err != nil {
		return err
	}
	old, err := currentLayout(uc.layouts, current)
	if err != nil {
		return err
	}
	report := layout.Verify(old, candidate)
	result.Report = &report
	if !report.Compatible {
		return fmt.Errorf("on-chain implementation %s: %w", onChain.Hex(), report.Err())
	}

	rec, err := uc.registry.RecordUpgrade(ctx, proxy.Address, current.Address, impl, uc.signer.Address(), common.Hash{})
	if err != nil {
		return fmt.Errorf("failed to record on-chain implementation: %w", err)
	}
	uc.layouts.Put(impl.Address, candidate)
	result.Version = rec
	uc.log.Info("recorded out-of-band upgrade", "proxy", proxy.Address.Hex(), "implementation", onChain.Hex(), "version", rec.Sequence)
	return nil
}

// identify finds the artifact of deployed code by matching the runtime
// bytecode hash. A given ref must name an artifact with that code.
func (uc *ReconcileProxy) identify(ctx context.Context, addr common.Address, ref string) (*models.Contract, error) {
	if ref != "" {
		contract, err := uc.artifacts.GetContract(ctx, ref)
		if err != nil {
			return nil, err
		}
		if contract.Artifact == nil {
			return nil, fmt.Errorf("%w: %s has no artifact", domain.ErrMetadataUnavailable, ref)
		}
		if err := checkCode(ctx, uc.submitter, addr, contract); err != nil {
			return nil, err
		}
		return contract, nil
	}
	hash, err := uc.submitter.CodeHashAt(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read code at %s: %w", addr.Hex(), err)
	}
	if hash == (common.Hash{}) {
		return nil, fmt.Errorf("%w: no code at %s", domain.ErrContractNotFound, addr.Hex())
	}
	contract, err := uc.artifacts.FindByBytecodeHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("no artifact matches code at %s: %w", addr.Hex(), err)
	}
	return contract, nil
}
