package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/trebuchet-org/treb-proxy/internal/usecase"

// resolveProxy looks a proxy up by address or by label
func resolveProxy(ctx context.Context, registry ProxyRegistry, ref string) (*models.Proxy, error) {
	if ref == "" {
		return nil, fmt.Errorf("proxy address or label is required")
	}
	if common.IsHexAddress(ref) {
		return registry.GetProxy(ctx, common.HexToAddress(ref))
	}
	p, err := registry.FindByLabel(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no proxy labelled %q", domain.ErrUnknownProxy, ref)
		}
		return nil, err
	}
	return p, nil
}

// loadCandidate resolves an artifact and extracts its storage layout
func loadCandidate(ctx context.Context, artifacts ArtifactRepository, ref string) (*models.Contract, models.StorageLayout, error) {
	contract, err := artifacts.GetContract(ctx, ref)
	if err != nil {
		return nil, models.StorageLayout{}, err
	}
	if contract.Artifact == nil {
		return nil, models.StorageLayout{}, fmt.Errorf("%w: %s has no artifact", domain.ErrMetadataUnavailable, ref)
	}
	l, err := layout.Extract(contract.Artifact.StorageLayout)
	if err != nil {
		return nil, models.StorageLayout{}, fmt.Errorf("%s: %w", contract.Ref(), err)
	}
	return contract, l, nil
}

// currentLayout returns the layout recorded for the proxy's current
// implementation, memoized per implementation address
func currentLayout(cache *layout.Cache, current *models.Implementation) (models.StorageLayout, error) {
	return cache.GetOrLoad(current.Address, func() (models.StorageLayout, error) {
		return current.Layout, nil
	})
}

// checkCode requires the runtime code at addr to be the contract's deployed
// bytecode, so the layout recorded for addr is the one actually installed
func checkCode(ctx context.Context, submitter TransactionSubmitter, addr common.Address, contract *models.Contract) error {
	hash, err := submitter.CodeHashAt(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to read code at %s: %w", addr.Hex(), err)
	}
	if hash == (common.Hash{}) {
		return fmt.Errorf("%w: no code at %s", domain.ErrCodeMismatch, addr.Hex())
	}
	if want := contract.Artifact.BytecodeHash(); hash != want {
		return fmt.Errorf("%w: code at %s has hash %s, %s has %s",
			domain.ErrCodeMismatch, addr.Hex(), hash.Hex(), contract.Ref(), want.Hex())
	}
	return nil
}

func newImplementation(contract *models.Contract, addr common.Address, l models.StorageLayout, at time.Time) *models.Implementation {
	return &models.Implementation{
		Address:      addr,
		ContractRef:  contract.Ref(),
		BytecodeHash: contract.Artifact.BytecodeHash(),
		Layout:       l,
		LayoutHash:   layout.Hash(l),
		DeployedAt:   at,
	}
}

// submit bounds a submission by timeout. A submission still pending when the
// deadline passes may or may not land, so it maps to ErrOutcomeUnknown.
func submit(ctx context.Context, submitter TransactionSubmitter, timeout time.Duration, tx models.Transaction) (*models.Receipt, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	receipt, err := submitter.Submit(ctx, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s not confirmed within %s: %v", domain.ErrOutcomeUnknown, tx.Kind, timeout, err)
		}
		return nil, fmt.Errorf("%s: %w", tx.Kind, err)
	}
	if !receipt.Success {
		return nil, &domain.RevertedError{Op: string(tx.Kind), TxHash: receipt.TxHash}
	}
	return receipt, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func stateEvent(span trace.Span, state models.RequestState) {
	span.AddEvent("state", trace.WithAttributes(attribute.String("state", string(state))))
}
