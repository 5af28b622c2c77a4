package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TransferAdminParams contains parameters for an admin transfer
type TransferAdminParams struct {
	Proxy       string
	NewAdmin    common.Address
	SkipConfirm bool
}

// TransferAdminResult lists the admin records written. Every proxy sharing
// the ProxyAdmin changes hands together.
type TransferAdminResult struct {
	AdminContract common.Address
	TxHash        common.Hash
	Records       []*models.AdminRecord
	Affected      []*models.Proxy
}

// TransferAdmin hands the ProxyAdmin of a proxy to a new authority
type TransferAdmin struct {
	cfg       *config.RuntimeConfig
	registry  ProxyRegistry
	submitter TransactionSubmitter
	signer    Signer
	confirmer Confirmer
	tracer    trace.Tracer
	progress  ProgressSink
	log       *slog.Logger
}

// NewTransferAdmin creates a new TransferAdmin use case
func NewTransferAdmin(
	cfg *config.RuntimeConfig,
	registry ProxyRegistry,
	submitter TransactionSubmitter,
	signer Signer,
	confirmer Confirmer,
	tracerProvider trace.TracerProvider,
	progress ProgressSink,
	log *slog.Logger,
) *TransferAdmin {
	return &TransferAdmin{
		cfg:       cfg,
		registry:  registry,
		submitter: submitter,
		signer:    signer,
		confirmer: confirmer,
		tracer:    tracerProvider.Tracer(tracerName),
		progress:  progress,
		log:       log.With("component", "TransferAdmin"),
	}
}

// Run executes the admin transfer
func (uc *TransferAdmin) Run(ctx context.Context, params TransferAdminParams) (result *TransferAdminResult, err error) {
	ctx, span := uc.tracer.Start(ctx, "TransferAdmin", trace.WithAttributes(
		attribute.String("proxy", params.Proxy),
		attribute.String("new_admin", params.NewAdmin.Hex()),
	))
	defer func() { endSpan(span, err) }()

	if params.NewAdmin == (common.Address{}) {
		return nil, fmt.Errorf("%w: new admin is the zero address", domain.ErrInvalidAddress)
	}

	proxy, err := resolveProxy(ctx, uc.registry, params.Proxy)
	if err != nil {
		return nil, err
	}
	initiator := uc.signer.Address()
	if proxy.Admin != initiator {
		return nil, fmt.Errorf("%w: %s is administered by %s, not %s",
			domain.ErrUnauthorized, proxy.Address.Hex(), proxy.Admin.Hex(), initiator.Hex())
	}
	if proxy.AdminContract == (common.Address{}) {
		return nil, fmt.Errorf("proxy %s has no ProxyAdmin recorded", proxy.Address.Hex())
	}
	if params.NewAdmin == proxy.Admin {
		return nil, fmt.Errorf("%s already administers %s", params.NewAdmin.Hex(), proxy.Address.Hex())
	}

	all, err := uc.registry.ListProxies(ctx)
	if err != nil {
		return nil, err
	}
	affected := lo.Filter(all, func(p *models.Proxy, _ int) bool {
		return p.AdminContract == proxy.AdminContract && p.Admin == initiator
	})

	if !params.SkipConfirm && uc.confirmer != nil && !uc.cfg.NonInteractive {
		ok, err := uc.confirmer.Confirm(ctx, fmt.Sprintf("Transfer ProxyAdmin %s (%d proxies) to %s?",
			proxy.AdminContract.Hex(), len(affected), params.NewAdmin.Hex()))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("admin transfer %w", domain.ErrCancelled)
		}
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "submit", Message: "Transferring ProxyAdmin ownership", Spinner: true})
	receipt, err := submit(ctx, uc.submitter, uc.cfg.ConfirmTimeout, models.Transaction{
		Kind:          models.TxChangeAdmin,
		Proxy:         proxy.Address,
		AdminContract: proxy.AdminContract,
		NewAdmin:      params.NewAdmin,
	})
	if err != nil {
		return nil, err
	}

	owner, err := uc.submitter.OwnerOf(ctx, proxy.AdminContract)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner of %s: %w", proxy.AdminContract.Hex(), err)
	}
	if owner != params.NewAdmin {
		return nil, fmt.Errorf("ProxyAdmin %s is owned by %s after transfer to %s", proxy.AdminContract.Hex(), owner.Hex(), params.NewAdmin.Hex())
	}

	result = &TransferAdminResult{
		AdminContract: proxy.AdminContract,
		TxHash:        receipt.TxHash,
		Affected:      affected,
	}
	var errs []error
	for _, p := range affected {
		rec, err := uc.registry.RecordAdminChange(ctx, p.Address, initiator, params.NewAdmin, initiator, receipt.TxHash)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Address.Hex(), err))
			continue
		}
		result.Records = append(result.Records, rec)
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done"})
	uc.log.Info("admin transferred", "adminContract", proxy.AdminContract.Hex(), "to", params.NewAdmin.Hex(), "proxies", len(result.Records))
	return result, errors.Join(errs...)
}
