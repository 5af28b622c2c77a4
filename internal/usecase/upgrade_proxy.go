package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UpgradeProxyParams contains parameters for upgrading a proxy
type UpgradeProxyParams struct {
	Proxy       string // address or label
	ContractRef string // candidate artifact, "Name" or "path:Name"

	// Implementation is an already deployed candidate. When zero the
	// candidate is deployed from the artifact.
	Implementation common.Address

	// CallMethod and CallArgs optionally call a migration function in the
	// same transaction as the swap (upgradeAndCall)
	CallMethod string
	CallArgs   []string

	// SkipConfirm skips the interactive confirmation
	SkipConfirm bool
}

// UpgradeProxyResult contains the finished upgrade request
type UpgradeProxyResult struct {
	Request *models.UpgradeRequest
	Proxy   *models.Proxy
	Report  *layout.Report
}

// UpgradeProxy is the orchestrator swapping a proxy's implementation:
// Requested -> LayoutExtracted -> Verified -> Authorized -> Submitted -> Confirmed | Failed
type UpgradeProxy struct {
	cfg       *config.RuntimeConfig
	registry  ProxyRegistry
	artifacts ArtifactRepository
	submitter TransactionSubmitter
	signer    Signer
	encoder   CalldataEncoder
	layouts   *layout.Cache
	confirmer Confirmer
	tracer    trace.Tracer
	progress  ProgressSink
	log       *slog.Logger
	now       func() time.Time
}

// NewUpgradeProxy creates a new UpgradeProxy use case
func NewUpgradeProxy(
	cfg *config.RuntimeConfig,
	registry ProxyRegistry,
	artifacts ArtifactRepository,
	submitter TransactionSubmitter,
	signer Signer,
	encoder CalldataEncoder,
	layouts *layout.Cache,
	confirmer Confirmer,
	tracerProvider trace.TracerProvider,
	progress ProgressSink,
	log *slog.Logger,
) *UpgradeProxy {
	return &UpgradeProxy{
		cfg:       cfg,
		registry:  registry,
		artifacts: artifacts,
		submitter: submitter,
		signer:    signer,
		encoder:   encoder,
		layouts:   layouts,
		confirmer: confirmer,
		tracer:    tracerProvider.Tracer(tracerName),
		progress:  progress,
		log:       log.With("component", "UpgradeProxy"),
		now:       time.Now,
	}
}

// Run drives one upgrade request to a terminal state. A failed request is
// returned together with its *models.Failure as the error.
func (uc *UpgradeProxy) Run(ctx context.Context, params UpgradeProxyParams) (result *UpgradeProxyResult, err error) {
	req := &models.UpgradeRequest{
		ID:          uuid.NewString(),
		ContractRef: params.ContractRef,
		Candidate:   params.Implementation,
		Initiator:   uc.signer.Address(),
		State:       models.StateRequested,
		History:     []models.Transition{{State: models.StateRequested, At: uc.now()}},
	}
	result = &UpgradeProxyResult{Request: req}

	ctx, span := uc.tracer.Start(ctx, "UpgradeProxy",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("proxy", params.Proxy),
			attribute.String("contract", params.ContractRef),
		))
	defer func() { endSpan(span, err) }()

	log := uc.log.With("request", req.ID)
	fail := func(cause error, violations []domain.Violation) (*UpgradeProxyResult, error) {
		f := req.Fail(cause, violations, uc.now())
		stateEvent(span, models.StateFailed)
		log.Warn("upgrade failed", "stage", f.Stage, "error", cause)
		return result, f
	}
	advance := func(to models.RequestState) {
		req.Advance(to, uc.now())
		stateEvent(span, to)
		log.Debug("upgrade advanced", "state", to)
	}

	// Requested
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "resolve", Message: "Resolving proxy", Spinner: true})
	proxy, err := resolveProxy(ctx, uc.registry, params.Proxy)
	if err != nil {
		return fail(err, nil)
	}
	result.Proxy = proxy
	req.Proxy = proxy.Address
	span.SetAttributes(attribute.String("proxy.address", proxy.Address.Hex()))

	current, err := uc.registry.Current(ctx, proxy.Address)
	if err != nil {
		return fail(err, nil)
	}
	req.Expected = current.Address

	contract, err := uc.artifacts.GetContract(ctx, params.ContractRef)
	if err != nil {
		return fail(err, nil)
	}
	if contract.Artifact == nil {
		return fail(fmt.Errorf("%w: %s has no artifact", domain.ErrMetadataUnavailable, params.ContractRef), nil)
	}
	req.ContractRef = contract.Ref()

	if params.Implementation != (common.Address{}) {
		if err := checkCode(ctx, uc.submitter, params.Implementation, contract); err != nil {
			return fail(err, nil)
		}
	}

	if uc.isNoOp(current, contract, params.Implementation) {
		req.NoOp = true
		req.Cause = domain.ErrNoOpUpgrade
		advance(models.StateConfirmed)
		log.Info("candidate is already current", "implementation", current.Address.Hex())
		return result, nil
	}

	// LayoutExtracted
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "extract", Message: "Extracting storage layouts", Spinner: true})
	oldLayout, err := currentLayout(uc.layouts, current)
	if err != nil {
		return fail(err, nil)
	}
	newLayout, err := layout.Extract(contract.Artifact.StorageLayout)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", contract.Ref(), err), nil)
	}
	req.CurrentLayout = &oldLayout
	req.CandidateLayout = &newLayout
	advance(models.StateLayoutExtracted)

	// Verified
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "verify", Message: "Verifying storage compatibility", Spinner: true})
	report := layout.Verify(oldLayout, newLayout)
	result.Report = &report
	if !report.Compatible {
		req.Violations = report.Violations
		return fail(report.Err(), report.Violations)
	}
	advance(models.StateVerified)

	// Authorized
	if req.Initiator != proxy.Admin {
		return fail(fmt.Errorf("%w: %s is administered by %s, not %s",
			domain.ErrUnauthorized, proxy.Address.Hex(), proxy.Admin.Hex(), req.Initiator.Hex()), nil)
	}
	var callData []byte
	if params.CallMethod != "" {
		callData, err = uc.encoder.EncodeCall(contract.Artifact, params.CallMethod, params.CallArgs)
		if err != nil {
			return fail(fmt.Errorf("failed to encode %s: %w", params.CallMethod, err), nil)
		}
	}
	if !params.SkipConfirm && uc.confirmer != nil && !uc.cfg.NonInteractive {
		uc.progress.OnProgress(ctx, ProgressEvent{Stage: "confirm"})
		ok, err := uc.confirmer.Confirm(ctx, fmt.Sprintf("Upgrade %s to %s?", proxy.DisplayName(), contract.Ref()))
		if err != nil {
			return fail(err, nil)
		}
		if !ok {
			return fail(fmt.Errorf("upgrade %w", domain.ErrCancelled), nil)
		}
	}
	advance(models.StateAuthorized)

	// Submitted
	timeout := uc.cfg.ConfirmTimeout
	if req.Candidate == (common.Address{}) {
		uc.progress.OnProgress(ctx, ProgressEvent{Stage: "deploy", Message: "Deploying " + contract.Name, Spinner: true})
		receipt, err := submit(ctx, uc.submitter, timeout, models.Transaction{
			Kind:        models.TxDeployImplementation,
			ContractRef: contract.Ref(),
			Artifact:    contract.Artifact,
		})
		if err != nil {
			return fail(err, nil)
		}
		req.Candidate = receipt.ContractAddress
		log.Info("candidate deployed", "implementation", req.Candidate.Hex(), "tx", receipt.TxHash.Hex())
	}
	span.SetAttributes(attribute.String("candidate", req.Candidate.Hex()))

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "upgrade", Message: "Submitting upgrade", Spinner: true})
	advance(models.StateSubmitted)
	receipt, err := submit(ctx, uc.submitter, timeout, models.Transaction{
		Kind:           models.TxUpgrade,
		ContractRef:    contract.Ref(),
		Proxy:          proxy.Address,
		Implementation: req.Candidate,
		AdminContract:  proxy.AdminContract,
		InitData:       callData,
	})
	if err != nil {
		return fail(err, nil)
	}
	req.TxHash = receipt.TxHash

	// Confirmed
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "confirm", Message: "Confirming on-chain state", Spinner: true})
	onChain, err := uc.confirmedImplementation(ctx, proxy.Address, req.Candidate, receipt)
	if err != nil {
		return fail(err, nil)
	}
	if onChain != req.Candidate {
		return fail(fmt.Errorf("%w: proxy %s points at %s after our upgrade to %s",
			domain.ErrConcurrentUpgradeDetected, proxy.Address.Hex(), onChain.Hex(), req.Candidate.Hex()), nil)
	}

	impl := newImplementation(contract, req.Candidate, newLayout, uc.now())
	record, err := uc.registry.RecordUpgrade(ctx, proxy.Address, req.Expected, impl, req.Initiator, receipt.TxHash)
	if err != nil {
		if errors.Is(err, domain.ErrStaleRead) {
			return fail(fmt.Errorf("%w: %v", domain.ErrConcurrentUpgradeDetected, err), nil)
		}
		return fail(err, nil)
	}
	uc.layouts.Put(impl.Address, newLayout)
	req.Record = record
	advance(models.StateConfirmed)

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done", Message: "Upgrade confirmed"})
	log.Info("proxy upgraded", "proxy", proxy.Address.Hex(), "from", req.Expected.Hex(), "to", req.Candidate.Hex(), "version", record.Sequence)
	return result, nil
}

// isNoOp compares by address when the candidate is deployed, otherwise by
// the artifact's runtime bytecode hash
func (uc *UpgradeProxy) isNoOp(current *models.Implementation, contract *models.Contract, candidate common.Address) bool {
	if candidate != (common.Address{}) {
		return candidate == current.Address
	}
	return current.BytecodeHash != (common.Hash{}) && contract.Artifact.BytecodeHash() == current.BytecodeHash
}

// confirmedImplementation reads the implementation slot after the receipt.
// An Upgraded event in the receipt must agree with the candidate.
func (uc *UpgradeProxy) confirmedImplementation(ctx context.Context, proxy, candidate common.Address, receipt *models.Receipt) (common.Address, error) {
	if ev := receipt.ConfirmedImplementation; ev != nil && *ev != candidate {
		return *ev, nil
	}
	addr, err := uc.submitter.ImplementationOf(ctx, proxy)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read implementation slot: %w", err)
	}
	return addr, nil
}
