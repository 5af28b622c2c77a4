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

// DeployProxyParams contains parameters for deploying a new proxy
type DeployProxyParams struct {
	ContractRef string
	Label       string

	// InitMethod defaults to the configured initializer. It is called
	// through the proxy constructor so it runs exactly once.
	InitMethod string
	InitArgs   []string

	SkipConfirm bool
}

// DeployProxyResult contains the finished deploy request
type DeployProxyResult struct {
	Request *models.DeployRequest
	// AdminDeployed is set when a new ProxyAdmin was deployed for this proxy
	AdminDeployed bool
}

// DeployProxy deploys an implementation behind a new transparent proxy and
// records its genesis version:
// Requested -> Authorized -> Submitted -> Confirmed | Failed
type DeployProxy struct {
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

// NewDeployProxy creates a new DeployProxy use case
func NewDeployProxy(
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
) *DeployProxy {
	return &DeployProxy{
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
		log:       log.With("component", "DeployProxy"),
		now:       time.Now,
	}
}

// Run deploys the implementation, a ProxyAdmin when none is configured or
// registered yet, and the proxy itself
func (uc *DeployProxy) Run(ctx context.Context, params DeployProxyParams) (result *DeployProxyResult, err error) {
	req := &models.DeployRequest{
		ID:          uuid.NewString(),
		ContractRef: params.ContractRef,
		Label:       params.Label,
		InitArgs:    params.InitArgs,
		Initiator:   uc.signer.Address(),
		State:       models.StateRequested,
		History:     []models.Transition{{State: models.StateRequested, At: uc.now()}},
	}
	result = &DeployProxyResult{Request: req}

	ctx, span := uc.tracer.Start(ctx, "DeployProxy",
		trace.WithAttributes(
			attribute.String("request.id", req.ID),
			attribute.String("contract", params.ContractRef),
			attribute.String("label", params.Label),
		))
	defer func() { endSpan(span, err) }()

	log := uc.log.With("request", req.ID)
	fail := func(cause error) (*DeployProxyResult, error) {
		f := req.Fail(cause, uc.now())
		stateEvent(span, models.StateFailed)
		log.Warn("deploy failed", "stage", f.Stage, "error", cause)
		return result, f
	}
	advance := func(to models.RequestState) {
		req.Advance(to, uc.now())
		stateEvent(span, to)
		log.Debug("deploy advanced", "state", to)
	}

	// Requested
	if params.Label != "" {
		existing, err := uc.registry.FindByLabel(ctx, params.Label)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fail(err)
		}
		if existing != nil {
			return fail(fmt.Errorf("%w: label %q is used by %s", domain.ErrDuplicateProxy, params.Label, existing.Address.Hex()))
		}
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "extract", Message: "Loading " + params.ContractRef, Spinner: true})
	contract, implLayout, err := loadCandidate(ctx, uc.artifacts, params.ContractRef)
	if err != nil {
		return fail(err)
	}
	req.ContractRef = contract.Ref()

	proxyCfg := uc.cfg.Proxy()
	proxyContract, err := uc.artifacts.GetContract(ctx, proxyCfg.ProxyArtifact)
	if err != nil {
		return fail(fmt.Errorf("proxy artifact %s: %w", proxyCfg.ProxyArtifact, err))
	}

	initData, err := uc.initData(contract, proxyCfg, params)
	if err != nil {
		return fail(err)
	}

	// Authorized: the initiator becomes the proxy's admin authority
	adminContract, err := uc.existingAdmin(ctx, proxyCfg)
	if err != nil {
		return fail(err)
	}
	if !params.SkipConfirm && uc.confirmer != nil && !uc.cfg.NonInteractive {
		ok, err := uc.confirmer.Confirm(ctx, fmt.Sprintf("Deploy %s behind a new proxy?", contract.Ref()))
		if err != nil {
			return fail(err)
		}
		if !ok {
			return fail(fmt.Errorf("deploy %w", domain.ErrCancelled))
		}
	}
	advance(models.StateAuthorized)

	// Submitted
	advance(models.StateSubmitted)
	timeout := uc.cfg.ConfirmTimeout

	if adminContract == (common.Address{}) {
		adminArtifact, err := uc.artifacts.GetContract(ctx, proxyCfg.AdminArtifact)
		if err != nil {
			return fail(fmt.Errorf("proxy admin artifact %s: %w", proxyCfg.AdminArtifact, err))
		}
		uc.progress.OnProgress(ctx, ProgressEvent{Stage: "admin", Message: "Deploying ProxyAdmin", Spinner: true})
		receipt, err := submit(ctx, uc.submitter, timeout, models.Transaction{
			Kind:        models.TxDeployProxyAdmin,
			ContractRef: adminArtifact.Ref(),
			Artifact:    adminArtifact.Artifact,
			Admin:       req.Initiator,
		})
		if err != nil {
			return fail(err)
		}
		adminContract = receipt.ContractAddress
		result.AdminDeployed = true
		log.Info("proxy admin deployed", "address", adminContract.Hex())
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "deploy", Message: "Deploying " + contract.Name, Spinner: true})
	implReceipt, err := submit(ctx, uc.submitter, timeout, models.Transaction{
		Kind:        models.TxDeployImplementation,
		ContractRef: contract.Ref(),
		Artifact:    contract.Artifact,
	})
	if err != nil {
		return fail(err)
	}
	impl := newImplementation(contract, implReceipt.ContractAddress, implLayout, uc.now())
	req.Implementation = impl

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "proxy", Message: "Deploying proxy", Spinner: true})
	proxyReceipt, err := submit(ctx, uc.submitter, timeout, models.Transaction{
		Kind:           models.TxDeployProxy,
		ContractRef:    proxyContract.Ref(),
		Artifact:       proxyContract.Artifact,
		Implementation: impl.Address,
		AdminContract:  adminContract,
		Admin:          req.Initiator,
		InitData:       initData,
	})
	if err != nil {
		return fail(err)
	}

	// Confirmed
	onChain, err := uc.submitter.ImplementationOf(ctx, proxyReceipt.ContractAddress)
	if err != nil {
		return fail(fmt.Errorf("failed to read implementation slot: %w", err))
	}
	if onChain != impl.Address {
		return fail(fmt.Errorf("proxy %s points at %s, expected %s",
			proxyReceipt.ContractAddress.Hex(), onChain.Hex(), impl.Address.Hex()))
	}

	proxy := &models.Proxy{
		Address:        proxyReceipt.ContractAddress,
		ChainID:        uc.cfg.ChainID(),
		Label:          params.Label,
		ContractRef:    contract.Ref(),
		Implementation: impl.Address,
		Admin:          req.Initiator,
		AdminContract:  adminContract,
	}
	record, err := uc.registry.Register(ctx, proxy, impl, req.Initiator, proxyReceipt.TxHash)
	if err != nil {
		return fail(err)
	}
	if registered, err := uc.registry.GetProxy(ctx, proxy.Address); err == nil {
		proxy = registered
	}
	uc.layouts.Put(impl.Address, implLayout)
	req.Proxy = proxy
	req.Record = record
	advance(models.StateConfirmed)

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done", Message: "Proxy deployed"})
	log.Info("proxy deployed", "proxy", proxy.Address.Hex(), "implementation", impl.Address.Hex(), "admin", adminContract.Hex())
	return result, nil
}

// initData encodes the initializer call. A contract without the initializer
// and without arguments gets an empty call.
func (uc *DeployProxy) initData(contract *models.Contract, proxyCfg config.ProxyConfig, params DeployProxyParams) ([]byte, error) {
	method := params.InitMethod
	explicit := method != ""
	if !explicit {
		method = proxyCfg.Initializer
	}

	data, err := uc.encoder.EncodeCall(contract.Artifact, method, params.InitArgs)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && !explicit && len(params.InitArgs) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	return data, nil
}

// existingAdmin returns the ProxyAdmin to reuse: the configured one, or the
// one already used by the initiator's registered proxies. The zero address
// means a new ProxyAdmin is deployed.
func (uc *DeployProxy) existingAdmin(ctx context.Context, proxyCfg config.ProxyConfig) (common.Address, error) {
	initiator := uc.signer.Address()

	if proxyCfg.AdminContract != "" {
		if !common.IsHexAddress(proxyCfg.AdminContract) {
			return common.Address{}, fmt.Errorf("%w: proxy.admin_contract %q", domain.ErrInvalidAddress, proxyCfg.AdminContract)
		}
		admin := common.HexToAddress(proxyCfg.AdminContract)
		owner, err := uc.submitter.OwnerOf(ctx, admin)
		if err != nil {
			return common.Address{}, fmt.Errorf("failed to read owner of %s: %w", admin.Hex(), err)
		}
		if owner != initiator {
			return common.Address{}, fmt.Errorf("%w: ProxyAdmin %s is owned by %s", domain.ErrUnauthorized, admin.Hex(), owner.Hex())
		}
		return admin, nil
	}

	controlled, err := uc.registry.ControlledBy(ctx, initiator)
	if err != nil {
		return common.Address{}, err
	}
	for _, addr := range controlled.ControlledProxies {
		p, err := uc.registry.GetProxy(ctx, addr)
		if err != nil {
			return common.Address{}, err
		}
		if p.AdminContract != (common.Address{}) {
			return p.AdminContract, nil
		}
	}
	return common.Address{}, nil
}
