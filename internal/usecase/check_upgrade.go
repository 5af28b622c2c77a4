package usecase

import (
	"context"

	"github.com/trebuchet-org/treb-proxy/internal/domain/layout"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// CheckUpgradeParams contains parameters for a dry-run compatibility check
type CheckUpgradeParams struct {
	Proxy       string
	ContractRef string
}

// CheckUpgradeResult is the verification outcome without any submission
type CheckUpgradeResult struct {
	Proxy           *models.Proxy
	Current         *models.Implementation
	CandidateRef    string
	CandidateLayout models.StorageLayout
	Report          layout.Report
	NoOp            bool
}

// CheckUpgrade extracts and verifies a candidate layout against a proxy's
// current implementation
type CheckUpgrade struct {
	registry  ProxyRegistry
	artifacts ArtifactRepository
	layouts   *layout.Cache
	progress  ProgressSink
}

// NewCheckUpgrade creates a new CheckUpgrade use case
func NewCheckUpgrade(registry ProxyRegistry, artifacts ArtifactRepository, layouts *layout.Cache, progress ProgressSink) *CheckUpgrade {
	return &CheckUpgrade{
		registry:  registry,
		artifacts: artifacts,
		layouts:   layouts,
		progress:  progress,
	}
}

// Run executes the check
func (uc *CheckUpgrade) Run(ctx context.Context, params CheckUpgradeParams) (*CheckUpgradeResult, error) {
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "check", Message: "Checking storage compatibility", Spinner: true})

	proxy, err := resolveProxy(ctx, uc.registry, params.Proxy)
	if err != nil {
		return nil, err
	}
	current, err := uc.registry.Current(ctx, proxy.Address)
	if err != nil {
		return nil, err
	}

	contract, candidate, err := loadCandidate(ctx, uc.artifacts, params.ContractRef)
	if err != nil {
		return nil, err
	}
	old, err := currentLayout(uc.layouts, current)
	if err != nil {
		return nil, err
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done"})
	return &CheckUpgradeResult{
		Proxy:           proxy,
		Current:         current,
		CandidateRef:    contract.Ref(),
		CandidateLayout: candidate,
		Report:          layout.Verify(old, candidate),
		NoOp:            current.BytecodeHash != [32]byte{} && contract.Artifact.BytecodeHash() == current.BytecodeHash,
	}, nil
}
