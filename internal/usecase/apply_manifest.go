package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// ApplyManifestParams contains parameters for applying a manifest
type ApplyManifestParams struct {
	Path        string
	SkipConfirm bool
}

// ManifestEntryResult is the outcome of one manifest entry
type ManifestEntryResult struct {
	Entry    models.ManifestProxy
	Skipped  bool
	Existing *models.Proxy
	Deploy   *DeployProxyResult
}

// ApplyManifestResult lists the outcome per entry, in manifest order
type ApplyManifestResult struct {
	Entries []ManifestEntryResult
}

// ApplyManifest deploys every manifest proxy not registered yet under its
// label. It stops at the first failed deployment.
type ApplyManifest struct {
	cfg      *config.RuntimeConfig
	loader   ManifestLoader
	registry ProxyRegistry
	deploy   *DeployProxy
	progress ProgressSink
}

// NewApplyManifest creates a new ApplyManifest use case
func NewApplyManifest(cfg *config.RuntimeConfig, loader ManifestLoader, registry ProxyRegistry, deploy *DeployProxy, progress ProgressSink) *ApplyManifest {
	return &ApplyManifest{
		cfg:      cfg,
		loader:   loader,
		registry: registry,
		deploy:   deploy,
		progress: progress,
	}
}

// Run executes the manifest
func (uc *ApplyManifest) Run(ctx context.Context, params ApplyManifestParams) (*ApplyManifestResult, error) {
	manifest, err := uc.loader.Load(ctx, params.Path)
	if err != nil {
		return nil, err
	}
	if manifest.Network != "" && uc.cfg.Network != nil && !strings.EqualFold(manifest.Network, uc.cfg.Network.Name) {
		return nil, fmt.Errorf("manifest targets network %q, current network is %q", manifest.Network, uc.cfg.Network.Name)
	}

	result := &ApplyManifestResult{}
	for i, entry := range manifest.Proxies {
		uc.progress.OnProgress(ctx, ProgressEvent{
			Stage:   "apply",
			Current: i + 1,
			Total:   len(manifest.Proxies),
			Message: fmt.Sprintf("%s (%s)", entry.Label, entry.Contract),
		})

		existing, err := uc.registry.FindByLabel(ctx, entry.Label)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return result, err
		}
		if existing != nil {
			result.Entries = append(result.Entries, ManifestEntryResult{Entry: entry, Skipped: true, Existing: existing})
			uc.progress.Info(fmt.Sprintf("%s already deployed at %s", entry.Label, existing.Address.Hex()))
			continue
		}

		deployed, err := uc.deploy.Run(ctx, DeployProxyParams{
			ContractRef: entry.Contract,
			Label:       entry.Label,
			InitArgs:    entry.Args,
			SkipConfirm: params.SkipConfirm,
		})
		result.Entries = append(result.Entries, ManifestEntryResult{Entry: entry, Deploy: deployed})
		if err != nil {
			return result, fmt.Errorf("%s: %w", entry.Label, err)
		}
	}
	return result, nil
}
