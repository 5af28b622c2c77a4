package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// Repository indexes the Foundry artifacts under the project's out directory
type Repository struct {
	outDir  string
	builder usecase.ContractBuilder
	log     *slog.Logger

	mu                sync.RWMutex
	indexed           bool
	contracts         map[string]*models.Contract   // key: "path:Name"
	contractNames     map[string][]*models.Contract // key: Name
	bytecodeHashIndex map[common.Hash]*models.Contract
}

var _ usecase.ArtifactRepository = (*Repository)(nil)

// NewRepository creates a repository over outDir. When builder is not nil
// it runs once before the first lookup.
func NewRepository(outDir string, builder usecase.ContractBuilder, log *slog.Logger) *Repository {
	return &Repository{
		outDir:  outDir,
		builder: builder,
		log:     log.With("component", "ContractRepository"),
	}
}

// ProvideRepository creates the repository for the active profile's out dir
func ProvideRepository(cfg *config.RuntimeConfig, builder usecase.ContractBuilder, log *slog.Logger) *Repository {
	return NewRepository(OutDir(cfg), builder, log)
}

// OutDir returns the artifact directory of the active profile
func OutDir(cfg *config.RuntimeConfig) string {
	out := "out"
	if cfg.FoundryConfig != nil {
		for _, name := range []string{cfg.Namespace, "default"} {
			if p, ok := cfg.FoundryConfig.Profile[name]; ok && p.OutPath != "" {
				out = p.OutPath
				break
			}
		}
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(cfg.ProjectRoot, out)
}

// Index builds the project if needed and indexes every artifact
func (r *Repository) Index(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexed {
		return nil
	}

	if r.builder != nil {
		if err := r.builder.Build(ctx); err != nil {
			return fmt.Errorf("failed to build contracts: %w", err)
		}
	}

	if _, err := os.Stat(r.outDir); os.IsNotExist(err) {
		return fmt.Errorf("artifact directory %s not found, run forge build first", r.outDir)
	}

	r.contracts = make(map[string]*models.Contract)
	r.contractNames = make(map[string][]*models.Contract)
	r.bytecodeHashIndex = make(map[common.Hash]*models.Contract)

	err := filepath.WalkDir(r.outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		return r.processArtifact(path)
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", r.outDir, err)
	}

	r.indexed = true
	r.log.Debug("indexed artifacts", "dir", r.outDir, "contracts", len(r.contracts))
	return nil
}

func (r *Repository) processArtifact(artifactPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return err
	}

	var artifact models.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		r.log.Debug("skipping unreadable artifact", "path", artifactPath, "error", err)
		return nil
	}

	// interfaces and abstract contracts
	if artifact.Bytecode.Object == "" || artifact.Bytecode.Object == "0x" {
		return nil
	}

	var contractName, sourceName string
	for source, contract := range artifact.Metadata.Settings.CompilationTarget {
		sourceName = source
		contractName = contract
		break
	}
	if contractName == "" || sourceName == "" {
		return nil
	}

	relArtifactPath, err := filepath.Rel(r.outDir, artifactPath)
	if err != nil {
		relArtifactPath = artifactPath
	}

	info := &models.Contract{
		Name:         contractName,
		Path:         sourceName,
		ArtifactPath: relArtifactPath,
		Artifact:     &artifact,
	}

	r.contracts[info.Ref()] = info
	r.contractNames[info.Name] = append(r.contractNames[info.Name], info)
	if len(artifact.DeployedBytecode.Bytes()) > 0 {
		r.bytecodeHashIndex[artifact.BytecodeHash()] = info
	}
	return nil
}

// GetContract resolves "Name" or "path:Name". A bare name shared by several
// sources is ambiguous.
func (r *Repository) GetContract(ctx context.Context, ref string) (*models.Contract, error) {
	if err := r.Index(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contract, ok := r.contracts[ref]; ok {
		return contract, nil
	}
	if strings.Contains(ref, ":") {
		return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
	}

	matches := r.contractNames[ref]
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrContractNotFound, ref)
	case 1:
		return matches[0], nil
	}

	refs := make([]string, len(matches))
	for i, c := range matches {
		refs[i] = c.Ref()
	}
	sort.Strings(refs)
	return nil, fmt.Errorf("contract name %s is ambiguous, use one of: %s", ref, strings.Join(refs, ", "))
}

// ListContracts returns every indexed contract sorted by reference
func (r *Repository) ListContracts(ctx context.Context) []*models.Contract {
	if err := r.Index(ctx); err != nil {
		r.log.Warn("failed to index artifacts", "error", err)
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ref() < result[j].Ref() })
	return result
}

// FindByBytecodeHash finds the contract whose deployed bytecode hashes to hash
func (r *Repository) FindByBytecodeHash(ctx context.Context, hash common.Hash) (*models.Contract, error) {
	if err := r.Index(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contract, ok := r.bytecodeHashIndex[hash]; ok {
		return contract, nil
	}
	return nil, fmt.Errorf("%w: no artifact with runtime code hash %s", domain.ErrContractNotFound, hash.Hex())
}
