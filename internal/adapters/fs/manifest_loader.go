package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
	"gopkg.in/yaml.v3"
)

// ManifestLoader reads proxy manifests from YAML files
type ManifestLoader struct {
	projectRoot string
}

var _ usecase.ManifestLoader = (*ManifestLoader)(nil)

// NewManifestLoader creates a loader resolving relative paths against the
// project root
func NewManifestLoader(cfg *config.RuntimeConfig) *ManifestLoader {
	return &ManifestLoader{projectRoot: cfg.ProjectRoot}
}

// Load parses and validates the manifest at path. ${VAR} references in
// arguments are expanded from the environment.
func (l *ManifestLoader) Load(ctx context.Context, path string) (*models.Manifest, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.projectRoot, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	manifest, err := decodeManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return manifest, nil
}

func decodeManifest(r io.Reader) (*models.Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var manifest models.Manifest
	if err := dec.Decode(&manifest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if len(manifest.Proxies) == 0 {
		return nil, fmt.Errorf("manifest lists no proxies")
	}
	seen := make(map[string]int, len(manifest.Proxies))
	for i := range manifest.Proxies {
		entry := &manifest.Proxies[i]
		if entry.Contract == "" {
			return nil, fmt.Errorf("proxies[%d]: contract is required", i)
		}
		if entry.Label == "" {
			return nil, fmt.Errorf("proxies[%d] (%s): label is required", i, entry.Contract)
		}
		if prev, dup := seen[entry.Label]; dup {
			return nil, fmt.Errorf("proxies[%d]: label %q already used by proxies[%d]", i, entry.Label, prev)
		}
		seen[entry.Label] = i
		for j, arg := range entry.Args {
			entry.Args[j] = os.ExpandEnv(arg)
		}
	}
	return &manifest, nil
}
