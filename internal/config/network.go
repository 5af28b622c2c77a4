package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
)

// ChainIDFetcher asks an RPC endpoint for its chain id
type ChainIDFetcher func(ctx context.Context, rpcURL string) (uint64, error)

// NetworkResolver resolves network names to configurations, caching chain
// ids in <project>/cache/chainIds.json
type NetworkResolver struct {
	projectRoot   string
	foundryConfig *config.FoundryConfig
	fetch         ChainIDFetcher

	mu    sync.Mutex
	cache *networkCache
}

type networkCache struct {
	RPCs      map[string]uint64 `json:"rpcs"` // rpcURL -> chainID
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewNetworkResolver creates a new network resolver
func NewNetworkResolver(projectRoot string, foundryConfig *config.FoundryConfig) *NetworkResolver {
	return NewNetworkResolverWithFetcher(projectRoot, foundryConfig, fetchChainID)
}

// NewNetworkResolverWithFetcher creates a resolver with a custom chain id source
func NewNetworkResolverWithFetcher(projectRoot string, foundryConfig *config.FoundryConfig, fetch ChainIDFetcher) *NetworkResolver {
	r := &NetworkResolver{
		projectRoot:   projectRoot,
		foundryConfig: foundryConfig,
		fetch:         fetch,
	}
	r.loadCache()
	return r
}

// Resolve resolves a network name to its configuration
func (r *NetworkResolver) Resolve(networkName string) (*config.Network, error) {
	rpcURL, exists := r.foundryConfig.RpcEndpoints[networkName]
	if !exists {
		return nil, fmt.Errorf("network '%s' not found in foundry.toml [rpc_endpoints]", networkName)
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("network '%s' has an empty RPC URL (is its env var set?)", networkName)
	}

	r.mu.Lock()
	chainID, cached := r.cache.RPCs[rpcURL]
	r.mu.Unlock()

	if !cached {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fetched, err := r.fetch(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chain ID for network %s: %w", networkName, err)
		}
		chainID = fetched
		r.remember(rpcURL, chainID)
	}

	var explorer string
	if es, ok := r.foundryConfig.Etherscan[networkName]; ok {
		explorer = es.URL
	}

	return &config.Network{
		Name:        networkName,
		RPCURL:      rpcURL,
		ChainID:     chainID,
		ExplorerURL: explorer,
	}, nil
}

func fetchChainID(ctx context.Context, rpcURL string) (uint64, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId failed: %w", err)
	}
	return id.Uint64(), nil
}

func (r *NetworkResolver) cachePath() string {
	return filepath.Join(r.projectRoot, "cache", "chainIds.json")
}

func (r *NetworkResolver) loadCache() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = &networkCache{RPCs: make(map[string]uint64)}

	data, err := os.ReadFile(r.cachePath())
	if err != nil {
		return
	}
	var loaded networkCache
	if err := json.Unmarshal(data, &loaded); err != nil || loaded.RPCs == nil {
		// corrupt cache, start fresh
		return
	}
	r.cache = &loaded
}

func (r *NetworkResolver) remember(rpcURL string, chainID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.RPCs[rpcURL] = chainID
	r.cache.UpdatedAt = time.Now()

	// the cache only saves round trips, a failed write is not an error
	if err := os.MkdirAll(filepath.Dir(r.cachePath()), 0755); err != nil {
		return
	}
	data, err := json.MarshalIndent(r.cache, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(r.cachePath(), data, 0644)
}
