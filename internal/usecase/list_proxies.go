package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// ListProxiesParams filters the proxy listing
type ListProxiesParams struct {
	Admin    *common.Address // only proxies controlled by this authority
	Contract string          // only proxies whose current contract name or ref matches
}

// ProxyListResult contains the listed proxies
type ProxyListResult struct {
	Proxies []*models.Proxy
	Summary ProxySummary
}

// ProxySummary provides summary statistics
type ProxySummary struct {
	Total    int
	ByAdmin  map[common.Address]int
	Versions map[common.Address]int // proxy -> number of version records
}

// ListProxies lists registered proxies
type ListProxies struct {
	registry ProxyRegistry
	progress ProgressSink
}

// NewListProxies creates a new ListProxies use case
func NewListProxies(registry ProxyRegistry, progress ProgressSink) *ListProxies {
	return &ListProxies{registry: registry, progress: progress}
}

// Run executes the list use case
func (uc *ListProxies) Run(ctx context.Context, params ListProxiesParams) (*ProxyListResult, error) {
	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "loading", Message: "Loading proxies", Spinner: true})

	proxies, err := uc.registry.ListProxies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}

	proxies = lo.Filter(proxies, func(p *models.Proxy, _ int) bool {
		if params.Admin != nil && p.Admin != *params.Admin {
			return false
		}
		if params.Contract != "" && p.ContractRef != params.Contract && contractName(p.ContractRef) != params.Contract {
			return false
		}
		return true
	})

	summary := ProxySummary{
		Total:    len(proxies),
		ByAdmin:  lo.CountValuesBy(proxies, func(p *models.Proxy) common.Address { return p.Admin }),
		Versions: make(map[common.Address]int, len(proxies)),
	}
	for _, p := range proxies {
		history, err := uc.registry.History(ctx, p.Address)
		if err != nil {
			return nil, err
		}
		n := 0
		for range history {
			n++
		}
		summary.Versions[p.Address] = n
	}

	uc.progress.OnProgress(ctx, ProgressEvent{Stage: "done"})
	return &ProxyListResult{Proxies: proxies, Summary: summary}, nil
}

func contractName(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			return ref[i+1:]
		}
	}
	return ref
}
