package proxies

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
	"github.com/trebuchet-org/treb-proxy/internal/usecase"
)

// logStore is the durable half of the registry. append must run build and
// persist its entry atomically with respect to other appends for the same
// proxy; build sees nil for a proxy without a log. create persists a genesis
// entry after checking, in the same critical section, that neither the
// address nor the label is taken.
type logStore interface {
	load(ctx context.Context, proxy common.Address) (*proxyLog, error)
	append(ctx context.Context, proxy common.Address, build func(*proxyLog) (logEntry, error)) (logEntry, error)
	create(ctx context.Context, genesis logEntry) (logEntry, error)
	all(ctx context.Context) ([]*proxyLog, error)
}

// Registry is the proxy registry for a single chain
type Registry struct {
	chainID uint64
	store   logStore
	now     func() time.Time
}

var _ usecase.ProxyRegistry = (*Registry)(nil)

func newRegistry(chainID uint64, store logStore) *Registry {
	return &Registry{chainID: chainID, store: store, now: time.Now}
}

// WithClock replaces the time source used for AppliedAt
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// ChainID returns the chain this registry tracks
func (r *Registry) ChainID() uint64 {
	return r.chainID
}

// Register records a newly deployed proxy with its genesis version
func (r *Registry) Register(ctx context.Context, proxy *models.Proxy, impl *models.Implementation, initiator common.Address, txHash common.Hash) (*models.VersionRecord, error) {
	if proxy == nil || impl == nil {
		return nil, fmt.Errorf("register requires a proxy and an implementation")
	}
	if proxy.Address == (common.Address{}) || impl.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero proxy or implementation address", domain.ErrInvalidAddress)
	}
	if proxy.Implementation != (common.Address{}) && proxy.Implementation != impl.Address {
		return nil, fmt.Errorf("proxy %s points at %s, not the registered implementation %s",
			proxy.Address.Hex(), proxy.Implementation.Hex(), impl.Address.Hex())
	}

	p := *proxy
	if p.ChainID == 0 {
		p.ChainID = r.chainID
	}
	if p.ChainID != r.chainID {
		return nil, fmt.Errorf("proxy is on chain %d, registry tracks chain %d", p.ChainID, r.chainID)
	}

	entry, err := r.store.create(ctx, genesisEntry(p, cloneImplementation(impl), initiator, txHash, r.now()))
	if err != nil {
		return nil, err
	}

	record := *entry.Version
	return &record, nil
}

// RecordUpgrade appends a version record if the proxy still points at
// expectedCurrent. The check and the append are atomic.
func (r *Registry) RecordUpgrade(ctx context.Context, proxy, expectedCurrent common.Address, impl *models.Implementation, initiator common.Address, txHash common.Hash) (*models.VersionRecord, error) {
	if impl == nil || impl.Address == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero implementation address", domain.ErrInvalidAddress)
	}

	stored := cloneImplementation(impl)
	entry, err := r.store.append(ctx, proxy, func(existing *proxyLog) (logEntry, error) {
		if existing == nil {
			return logEntry{}, fmt.Errorf("%w: %s", domain.ErrUnknownProxy, proxy.Hex())
		}
		return existing.upgradeEntry(expectedCurrent, stored, initiator, txHash, r.now())
	})
	if err != nil {
		return nil, err
	}

	record := *entry.Version
	return &record, nil
}

// RecordAdminChange appends an admin record if the proxy is still
// administered by expectedAdmin. Admin changes never create versions.
func (r *Registry) RecordAdminChange(ctx context.Context, proxy, expectedAdmin, newAdmin, initiator common.Address, txHash common.Hash) (*models.AdminRecord, error) {
	if newAdmin == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero admin address", domain.ErrInvalidAddress)
	}

	entry, err := r.store.append(ctx, proxy, func(existing *proxyLog) (logEntry, error) {
		if existing == nil {
			return logEntry{}, fmt.Errorf("%w: %s", domain.ErrUnknownProxy, proxy.Hex())
		}
		return existing.adminEntry(expectedAdmin, newAdmin, initiator, txHash, r.now())
	})
	if err != nil {
		return nil, err
	}

	record := *entry.Admin
	return &record, nil
}

// Current returns the implementation the proxy points at
func (r *Registry) Current(ctx context.Context, proxy common.Address) (*models.Implementation, error) {
	l, err := r.mustLoad(ctx, proxy)
	if err != nil {
		return nil, err
	}
	return cloneImplementation(l.current()), nil
}

// History returns the proxy's version records in order. The sequence is a
// snapshot taken at call time and can be iterated more than once.
func (r *Registry) History(ctx context.Context, proxy common.Address) (iter.Seq[models.VersionRecord], error) {
	l, err := r.mustLoad(ctx, proxy)
	if err != nil {
		return nil, err
	}
	return snapshot(l.versions), nil
}

// AdminHistory returns the proxy's admin records in order
func (r *Registry) AdminHistory(ctx context.Context, proxy common.Address) (iter.Seq[models.AdminRecord], error) {
	l, err := r.mustLoad(ctx, proxy)
	if err != nil {
		return nil, err
	}
	return snapshot(l.admins), nil
}

// GetProxy returns the current state of a proxy
func (r *Registry) GetProxy(ctx context.Context, proxy common.Address) (*models.Proxy, error) {
	l, err := r.mustLoad(ctx, proxy)
	if err != nil {
		return nil, err
	}
	p := l.proxy
	return &p, nil
}

// ListProxies returns every registered proxy, oldest first
func (r *Registry) ListProxies(ctx context.Context) ([]*models.Proxy, error) {
	logs, err := r.store.all(ctx)
	if err != nil {
		return nil, err
	}

	proxies := lo.Map(logs, func(l *proxyLog, _ int) *models.Proxy {
		p := l.proxy
		return &p
	})
	sort.SliceStable(proxies, func(i, j int) bool {
		if !proxies[i].CreatedAt.Equal(proxies[j].CreatedAt) {
			return proxies[i].CreatedAt.Before(proxies[j].CreatedAt)
		}
		return proxies[i].Address.Cmp(proxies[j].Address) < 0
	})
	return proxies, nil
}

// FindByLabel returns the proxy registered under label
func (r *Registry) FindByLabel(ctx context.Context, label string) (*models.Proxy, error) {
	proxies, err := r.ListProxies(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := lo.Find(proxies, func(p *models.Proxy) bool { return p.Label == label })
	if !ok {
		return nil, fmt.Errorf("proxy labelled %q: %w", label, domain.ErrNotFound)
	}
	return p, nil
}

// GetImplementation returns an implementation recorded for any proxy
func (r *Registry) GetImplementation(ctx context.Context, impl common.Address) (*models.Implementation, error) {
	logs, err := r.store.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range logs {
		if found, ok := l.impls[impl]; ok {
			return cloneImplementation(found), nil
		}
	}
	return nil, fmt.Errorf("implementation %s: %w", impl.Hex(), domain.ErrNotFound)
}

// ControlledBy returns the proxies an admin currently controls
func (r *Registry) ControlledBy(ctx context.Context, admin common.Address) (*models.AdminController, error) {
	proxies, err := r.ListProxies(ctx)
	if err != nil {
		return nil, err
	}
	controlled := lo.FilterMap(proxies, func(p *models.Proxy, _ int) (common.Address, bool) {
		return p.Address, p.Admin == admin
	})
	return &models.AdminController{Address: admin, ControlledProxies: controlled}, nil
}

func duplicateAddress(proxy common.Address) error {
	return fmt.Errorf("%w: %s", domain.ErrDuplicateProxy, proxy.Hex())
}

func duplicateLabel(label string, owner common.Address) error {
	return fmt.Errorf("%w: label %q is already used by %s", domain.ErrDuplicateProxy, label, owner.Hex())
}

func (r *Registry) mustLoad(ctx context.Context, proxy common.Address) (*proxyLog, error) {
	l, err := r.store.load(ctx, proxy)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProxy, proxy.Hex())
	}
	return l, nil
}

func snapshot[T any](records []T) iter.Seq[T] {
	frozen := append([]T(nil), records...)
	return func(yield func(T) bool) {
		for _, rec := range frozen {
			if !yield(rec) {
				return
			}
		}
	}
}

func cloneImplementation(impl *models.Implementation) *models.Implementation {
	if impl == nil {
		return nil
	}
	c := *impl
	c.Layout.Entries = append([]models.Slot(nil), impl.Layout.Entries...)
	return &c
}
