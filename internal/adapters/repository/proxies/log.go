// Package proxies persists the proxy registry as one append-only log per
// proxy. Each log starts with a genesis entry followed by upgrade and admin
// entries; a proxy's current state is the replay of its log.
package proxies

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

type entryKind string

const (
	entryGenesis entryKind = "genesis"
	entryUpgrade entryKind = "upgrade"
	entryAdmin   entryKind = "admin"
)

// logEntry is one line of a proxy log
type logEntry struct {
	Seq            uint64                 `json:"seq"`
	Kind           entryKind              `json:"kind"`
	Proxy          *models.Proxy          `json:"proxy,omitempty"`
	Implementation *models.Implementation `json:"implementation,omitempty"`
	Version        *models.VersionRecord  `json:"version,omitempty"`
	Admin          *models.AdminRecord    `json:"admin,omitempty"`
}

// proxyLog is the replayed state of a single proxy
type proxyLog struct {
	seq      uint64
	proxy    models.Proxy
	impls    map[common.Address]*models.Implementation
	versions []models.VersionRecord
	admins   []models.AdminRecord
}

func replay(entries []logEntry) (*proxyLog, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	var l *proxyLog
	for i, e := range entries {
		if i == 0 {
			if e.Kind != entryGenesis {
				return nil, fmt.Errorf("log starts with %s entry, expected genesis", e.Kind)
			}
			l = &proxyLog{impls: make(map[common.Address]*models.Implementation)}
		}
		if err := l.apply(e); err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.Seq, err)
		}
	}
	return l, nil
}

func (l *proxyLog) apply(e logEntry) error {
	if e.Seq != l.seq+1 {
		return fmt.Errorf("sequence gap: got %d after %d", e.Seq, l.seq)
	}

	switch e.Kind {
	case entryGenesis:
		if l.seq != 0 {
			return fmt.Errorf("genesis entry after %d entries", l.seq)
		}
		if e.Proxy == nil || e.Implementation == nil || e.Version == nil {
			return fmt.Errorf("incomplete genesis entry")
		}
		l.proxy = *e.Proxy
		l.impls[e.Implementation.Address] = e.Implementation
		l.versions = append(l.versions, *e.Version)
		if e.Admin != nil {
			l.admins = append(l.admins, *e.Admin)
		}

	case entryUpgrade:
		if e.Implementation == nil || e.Version == nil {
			return fmt.Errorf("incomplete upgrade entry")
		}
		if e.Version.Sequence != uint64(len(l.versions))+1 {
			return fmt.Errorf("version %d does not follow %d", e.Version.Sequence, len(l.versions))
		}
		// implementation records are immutable; a rollback reuses the first one
		impl, ok := l.impls[e.Implementation.Address]
		if !ok {
			impl = e.Implementation
			l.impls[impl.Address] = impl
		}
		l.versions = append(l.versions, *e.Version)
		l.proxy.Implementation = impl.Address
		l.proxy.ContractRef = impl.ContractRef

	case entryAdmin:
		if e.Admin == nil {
			return fmt.Errorf("incomplete admin entry")
		}
		l.admins = append(l.admins, *e.Admin)
		l.proxy.Admin = e.Admin.NewAdmin

	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}

	l.seq = e.Seq
	return nil
}

func (l *proxyLog) clone() *proxyLog {
	if l == nil {
		return nil
	}
	c := &proxyLog{
		seq:      l.seq,
		proxy:    l.proxy,
		impls:    make(map[common.Address]*models.Implementation, len(l.impls)),
		versions: append([]models.VersionRecord(nil), l.versions...),
		admins:   append([]models.AdminRecord(nil), l.admins...),
	}
	for addr, impl := range l.impls {
		c.impls[addr] = impl
	}
	return c
}

func (l *proxyLog) lastVersion() models.VersionRecord {
	return l.versions[len(l.versions)-1]
}

func (l *proxyLog) current() *models.Implementation {
	return l.impls[l.proxy.Implementation]
}

// nextTime keeps AppliedAt strictly increasing even if the clock does not
func nextTime(now, last time.Time) time.Time {
	if now.After(last) {
		return now
	}
	return last.Add(time.Nanosecond)
}

func genesisEntry(proxy models.Proxy, impl *models.Implementation, initiator common.Address, txHash common.Hash, now time.Time) logEntry {
	proxy.CreatedAt = now
	proxy.Implementation = impl.Address
	return logEntry{
		Seq:            1,
		Kind:           entryGenesis,
		Proxy:          &proxy,
		Implementation: impl,
		Version: &models.VersionRecord{
			Sequence:              1,
			ProxyAddress:          proxy.Address,
			ImplementationAddress: impl.Address,
			LayoutHash:            impl.LayoutHash,
			AppliedAt:             now,
			Initiator:             initiator,
			TxHash:                txHash,
		},
		Admin: &models.AdminRecord{
			Sequence:     1,
			ProxyAddress: proxy.Address,
			NewAdmin:     proxy.Admin,
			AppliedAt:    now,
			Initiator:    initiator,
			TxHash:       txHash,
		},
	}
}

func (l *proxyLog) upgradeEntry(expected common.Address, impl *models.Implementation, initiator common.Address, txHash common.Hash, now time.Time) (logEntry, error) {
	if l.proxy.Implementation != expected {
		return logEntry{}, fmt.Errorf("%w: proxy %s points at %s, caller expected %s",
			domain.ErrStaleRead, l.proxy.Address.Hex(), l.proxy.Implementation.Hex(), expected.Hex())
	}
	if impl.Address == l.proxy.Implementation {
		return logEntry{}, fmt.Errorf("%w: %s", domain.ErrNoOpUpgrade, impl.Address.Hex())
	}
	if known, ok := l.impls[impl.Address]; ok {
		impl = known
	}

	last := l.lastVersion()
	return logEntry{
		Seq:            l.seq + 1,
		Kind:           entryUpgrade,
		Implementation: impl,
		Version: &models.VersionRecord{
			Sequence:              last.Sequence + 1,
			ProxyAddress:          l.proxy.Address,
			ImplementationAddress: impl.Address,
			LayoutHash:            impl.LayoutHash,
			AppliedAt:             nextTime(now, last.AppliedAt),
			Initiator:             initiator,
			TxHash:                txHash,
		},
	}, nil
}

func (l *proxyLog) adminEntry(expected, newAdmin, initiator common.Address, txHash common.Hash, now time.Time) (logEntry, error) {
	if l.proxy.Admin != expected {
		return logEntry{}, fmt.Errorf("%w: proxy %s is administered by %s, caller expected %s",
			domain.ErrStaleRead, l.proxy.Address.Hex(), l.proxy.Admin.Hex(), expected.Hex())
	}

	var (
		seq  uint64 = 1
		prev time.Time
	)
	if n := len(l.admins); n > 0 {
		seq = l.admins[n-1].Sequence + 1
		prev = l.admins[n-1].AppliedAt
	}
	return logEntry{
		Seq:  l.seq + 1,
		Kind: entryAdmin,
		Admin: &models.AdminRecord{
			Sequence:      seq,
			ProxyAddress:  l.proxy.Address,
			PreviousAdmin: expected,
			NewAdmin:      newAdmin,
			AppliedAt:     nextTime(now, prev),
			Initiator:     initiator,
			TxHash:        txHash,
		},
	}, nil
}
