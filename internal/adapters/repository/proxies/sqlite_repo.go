package proxies

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteFile is the registry database inside .treb
const SQLiteFile = "proxies.db"

// sqliteStore keeps every proxy log in one proxy_log table. The primary key
// (chain_id, proxy, seq) rejects a second writer racing for the same slot.
type sqliteStore struct {
	db      *sql.DB
	chainID uint64
	log     *slog.Logger

	mu sync.Mutex
}

// NewSQLiteRegistry opens (or creates) .treb/proxies.db and returns the
// registry for a chain
func NewSQLiteRegistry(projectRoot string, chainID uint64, log *slog.Logger) (*Registry, error) {
	dir := filepath.Join(projectRoot, TrebDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .treb directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, SQLiteFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return NewSQLiteRegistryWithDB(db, chainID, log)
}

// NewSQLiteRegistryWithDB builds the registry on an open database
func NewSQLiteRegistryWithDB(db *sql.DB, chainID uint64, log *slog.Logger) (*Registry, error) {
	// one connection serializes writers inside this process
	db.SetMaxOpenConns(1)

	s := &sqliteStore{
		db:      db,
		chainID: chainID,
		log:     log.With("component", "SQLiteRegistry", "chain", chainID),
	}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to init sqlite registry: %w", err)
	}
	return newRegistry(chainID, s), nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS proxy_log (
			chain_id INTEGER NOT NULL,
			proxy TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			implementation TEXT,
			entry JSON NOT NULL,
			PRIMARY KEY (chain_id, proxy, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS proxy_log_implementation ON proxy_log (chain_id, implementation)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *sqliteStore) loadWith(ctx context.Context, q querier, proxy common.Address) (*proxyLog, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT entry FROM proxy_log WHERE chain_id = ? AND proxy = ? ORDER BY seq`,
		s.chainID, key(proxy))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []logEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e logEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("corrupt entry for %s: %w", proxy.Hex(), err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return replay(entries)
}

func (s *sqliteStore) load(ctx context.Context, proxy common.Address) (*proxyLog, error) {
	return s.loadWith(ctx, s.db, proxy)
}

func (s *sqliteStore) all(ctx context.Context) ([]*proxyLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT proxy FROM proxy_log WHERE chain_id = ? ORDER BY proxy`, s.chainID)
	if err != nil {
		return nil, err
	}
	var addrs []common.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			_ = rows.Close()
			return nil, err
		}
		addrs = append(addrs, common.HexToAddress(addr))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	logs := make([]*proxyLog, 0, len(addrs))
	for _, addr := range addrs {
		l, err := s.load(ctx, addr)
		if err != nil {
			return nil, err
		}
		if l != nil {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func (s *sqliteStore) append(ctx context.Context, proxy common.Address, build func(*proxyLog) (logEntry, error)) (logEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.loadWith(ctx, tx, proxy)
	if err != nil {
		return logEntry{}, fmt.Errorf("failed to read log for %s: %w", proxy.Hex(), err)
	}

	entry, err := build(current.clone())
	if err != nil {
		return logEntry{}, err
	}

	if err := s.insert(ctx, tx, proxy, entry); err != nil {
		return logEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return logEntry{}, fmt.Errorf("failed to commit entry: %w", err)
	}

	s.log.Debug("appended entry", "proxy", proxy.Hex(), "kind", entry.Kind, "seq", entry.Seq)
	return entry, nil
}

func (s *sqliteStore) create(ctx context.Context, genesis logEntry) (logEntry, error) {
	proxy := genesis.Proxy.Address

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM proxy_log WHERE chain_id = ? AND proxy = ?`,
		s.chainID, key(proxy)).Scan(&exists)
	if err != nil {
		return logEntry{}, fmt.Errorf("failed to read log for %s: %w", proxy.Hex(), err)
	}
	if exists > 0 {
		return logEntry{}, duplicateAddress(proxy)
	}

	if label := genesis.Proxy.Label; label != "" {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT proxy FROM proxy_log WHERE chain_id = ? AND kind = ? AND json_extract(entry, '$.proxy.label') = ? LIMIT 1`,
			s.chainID, string(entryGenesis), label).Scan(&owner)
		switch {
		case err == nil:
			return logEntry{}, duplicateLabel(label, common.HexToAddress(owner))
		case !errors.Is(err, sql.ErrNoRows):
			return logEntry{}, fmt.Errorf("failed to look up label %q: %w", label, err)
		}
	}

	if err := s.insert(ctx, tx, proxy, genesis); err != nil {
		return logEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return logEntry{}, fmt.Errorf("failed to commit entry: %w", err)
	}

	s.log.Debug("registered proxy", "proxy", proxy.Hex(), "label", genesis.Proxy.Label)
	return genesis, nil
}

func (s *sqliteStore) insert(ctx context.Context, tx *sql.Tx, proxy common.Address, entry logEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	var impl sql.NullString
	if entry.Implementation != nil {
		impl = sql.NullString{String: key(entry.Implementation.Address), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO proxy_log (chain_id, proxy, seq, kind, implementation, entry) VALUES (?, ?, ?, ?, ?, ?)`,
		s.chainID, key(proxy), entry.Seq, string(entry.Kind), impl, string(data))
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: concurrent append to %s", domain.ErrStaleRead, proxy.Hex())
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func key(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
