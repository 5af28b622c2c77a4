package proxies

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

const (
	TrebDir    = ".treb"
	ProxiesDir = "proxies"
	logExt     = ".jsonl"
)

// fileStore keeps one JSON-lines log per proxy under
// .treb/proxies/<chainId>/<address>.jsonl. Every append is fsync'd before it
// becomes visible to readers.
type fileStore struct {
	dir string
	log *slog.Logger

	mu   sync.RWMutex
	logs map[common.Address]*proxyLog
}

// NewFileRegistry opens (or creates) the file-backed registry for a chain
// and replays every proxy log found on disk.
func NewFileRegistry(projectRoot string, chainID uint64, log *slog.Logger) (*Registry, error) {
	dir := filepath.Join(projectRoot, TrebDir, ProxiesDir, strconv.FormatUint(chainID, 10))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	s := &fileStore{
		dir:  dir,
		log:  log.With("component", "FileRegistry", "chain", chainID),
		logs: make(map[common.Address]*proxyLog),
	}
	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return newRegistry(chainID, s), nil
}

func (s *fileStore) path(proxy common.Address) string {
	return filepath.Join(s.dir, strings.ToLower(proxy.Hex())+logExt)
}

func (s *fileStore) loadAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(s.dir, "*"+logExt))
	if err != nil {
		return err
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), logExt)
		if !common.IsHexAddress(name) {
			s.log.Warn("skipping unexpected file in registry", "file", file)
			continue
		}
		l, err := s.readLog(file)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		if l != nil {
			s.logs[common.HexToAddress(name)] = l
		}
	}
	s.log.Debug("registry loaded", "proxies", len(s.logs))
	return nil
}

// readLog replays a log file. A torn final line (no trailing newline, not
// valid JSON) is the trace of an interrupted append and is dropped.
func (s *fileStore) readLog(file string) (*proxyLog, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []logEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e logEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			torn := !bytes.HasSuffix(data, []byte("\n")) && bytes.HasSuffix(bytes.TrimSpace(data), raw)
			if torn {
				s.log.Warn("dropping incomplete trailing entry", "file", file, "line", line)
				break
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return replay(entries)
}

func (s *fileStore) load(_ context.Context, proxy common.Address) (*proxyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs[proxy].clone(), nil
}

func (s *fileStore) all(_ context.Context) ([]*proxyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*proxyLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.clone())
	}
	return out, nil
}

func (s *fileStore) append(ctx context.Context, proxy common.Address, build func(*proxyLog) (logEntry, error)) (logEntry, error) {
	if err := ctx.Err(); err != nil {
		return logEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// pick up appends made by other processes since we loaded
	current, err := s.readLog(s.path(proxy))
	if err != nil {
		return logEntry{}, fmt.Errorf("failed to read log for %s: %w", proxy.Hex(), err)
	}
	if current == nil {
		current = s.logs[proxy]
	}

	entry, err := build(current.clone())
	if err != nil {
		return logEntry{}, err
	}

	next := current.clone()
	if next == nil {
		next = &proxyLog{impls: map[common.Address]*models.Implementation{}}
	}
	if err := next.apply(entry); err != nil {
		return logEntry{}, fmt.Errorf("invalid entry: %w", err)
	}

	if err := s.write(proxy, entry); err != nil {
		return logEntry{}, err
	}
	s.logs[proxy] = next

	s.log.Debug("appended entry", "proxy", proxy.Hex(), "kind", entry.Kind, "seq", entry.Seq)
	return entry, nil
}

func (s *fileStore) create(ctx context.Context, genesis logEntry) (logEntry, error) {
	if err := ctx.Err(); err != nil {
		return logEntry{}, err
	}
	proxy := genesis.Proxy.Address

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return logEntry{}, fmt.Errorf("failed to refresh registry: %w", err)
	}
	if _, ok := s.logs[proxy]; ok {
		return logEntry{}, duplicateAddress(proxy)
	}
	if label := genesis.Proxy.Label; label != "" {
		for addr, l := range s.logs {
			if l.proxy.Label == label {
				return logEntry{}, duplicateLabel(label, addr)
			}
		}
	}

	next := &proxyLog{impls: map[common.Address]*models.Implementation{}}
	if err := next.apply(genesis); err != nil {
		return logEntry{}, fmt.Errorf("invalid entry: %w", err)
	}
	if err := s.write(proxy, genesis); err != nil {
		return logEntry{}, err
	}
	s.logs[proxy] = next

	s.log.Debug("registered proxy", "proxy", proxy.Hex(), "label", genesis.Proxy.Label)
	return genesis, nil
}

// refresh loads logs created by other processes since we loaded
func (s *fileStore) refresh() error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*"+logExt))
	if err != nil {
		return err
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), logExt)
		if !common.IsHexAddress(name) {
			continue
		}
		addr := common.HexToAddress(name)
		if _, ok := s.logs[addr]; ok {
			continue
		}
		l, err := s.readLog(file)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		if l != nil {
			s.logs[addr] = l
		}
	}
	return nil
}

func (s *fileStore) write(proxy common.Address, entry logEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	if err := s.repairTail(proxy); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path(proxy), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log: %w", err)
	}
	return f.Close()
}

// repairTail cuts an incomplete trailing entry so the next append starts on
// a fresh line
func (s *fileStore) repairTail(proxy common.Address) error {
	data, err := os.ReadFile(s.path(proxy))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}
	keep := bytes.LastIndexByte(data, '\n') + 1
	if err := os.Truncate(s.path(proxy), int64(keep)); err != nil {
		return fmt.Errorf("failed to truncate torn entry: %w", err)
	}
	return nil
}
