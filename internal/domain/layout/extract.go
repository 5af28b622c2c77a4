// Package layout extracts storage layouts from compiler output and decides
// whether one layout can safely replace another behind a proxy.
package layout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/trebuchet-org/treb-proxy/internal/domain"
	"github.com/trebuchet-org/treb-proxy/internal/domain/models"
)

// maxStructDepth bounds flattening of nested inplace structs
const maxStructDepth = 16

// maxSlot keeps absolute byte positions (slot*32+offset) inside uint64
const maxSlot = uint64(1) << 48

// reservedPrefixes mark placeholder variables that keep storage positions alive
var reservedPrefixes = []string{"__gap", "__reserved", "__deprecated"}

// rawLayout mirrors the solc "storageLayout" output
type rawLayout struct {
	Storage *[]rawEntry        `json:"storage"`
	Types   map[string]rawType `json:"types"`
}

type rawEntry struct {
	Label  string `json:"label"`
	Offset uint64 `json:"offset"`
	Slot   string `json:"slot"`
	Type   string `json:"type"`
}

type rawType struct {
	Encoding      string     `json:"encoding"`
	Label         string     `json:"label"`
	NumberOfBytes string     `json:"numberOfBytes"`
	Members       []rawEntry `json:"members,omitempty"`
}

// Extract builds a StorageLayout from a compiler storageLayout document.
// Output is sorted by slot, offset, label so identical input always gives an
// identical layout.
func Extract(raw json.RawMessage) (models.StorageLayout, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.StorageLayout{}, fmt.Errorf("%w: no storageLayout in artifact (build with --extra-output storageLayout)", domain.ErrMetadataUnavailable)
	}

	var doc rawLayout
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return models.StorageLayout{}, fmt.Errorf("%w: %v", domain.ErrMetadataUnavailable, err)
	}
	if doc.Storage == nil {
		return models.StorageLayout{}, fmt.Errorf("%w: storageLayout has no storage section", domain.ErrMetadataUnavailable)
	}

	x := extractor{types: doc.Types}
	for _, entry := range *doc.Storage {
		if err := x.add(entry, 0, "", 0); err != nil {
			return models.StorageLayout{}, err
		}
	}

	sortEntries(x.entries)
	return models.StorageLayout{Entries: x.entries}, nil
}

type extractor struct {
	types   map[string]rawType
	entries []models.Slot
}

func (x *extractor) add(entry rawEntry, base uint64, prefix string, level int) error {
	if level > maxStructDepth {
		return fmt.Errorf("%w: struct nesting deeper than %d at %s", domain.ErrUnsupportedTypeEncoding, maxStructDepth, prefix)
	}

	label := entry.Label
	if prefix != "" {
		label = prefix + "." + entry.Label
	}

	slot, err := parseSlot(entry.Slot)
	if err != nil {
		return fmt.Errorf("%w: variable %s: %v", domain.ErrUnsupportedTypeEncoding, label, err)
	}
	// base is an already checked slot, so the sum cannot wrap
	if slot >= maxSlot || base+slot >= maxSlot {
		// namespaced (hashed) storage locations are not tracked
		return fmt.Errorf("%w: variable %s: slot %s beyond sequential storage", domain.ErrUnsupportedTypeEncoding, label, entry.Slot)
	}
	slot += base
	if entry.Offset >= 32 {
		return fmt.Errorf("%w: variable %s: offset %d outside the slot", domain.ErrUnsupportedTypeEncoding, label, entry.Offset)
	}

	typ, ok := x.types[entry.Type]
	if !ok {
		return fmt.Errorf("%w: variable %s: type %s not described", domain.ErrUnsupportedTypeEncoding, label, entry.Type)
	}

	width, err := strconv.ParseUint(typ.NumberOfBytes, 10, 64)
	if err != nil || width == 0 {
		return fmt.Errorf("%w: variable %s: invalid width %q for %s", domain.ErrUnsupportedTypeEncoding, label, typ.NumberOfBytes, entry.Type)
	}
	if width > (maxSlot-slot)*32 {
		return fmt.Errorf("%w: variable %s: %d bytes run past sequential storage", domain.ErrUnsupportedTypeEncoding, label, width)
	}

	switch typ.Encoding {
	case "inplace":
		if width <= 32 && entry.Offset+width > 32 {
			return fmt.Errorf("%w: variable %s: %d bytes at offset %d cross a slot boundary", domain.ErrUnsupportedTypeEncoding, label, width, entry.Offset)
		}
		if width > 32 && entry.Offset != 0 {
			return fmt.Errorf("%w: variable %s: multi-slot value at offset %d", domain.ErrUnsupportedTypeEncoding, label, entry.Offset)
		}
	case "mapping", "dynamic_array", "bytes":
		if width != 32 || entry.Offset != 0 {
			return fmt.Errorf("%w: variable %s: %s must occupy one full slot", domain.ErrUnsupportedTypeEncoding, label, typ.Encoding)
		}
	default:
		return fmt.Errorf("%w: variable %s: encoding %q", domain.ErrUnsupportedTypeEncoding, label, typ.Encoding)
	}

	x.entries = append(x.entries, models.Slot{
		Slot:     slot,
		Offset:   entry.Offset,
		Bytes:    width,
		Type:     entry.Type,
		Label:    label,
		Reserved: isReserved(entry.Label),
	})

	if typ.Encoding == "inplace" && len(typ.Members) > 0 {
		for _, member := range typ.Members {
			if err := x.add(member, slot, label, level+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseSlot(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return 0, fmt.Errorf("invalid slot %q", s)
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("slot %s out of range", s)
	}
	return n.Uint64(), nil
}

func isReserved(label string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	return false
}

// depth is the struct nesting level of a flattened label
func depth(label string) int {
	return strings.Count(label, ".")
}

// root returns the top-level variable a flattened label belongs to
func root(label string) string {
	if i := strings.IndexByte(label, '.'); i >= 0 {
		return label[:i]
	}
	return label
}

func sortEntries(entries []models.Slot) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		if da, db := depth(a.Label), depth(b.Label); da != db {
			return da < db
		}
		return a.Label < b.Label
	})
}

// Hash returns a content hash of the layout, stable across runs
func Hash(l models.StorageLayout) common.Hash {
	data, err := json.Marshal(l.Entries)
	if err != nil {
		// Slots only hold strings and integers
		panic(err)
	}
	return crypto.Keccak256Hash(data)
}
