package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for domain operations
var (
	// ErrNotFound is returned when a requested resource doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidAddress is returned when an Ethereum address is invalid
	ErrInvalidAddress = errors.New("invalid address")

	// ErrContractNotFound is returned when a contract artifact can't be found
	ErrContractNotFound = errors.New("contract not found")

	// ErrCancelled is returned when the user declines a confirmation
	ErrCancelled = errors.New("cancelled")
)

// Layout extraction errors
var (
	// ErrMetadataUnavailable is returned when the storage layout metadata is missing or unparseable
	ErrMetadataUnavailable = errors.New("storage layout metadata unavailable")

	// ErrUnsupportedTypeEncoding is returned when a declared type can't be mapped to slot/offset/width
	ErrUnsupportedTypeEncoding = errors.New("unsupported type encoding")
)

// Layout verification errors. These are never waived.
var (
	ErrSlotWidthMismatch = errors.New("slot width mismatch")
	ErrSlotTypeMismatch  = errors.New("slot type mismatch")
	ErrSlotReordered     = errors.New("slot reordered")
	ErrSlotRemoved       = errors.New("slot removed")
)

// Registry errors
var (
	// ErrDuplicateProxy is returned when registering a proxy that already has a genesis record
	ErrDuplicateProxy = errors.New("proxy already registered")

	// ErrUnknownProxy is returned when a proxy has no genesis record
	ErrUnknownProxy = errors.New("unknown proxy")

	// ErrStaleRead is returned when the caller's assumed current state is no longer the latest record
	ErrStaleRead = errors.New("stale read")
)

// Orchestration errors
var (
	// ErrNoOpUpgrade is benign: the candidate already is the current implementation
	ErrNoOpUpgrade = errors.New("candidate is already the current implementation")

	// ErrUnauthorized is returned when the initiator is not the proxy's registered admin
	ErrUnauthorized = errors.New("initiator is not the registered admin")

	// ErrNetwork marks retryable transport failures
	ErrNetwork = errors.New("network error")

	// ErrReverted marks non-retryable on-chain rejections
	ErrReverted = errors.New("transaction reverted")

	// ErrConcurrentUpgradeDetected is returned when another upgrade committed while ours was in flight
	ErrConcurrentUpgradeDetected = errors.New("concurrent upgrade detected")

	// ErrOutcomeUnknown is returned when confirmation was not observed before the deadline
	ErrOutcomeUnknown = errors.New("transaction outcome unknown")

	// ErrCodeMismatch is returned when the runtime code at an address is not the named artifact
	ErrCodeMismatch = errors.New("deployed code does not match artifact")
)

// ViolationKind names a single storage layout incompatibility
type ViolationKind string

const (
	ViolationSlotWidthMismatch ViolationKind = "SlotWidthMismatch"
	ViolationSlotTypeMismatch  ViolationKind = "SlotTypeMismatch"
	ViolationSlotReordered     ViolationKind = "SlotReordered"
	ViolationSlotRemoved       ViolationKind = "SlotRemoved"
)

// Err returns the sentinel error for the violation kind
func (k ViolationKind) Err() error {
	switch k {
	case ViolationSlotWidthMismatch:
		return ErrSlotWidthMismatch
	case ViolationSlotTypeMismatch:
		return ErrSlotTypeMismatch
	case ViolationSlotReordered:
		return ErrSlotReordered
	case ViolationSlotRemoved:
		return ErrSlotRemoved
	}
	return fmt.Errorf("unknown violation kind %q", string(k))
}

// Violation describes one incompatibility between two storage layouts
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Slot   uint64        `json:"slot"`
	Offset uint64        `json:"offset"`
	Label  string        `json:"label"`
	Detail string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at slot %d offset %d (%s): %s", v.Kind, v.Slot, v.Offset, v.Label, v.Detail)
}

// VerificationError carries the full violation list of a failed compatibility check
type VerificationError struct {
	Violations []Violation
}

func (e *VerificationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, "  - "+v.String())
	}
	return fmt.Sprintf("storage layout incompatible (%d violations):\n%s", len(e.Violations), strings.Join(lines, "\n"))
}

// Is matches the sentinel of every violation kind present
func (e *VerificationError) Is(target error) bool {
	for _, v := range e.Violations {
		if v.Kind.Err() == target {
			return true
		}
	}
	return false
}

// NetworkError wraps a transport failure. SafeToRetry is only set when the
// submitter knows no transaction was broadcast.
type NetworkError struct {
	Op          string
	TxHash      common.Hash
	SafeToRetry bool
	Err         error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" (tx %s)", e.TxHash.Hex())
	}
	if e.SafeToRetry {
		return msg + " - no transaction was broadcast, safe to retry"
	}
	return msg + " - check the transaction status before retrying"
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// RevertedError is an on-chain rejection of a mined transaction
type RevertedError struct {
	Op     string
	TxHash common.Hash
	Reason string
}

func (e *RevertedError) Error() string {
	msg := e.Op + " reverted"
	if e.TxHash != (common.Hash{}) {
		msg += " in tx " + e.TxHash.Hex()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RevertedError) Is(target error) bool { return target == ErrReverted }
