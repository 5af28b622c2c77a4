package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Implementation is a deployed logic contract. Immutable once recorded.
type Implementation struct {
	Address      common.Address `json:"address"`
	ContractRef  string         `json:"contractRef"`  // e.g., "src/Financial.sol:Financial"
	BytecodeHash common.Hash    `json:"bytecodeHash"` // keccak256 of the deployed bytecode
	Layout       StorageLayout  `json:"layout"`
	LayoutHash   common.Hash    `json:"layoutHash"`
	DeployedAt   time.Time      `json:"deployedAt"`
}

// Proxy is a permanent-address contract delegating to an implementation.
// Implementation is the only field that changes after genesis (Admin moves
// only through admin transfers).
type Proxy struct {
	Address        common.Address `json:"address"`
	ChainID        uint64         `json:"chainId"`
	Label          string         `json:"label,omitempty"`
	ContractRef    string         `json:"contractRef"`
	Implementation common.Address `json:"implementation"`
	Admin          common.Address `json:"admin"`                   // authority allowed to upgrade
	AdminContract  common.Address `json:"adminContract,omitempty"` // on-chain ProxyAdmin routing the swap
	CreatedAt      time.Time      `json:"createdAt"`
}

// DisplayName returns a human-friendly name for the proxy
func (p *Proxy) DisplayName() string {
	if p.Label != "" {
		return fmt.Sprintf("%s:%s", contractName(p.ContractRef), p.Label)
	}
	return contractName(p.ContractRef)
}

// AdminController is the authority controlling a set of proxies
type AdminController struct {
	Address           common.Address   `json:"address"`
	ControlledProxies []common.Address `json:"controlledProxies"`
}

// VersionRecord is one entry of a proxy's implementation history. The first
// record of a proxy is its genesis record.
type VersionRecord struct {
	Sequence              uint64         `json:"sequence"`
	ProxyAddress          common.Address `json:"proxyAddress"`
	ImplementationAddress common.Address `json:"implementationAddress"`
	LayoutHash            common.Hash    `json:"layoutHash"`
	AppliedAt             time.Time      `json:"appliedAt"`
	Initiator             common.Address `json:"initiator"`
	TxHash                common.Hash    `json:"txHash,omitempty"`
}

// IsGenesis reports whether the record is the proxy's first record
func (r *VersionRecord) IsGenesis() bool {
	return r.Sequence == 1
}

// AdminRecord tracks a change of admin authority. Kept apart from
// VersionRecord so admin transfers never count as upgrades.
type AdminRecord struct {
	Sequence      uint64         `json:"sequence"`
	ProxyAddress  common.Address `json:"proxyAddress"`
	PreviousAdmin common.Address `json:"previousAdmin"`
	NewAdmin      common.Address `json:"newAdmin"`
	AppliedAt     time.Time      `json:"appliedAt"`
	Initiator     common.Address `json:"initiator"`
	TxHash        common.Hash    `json:"txHash,omitempty"`
}

// contractName strips the source path from an artifact reference
func contractName(ref string) string {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == ':' {
			return ref[i+1:]
		}
	}
	return ref
}
