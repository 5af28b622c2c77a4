package abi

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Proxy event topics (ERC-1967)
var (
	UpgradedTopic             = crypto.Keccak256Hash([]byte("Upgraded(address)"))
	AdminChangedTopic         = crypto.Keccak256Hash([]byte("AdminChanged(address,address)"))
	OwnershipTransferredTopic = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
)

// UpgradedEvent is an Upgraded(address) log emitted by a proxy
type UpgradedEvent struct {
	Proxy          common.Address
	Implementation common.Address
}

// OwnershipTransferredEvent is emitted by a ProxyAdmin changing owner
type OwnershipTransferredEvent struct {
	AdminContract common.Address
	PreviousOwner common.Address
	NewOwner      common.Address
}

// ParseUpgraded parses an Upgraded log
func ParseUpgraded(log *types.Log) (*UpgradedEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != UpgradedTopic {
		return nil, fmt.Errorf("not an Upgraded event")
	}
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("invalid Upgraded event: not enough topics")
	}
	return &UpgradedEvent{
		Proxy:          log.Address,
		Implementation: common.BytesToAddress(log.Topics[1].Bytes()),
	}, nil
}

// ParseOwnershipTransferred parses an OwnershipTransferred log
func ParseOwnershipTransferred(log *types.Log) (*OwnershipTransferredEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != OwnershipTransferredTopic {
		return nil, fmt.Errorf("not an OwnershipTransferred event")
	}
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid OwnershipTransferred event: not enough topics")
	}
	return &OwnershipTransferredEvent{
		AdminContract: log.Address,
		PreviousOwner: common.BytesToAddress(log.Topics[1].Bytes()),
		NewOwner:      common.BytesToAddress(log.Topics[2].Bytes()),
	}, nil
}

// UpgradedIn returns the last implementation proxy reported upgrading to in
// a receipt's logs
func UpgradedIn(logs []*types.Log, proxy common.Address) (common.Address, bool) {
	var (
		impl  common.Address
		found bool
	)
	for _, log := range logs {
		if log.Address != proxy {
			continue
		}
		if ev, err := ParseUpgraded(log); err == nil {
			impl, found = ev.Implementation, true
		}
	}
	return impl, found
}
