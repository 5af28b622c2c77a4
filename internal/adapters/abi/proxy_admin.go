package abi

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ProxyAdminABI covers both the v4 (upgrade) and v5 (upgradeAndCall only,
// UPGRADE_INTERFACE_VERSION) OpenZeppelin ProxyAdmin
const ProxyAdminABI = `[
	{"type":"function","name":"UPGRADE_INTERFACE_VERSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
	{"type":"function","name":"upgrade","stateMutability":"nonpayable","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"}],"outputs":[]},
	{"type":"function","name":"upgradeAndCall","stateMutability":"payable","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]},
	{"type":"event","name":"OwnershipTransferred","anonymous":false,"inputs":[{"name":"previousOwner","type":"address","indexed":true},{"name":"newOwner","type":"address","indexed":true}]}
]`

// ParsedProxyAdmin returns the built-in ProxyAdmin ABI
func ParsedProxyAdmin() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(ProxyAdminABI))
	if err != nil {
		panic("invalid built-in ProxyAdmin ABI: " + err.Error())
	}
	return parsed
}
