package config

// FoundryConfig represents the parts of foundry.toml treb-proxy reads
type FoundryConfig struct {
	Profile      map[string]ProfileConfig   `toml:"profile"`
	RpcEndpoints map[string]string          `toml:"rpc_endpoints"`
	Etherscan    map[string]EtherscanConfig `toml:"etherscan,omitempty"`
}

// EtherscanConfig represents Etherscan configuration for a network
type EtherscanConfig struct {
	Key string `toml:"key,omitempty"`
	URL string `toml:"url,omitempty"`
}

// ProfileConfig represents a profile's foundry configuration
type ProfileConfig struct {
	SrcPath     string      `toml:"src,omitempty"`
	OutPath     string      `toml:"out,omitempty"`
	SolcVersion string      `toml:"solc_version,omitempty"`
	ExtraOutput []string    `toml:"extra_output,omitempty"`
	Treb        *TrebConfig `toml:"treb,omitempty"`
}

// TrebConfig represents the [profile.<ns>.treb] section
type TrebConfig struct {
	Senders map[string]SenderConfig `json:"senders" toml:"senders"`
	Proxy   ProxyConfig             `json:"proxy" toml:"proxy"`
}

type SenderType string

var (
	SenderTypePrivateKey SenderType = "private_key"
	SenderTypeLedger     SenderType = "ledger"
	SenderTypeSafe       SenderType = "safe"
)

// SenderConfig represents a sender configuration. Only private_key senders
// can sign proxy transactions.
type SenderConfig struct {
	Type       SenderType `toml:"type"`
	Address    string     `toml:"address,omitempty"`
	PrivateKey string     `toml:"private_key,omitempty"` //nolint:gosec // holds env var reference, not a literal secret
}

// ProxyConfig names the artifacts used for proxy deployments
type ProxyConfig struct {
	// Artifact of the proxy contract, constructor (logic, admin, data)
	ProxyArtifact string `json:"proxyArtifact" toml:"proxy_artifact,omitempty"`
	// Artifact of the admin contract, constructor (owner)
	AdminArtifact string `json:"adminArtifact" toml:"admin_artifact,omitempty"`
	// Existing admin contract shared by every proxy on the network
	AdminContract string `json:"adminContract,omitempty" toml:"admin_contract,omitempty"`
	// Name of the initializer invoked once at deploy time
	Initializer string `json:"initializer" toml:"initializer,omitempty"`
}

// WithDefaults fills unset fields with the OpenZeppelin transparent proxy contracts
func (p ProxyConfig) WithDefaults() ProxyConfig {
	if p.ProxyArtifact == "" {
		p.ProxyArtifact = "TransparentUpgradeableProxy"
	}
	if p.AdminArtifact == "" {
		p.AdminArtifact = "ProxyAdmin"
	}
	if p.Initializer == "" {
		p.Initializer = "initialize"
	}
	return p
}
