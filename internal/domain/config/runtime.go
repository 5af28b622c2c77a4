package config

import (
	"time"
)

// Registry backends
const (
	RegistryBackendFile   = "file"
	RegistryBackendSQLite = "sqlite"
)

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot string
	DataDir     string

	// Context settings
	Namespace string   // Maps to foundry profile
	Network   *Network // nil if not specified

	// Execution settings
	Debug          bool
	NonInteractive bool
	JSON           bool // Output in JSON format
	Timeout        time.Duration
	ConfirmTimeout time.Duration // bound on waiting for a submitted transaction
	SkipBuild      bool          // use existing artifacts without running forge build

	// Registry
	RegistryBackend string // "file" or "sqlite"

	// Sender used as the initiator/admin authority
	SenderName string

	// Resolved configurations
	FoundryConfig *FoundryConfig
	TrebConfig    *TrebConfig // Profile-specific treb config
}

// Sender returns the configured sender the initiator key is loaded from
func (c *RuntimeConfig) Sender() (SenderConfig, bool) {
	if c.TrebConfig == nil || c.TrebConfig.Senders == nil {
		return SenderConfig{}, false
	}
	s, ok := c.TrebConfig.Senders[c.SenderName]
	return s, ok
}

// Proxy returns the proxy artifact settings, with defaults applied
func (c *RuntimeConfig) Proxy() ProxyConfig {
	var p ProxyConfig
	if c.TrebConfig != nil {
		p = c.TrebConfig.Proxy
	}
	return p.WithDefaults()
}

// ChainID returns the resolved network's chain id, or 0 with no network
func (c *RuntimeConfig) ChainID() uint64 {
	if c.Network == nil {
		return 0
	}
	return c.Network.ChainID
}

// Network represents network configuration
type Network struct {
	ChainID     uint64 `json:"chainId"`
	Name        string `json:"name"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}
