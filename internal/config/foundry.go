package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
)

// LoadFoundryConfig loads foundry.toml, expanding ${VAR} references in RPC
// endpoints and sender keys after .env and .env.local are loaded.
func LoadFoundryConfig(projectRoot string) (*config.FoundryConfig, error) {
	for _, name := range []string{".env", ".env.local"} {
		envFile := filepath.Join(projectRoot, name)
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to load %s: %v\n", envFile, err)
		}
	}

	var cfg config.FoundryConfig
	if _, err := toml.DecodeFile(filepath.Join(projectRoot, "foundry.toml"), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse foundry.toml: %w", err)
	}

	if cfg.RpcEndpoints == nil {
		cfg.RpcEndpoints = make(map[string]string)
	}
	for name, url := range cfg.RpcEndpoints {
		cfg.RpcEndpoints[name] = os.ExpandEnv(url)
	}
	for name, es := range cfg.Etherscan {
		es.Key = os.ExpandEnv(es.Key)
		es.URL = os.ExpandEnv(es.URL)
		cfg.Etherscan[name] = es
	}

	for name, profile := range cfg.Profile {
		if profile.Treb == nil {
			continue
		}
		for senderName, sender := range profile.Treb.Senders {
			if sender.Type == "" {
				return nil, fmt.Errorf("profile %s: sender %s: type is required", name, senderName)
			}
			sender.PrivateKey = os.ExpandEnv(sender.PrivateKey)
			sender.Address = os.ExpandEnv(sender.Address)
			profile.Treb.Senders[senderName] = sender
		}
		profile.Treb.Proxy.AdminContract = os.ExpandEnv(profile.Treb.Proxy.AdminContract)
	}

	return &cfg, nil
}
