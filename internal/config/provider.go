package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
)

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		var err error
		projectRoot, err = FindProjectRoot()
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	cfg := &config.RuntimeConfig{
		ProjectRoot:     projectRoot,
		DataDir:         filepath.Join(projectRoot, ".treb"),
		Namespace:       v.GetString("namespace"),
		Debug:           v.GetBool("debug"),
		NonInteractive:  v.GetBool("non_interactive"),
		JSON:            v.GetBool("json"),
		Timeout:         v.GetDuration("timeout"),
		ConfirmTimeout:  v.GetDuration("confirm_timeout"),
		SkipBuild:       v.GetBool("no_build"),
		RegistryBackend: v.GetString("registry_backend"),
		SenderName:      v.GetString("sender"),
	}

	switch cfg.RegistryBackend {
	case config.RegistryBackendFile, config.RegistryBackendSQLite:
	default:
		return nil, fmt.Errorf("invalid registry_backend %q: expected %q or %q",
			cfg.RegistryBackend, config.RegistryBackendFile, config.RegistryBackendSQLite)
	}

	foundryConfig, err := LoadFoundryConfig(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load foundry config: %w", err)
	}
	cfg.FoundryConfig = foundryConfig

	// namespace = foundry profile
	if profile, ok := foundryConfig.Profile[cfg.Namespace]; ok && profile.Treb != nil {
		cfg.TrebConfig = profile.Treb
	} else if profile, ok := foundryConfig.Profile["default"]; ok && profile.Treb != nil {
		cfg.TrebConfig = profile.Treb
	}

	if networkName := v.GetString("network"); networkName != "" {
		resolver := NewNetworkResolver(projectRoot, foundryConfig)
		network, err := resolver.Resolve(networkName)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve network %s: %w", networkName, err)
		}
		cfg.Network = network
	}

	return cfg, nil
}

// FindProjectRoot walks up from current directory to find foundry.toml
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "foundry.toml")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a Foundry project (foundry.toml not found)")
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance
func SetupViper(projectRoot string, cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config.local")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, ".treb"))

	v.SetEnvPrefix("TREB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("namespace", "default")
	v.SetDefault("timeout", "5m")
	v.SetDefault("confirm_timeout", "2m")
	v.SetDefault("registry_backend", config.RegistryBackendFile)
	v.SetDefault("sender", "deployer")
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("no_build", false)
	v.SetDefault("project_root", projectRoot)

	// Missing config file is fine
	_ = v.ReadInConfig()

	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if err := v.BindPFlag(key, f); err != nil {
				panic(err)
			}
		})
	}

	return v
}
