package models

// Manifest lists proxies to deploy, applied in order
type Manifest struct {
	Network string          `yaml:"network,omitempty"`
	Proxies []ManifestProxy `yaml:"proxies"`
}

// ManifestProxy is one proxy entry of a manifest
type ManifestProxy struct {
	Contract string   `yaml:"contract"`
	Label    string   `yaml:"label"`
	Args     []string `yaml:"args,omitempty"`
}
