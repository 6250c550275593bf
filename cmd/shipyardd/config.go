package main

import (
	"fmt"
	"os"
	"time"

	"github.com/batchshipyard/engine/pkg/federation"
	"github.com/batchshipyard/engine/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the engine's on-disk configuration (§6 "Configuration files").
// JSON documents parse through the same path: JSON is a subset of YAML, so
// one unmarshaler covers both formats the spec requires accepting.
type Config struct {
	Credentials CredentialsConfig  `yaml:"credentials"`
	Global      GlobalConfig       `yaml:"global"`
	Pools       []*types.Pool      `yaml:"pools"`
	Jobs        []*types.Job       `yaml:"jobs"`
	Federations []FederationConfig `yaml:"federations"`
	RemoteFS    *RemoteFSConfig    `yaml:"remote_fs,omitempty"`
}

// CredentialsConfig maps platform accounts, object-storage accounts,
// registry logins, identity-provider creds, and vault URIs.
type CredentialsConfig struct {
	PlatformAccounts map[string]string `yaml:"platform_accounts"`
	StorageAccounts  map[string]string `yaml:"storage_accounts"`
	RegistryLogins   map[string]string `yaml:"registry_logins"`
	IdentityProvider string            `yaml:"identity_provider"`
	VaultURI         string            `yaml:"vault_uri"`
}

// GlobalConfig carries engine-wide settings.
type GlobalConfig struct {
	MetadataStoreDir    string                        `yaml:"metadata_store_dir"`
	Encryption          bool                          `yaml:"encryption"`
	ClusterID           string                        `yaml:"cluster_id"` // seeds the at-rest encryption key and mesh CA when Encryption is set
	Platform            string                        `yaml:"platform"` // registered ComputePlatform name
	Registries          types.ContainerRegistryAccess `yaml:"registries"`
	DataReplication     types.DataReplicationPolicy   `yaml:"data_replication"`
	PreloadDocker       []string                      `yaml:"preload_docker_images"`
	PreloadSingularity  []string                      `yaml:"preload_singularity_images"`
	Volumes             []*types.VolumeMount          `yaml:"volumes"`
	SKUCatalog          federation.SKUCatalog         `yaml:"sku_catalog"`
	LocalDiagnosticsDir string                        `yaml:"local_diagnostics_dir"`
	MetricsAddr         string                        `yaml:"metrics_addr"`
}

// FederationConfig is a federation's proxy settings plus its own record.
type FederationConfig struct {
	types.Federation `yaml:",inline"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxWorkers       int           `yaml:"max_workers"`
}

// RemoteFSConfig is the out-of-core storage-cluster spec; only its
// mount-spec is consumed (§6).
type RemoteFSConfig struct {
	MountPath    string   `yaml:"mount_path"`
	MountOptions []string `yaml:"mount_options"`
}

// LoadConfig reads and parses path, accepting either YAML or JSON.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
