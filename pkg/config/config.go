package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quorumvault/quorumvault/pkg/coreerr"
	"github.com/quorumvault/quorumvault/pkg/types"
)

// Defaults mirror the specification's configuration table.
const (
	DefaultReplicationFactor   = 3
	DefaultConsensusTimeoutMS  = 5000
	DefaultHeartbeatIntervalMS = 1000
	DefaultLogLevel            = "info"
)

// Load reads and parses a YAML node configuration file at path, then
// applies defaults for anything left zero-valued.
func Load(path string) (types.NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NodeConfig{}, coreerr.IOError.Wrap(err)
	}

	var cfg types.NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.NodeConfig{}, coreerr.InvalidRequest.Wrap(err)
	}

	ApplyDefaults(&cfg)
	return cfg, Validate(cfg)
}

// ApplyDefaults fills in any zero-valued field with the specification's
// documented default.
func ApplyDefaults(cfg *types.NodeConfig) {
	if cfg.ReplicationFactor == 0 {
		cfg.ReplicationFactor = DefaultReplicationFactor
	}
	if cfg.ConsensusTimeoutMS == 0 {
		cfg.ConsensusTimeoutMS = DefaultConsensusTimeoutMS
	}
	if cfg.HeartbeatIntervalMS == 0 {
		cfg.HeartbeatIntervalMS = DefaultHeartbeatIntervalMS
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.NodeIP == "" {
		cfg.NodeIP = "0.0.0.0"
	}
}

// Validate rejects a configuration the node cannot start with.
func Validate(cfg types.NodeConfig) error {
	if cfg.NodeID == "" {
		return coreerr.InvalidRequest.With("node_id is required")
	}
	if cfg.Port == 0 {
		return coreerr.InvalidRequest.With("port is required")
	}
	if cfg.StoragePath == "" {
		return coreerr.InvalidRequest.With("storage_path is required")
	}
	if cfg.ReplicationFactor < 1 {
		return coreerr.InvalidRequest.With("replication_factor must be >= 1")
	}
	return nil
}
