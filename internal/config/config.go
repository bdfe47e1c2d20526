// Package config loads bothand's YAML configuration: the store path,
// manager options, monitoring uplink settings, RPC listen addresses, and
// the list of source workers to run.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver"
	"gopkg.in/yaml.v3"
)

// SourceType tags whether a configured source runs a streamworker or a
// pollworker.
type SourceType string

const (
	SourceStreaming SourceType = "streaming"
	SourcePolling   SourceType = "polling"
)

// SourceConfig configures one upstream price source worker.
type SourceConfig struct {
	Name                    string     `yaml:"name"`
	Type                    SourceType `yaml:"type"`
	URL                     string     `yaml:"url"`
	PollIntervalSeconds     int        `yaml:"poll_interval_seconds,omitempty"`
	HeartbeatTimeoutSeconds int        `yaml:"heartbeat_timeout_seconds,omitempty"`
}

// PollInterval returns the configured poll interval, or 0 if unset (the
// pollworker falls back to its own default).
func (s SourceConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// HeartbeatTimeout returns the configured heartbeat timeout, or 0 if
// unset (the streamworker falls back to its own default).
func (s SourceConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(s.HeartbeatTimeoutSeconds) * time.Second
}

// ManagerConfig configures the crypto-asset manager's registry source and
// staleness policy.
type ManagerConfig struct {
	RegistryPath     string `yaml:"registry_path,omitempty"`
	RegistryIPFSHash string `yaml:"registry_ipfs_hash,omitempty"`
	IPFSGatewayURL   string `yaml:"ipfs_gateway_url,omitempty"`
	StalenessSeconds int    `yaml:"staleness_seconds"`
	// RegistryVersionRequirement is a semver range (e.g. ">= 1.0.0, <
	// 2.0.0") bothand's own running version must satisfy before a
	// SetRegistry/SetRegistryFromIPFS call is accepted. Empty imposes no
	// constraint. UpdateRegistry RPC/REST requests may override this
	// per-call; this value is the default used when a request doesn't.
	RegistryVersionRequirement string `yaml:"registry_version_requirement,omitempty"`
}

// Staleness returns the configured staleness threshold.
func (m ManagerConfig) Staleness() time.Duration {
	return time.Duration(m.StalenessSeconds) * time.Second
}

// MonitoringConfig configures the (optional) monitoring uplink.
type MonitoringConfig struct {
	Enabled                  bool   `yaml:"enabled"`
	Endpoint                 string `yaml:"endpoint,omitempty"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds,omitempty"`
}

// HeartbeatInterval returns the configured heartbeat cadence, defaulting
// to 60s when enabled without an explicit value.
func (m MonitoringConfig) HeartbeatInterval() time.Duration {
	if m.HeartbeatIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(m.HeartbeatIntervalSeconds) * time.Second
}

// RPCConfig configures the gRPC and REST listen addresses.
type RPCConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	RESTAddr string `yaml:"rest_addr"`
}

// StoreConfig configures the on-disk store location.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Config is bothand's full process configuration.
type Config struct {
	Store      StoreConfig        `yaml:"store"`
	Manager    ManagerConfig      `yaml:"manager"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	RPC        RPCConfig          `yaml:"rpc"`
	Sources    []SourceConfig     `yaml:"sources"`
}

// Load reads and parses path, rejecting unknown fields so a typo in a
// deployed config fails loudly at startup rather than being silently
// ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Manager.StalenessSeconds <= 0 {
		return fmt.Errorf("manager.staleness_seconds must be > 0")
	}
	if c.Manager.RegistryPath == "" && c.Manager.RegistryIPFSHash == "" {
		return fmt.Errorf("manager needs either registry_path or registry_ipfs_hash")
	}
	if c.Manager.RegistryIPFSHash != "" && c.Manager.IPFSGatewayURL == "" {
		return fmt.Errorf("manager.registry_ipfs_hash requires manager.ipfs_gateway_url")
	}
	if c.Manager.RegistryVersionRequirement != "" {
		if _, err := semver.NewConstraint(c.Manager.RegistryVersionRequirement); err != nil {
			return fmt.Errorf("manager.registry_version_requirement: %w", err)
		}
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("every source needs a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Type != SourceStreaming && s.Type != SourcePolling {
			return fmt.Errorf("source %q: type must be %q or %q", s.Name, SourceStreaming, SourcePolling)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
	}
	return nil
}
