// Package config defines the key-value configuration schema consumed
// from external collaborators and the narrow interfaces the core calls
// into that collaborator for admission policy, resolution change
// requests, and error/status reporting.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Server holds the host's network configuration. ClientLivenessPort is
// the well-known port the host expects every client's ClientLiveness
// socket to be bound on, used to address outgoing PING/STOP/START
// packets; it is not learned from the handshake.
type Server struct {
	Port               uint16 `yaml:"port"`
	BindAddress        string `yaml:"bind_address"`
	ClientLivenessPort uint16 `yaml:"client_liveness_port"`
}

// Audio holds shared client/host audio configuration.
type Audio struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BufferSizeMs  int `yaml:"buffer_size_ms"`
}

// Security holds admission policy configuration.
type Security struct {
	EnableWhitelist bool `yaml:"enable_whitelist"`
	SyncWithSunshine bool `yaml:"sync_with_sunshine"`
}

// Sunshine holds the coexisting game-streaming product's coordinates,
// used only to source the whitelist's pairing state.
type Sunshine struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Paired bool   `yaml:"paired"`
}

// Host is the top-level configuration for the host binary.
type Host struct {
	Server   Server   `yaml:"server"`
	Audio    Audio    `yaml:"audio"`
	Security Security `yaml:"security"`
	Sunshine Sunshine `yaml:"sunshine"`
}

// Client is the top-level configuration for the client binary.
type Client struct {
	Audio        Audio  `yaml:"audio"`
	HostAddress  string `yaml:"host_address"`
	HostPort     uint16 `yaml:"host_port"`
	LivenessPort uint16 `yaml:"liveness_port"`
	Bitrate      int    `yaml:"bitrate"`
	UniqueID     string `yaml:"unique_id"`
	DeviceName   string `yaml:"device_name"`
}

// DefaultHost returns a Host configuration with its documented
// defaults (audio.sample_rate default 48000).
func DefaultHost() Host {
	return Host{
		Server: Server{Port: 48100, BindAddress: "0.0.0.0", ClientLivenessPort: 48101},
		Audio:  Audio{SampleRate: 48000, Channels: 2, BufferSizeMs: 800},
	}
}

// DefaultClient returns a Client configuration with sensible defaults.
func DefaultClient() Client {
	return Client{
		Audio:        Audio{SampleRate: 48000, Channels: 1, BufferSizeMs: 800},
		HostPort:     48100,
		LivenessPort: 48101,
		Bitrate:      24000,
		DeviceName:   "moonmic",
	}
}

// LoadHost reads and merges a YAML config file over DefaultHost. A
// missing file is not an error; the defaults are returned unchanged.
func LoadHost(path string) (Host, error) {
	cfg := DefaultHost()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClient reads and merges a YAML config file over DefaultClient. If
// the resulting UniqueID is still empty (no config file, or the file
// didn't set one), a fresh one is generated: the handshake's
// unique_id field must be stable across reconnects from the same
// installation, but the very first run has nothing to persist it from.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if cfg.UniqueID == "" {
		cfg.UniqueID = uuid.New().String()[:16]
	}
	return cfg, nil
}
