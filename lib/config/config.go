// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InvalidConfigurationError reports a configuration that failed
// validation. The coordinator returns it to its caller before starting
// any subsystem; it is not passed to the Presenter. It is the one error
// this program treats as fatal to the host process.
type InvalidConfigurationError struct {
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

// Config is the streaming host's configuration.
type Config struct {
	// BundleID is the opaque string advertised in the mDNS TXT record
	// under the Application-Identifier key. Required, non-empty after
	// trimming.
	BundleID string `yaml:"bundle_id"`

	// Port is the TCP port the session protocol engine listens on.
	// Must be in 1..65535.
	Port uint16 `yaml:"port"`

	// Address is the local IP address to bind and advertise. Empty
	// means "all interfaces" (net.IPv4zero) for binding.
	Address string `yaml:"address"`

	// ForceBarcode omits CertificateFingerprint from
	// AcknowledgeConnection, forcing the client to always prompt for a
	// QR scan. Debug-only.
	ForceBarcode bool `yaml:"force_barcode"`

	// MediaServiceVersion is passed to startService(); the host always
	// calls startService("6.0.0") unless overridden.
	MediaServiceVersion string `yaml:"media_service_version"`

	// MediaServiceBinaryName is the executable name the process
	// supervisor looks for alongside the host binary.
	MediaServiceBinaryName string `yaml:"media_service_binary_name"`

	// ReleasesRoot is the root of the releases/ subtree the supervisor
	// searches recursively for a runtime configuration file.
	ReleasesRoot string `yaml:"releases_root"`

	// StatusPollInterval is the media state poller's poll period.
	// Default 200ms.
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`

	// StateChangePollDelay is awaitRuntimeMatches's poll period.
	// Default 50ms.
	StateChangePollDelay time.Duration `yaml:"state_change_poll_delay"`

	// TeardownDeadline bounds disposeAsync. Default 3s.
	TeardownDeadline time.Duration `yaml:"teardown_deadline"`

	// ServerIDPath overrides the location of the persisted ServerId
	// file. Empty means the well-known per-user location
	// (os.UserConfigDir()/foveated-streaming/server-id.json).
	ServerIDPath string `yaml:"server_id_path"`
}

// Default returns a Config with the baseline defaults applied. The
// bundle identifier, port, and address still have zero values —
// Validate rejects a Default() config until those are supplied by a
// flag or file.
func Default() *Config {
	return &Config{
		MediaServiceVersion:    "6.0.0",
		MediaServiceBinaryName: "media-service",
		ReleasesRoot:           "releases",
		StatusPollInterval:     200 * time.Millisecond,
		StateChangePollDelay:   50 * time.Millisecond,
		TeardownDeadline:       3 * time.Second,
	}
}

// LoadFile loads a YAML configuration file, merging it over the
// defaults from [Default]. Fields absent from the file keep their
// default value.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the coordinator requires before it
// constructs any subsystem.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BundleID) == "" {
		return &InvalidConfigurationError{Message: "bundle_id must not be empty"}
	}
	if c.Port < 1 {
		return &InvalidConfigurationError{Message: fmt.Sprintf("port %d out of range 1..65535", c.Port)}
	}
	if c.Address != "" && net.ParseIP(c.Address) == nil {
		return &InvalidConfigurationError{Message: fmt.Sprintf("address %q is not a valid IP", c.Address)}
	}
	if c.StatusPollInterval <= 0 {
		return &InvalidConfigurationError{Message: "status_poll_interval must be positive"}
	}
	if c.StateChangePollDelay <= 0 {
		return &InvalidConfigurationError{Message: "state_change_poll_delay must be positive"}
	}
	if c.TeardownDeadline <= 0 {
		return &InvalidConfigurationError{Message: "teardown_deadline must be positive"}
	}
	return nil
}

// ResolvedAddress returns the configured IP, or the unspecified IPv4
// address when Address is empty (bind to all interfaces).
func (c *Config) ResolvedAddress() net.IP {
	if c.Address == "" {
		return net.IPv4zero
	}
	return net.ParseIP(c.Address)
}
