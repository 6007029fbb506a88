// Package config loads optional JSON settings for the replay commands.
// Command-line flags take precedence over anything set here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NCAR/aircraft-oap/internal/oap"
)

const (
	DefaultHost  = "127.0.0.1"
	DefaultPort  = 5000
	DefaultDelay = 200 * time.Millisecond
)

// ReplayConfig mirrors the oap-send flags. Nil fields fall back to defaults.
type ReplayConfig struct {
	Host       *string `json:"host,omitempty"`
	Port       *int    `json:"port,omitempty"`
	Delay      *string `json:"delay,omitempty"` // duration string like "200ms"
	FullRecord *bool   `json:"full_record,omitempty"`

	// Mode is "reconstructed" or "raw"; full_record=true forces raw.
	Mode *string `json:"mode,omitempty"`

	// PCAPPort filters pcap input on UDP destination port; 0 means any.
	PCAPPort *int `json:"pcap_port,omitempty"`

	// ListenPort is used by oap-listen.
	ListenPort *int `json:"listen_port,omitempty"`
}

// LoadReplayConfig reads and validates a JSON config file.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ReplayConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *ReplayConfig) Validate() error {
	if c.Host != nil && *c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		return fmt.Errorf("port must be in 1..65535, got %d", *c.Port)
	}
	if c.ListenPort != nil && (*c.ListenPort < 1 || *c.ListenPort > 65535) {
		return fmt.Errorf("listen_port must be in 1..65535, got %d", *c.ListenPort)
	}
	if c.PCAPPort != nil && (*c.PCAPPort < 0 || *c.PCAPPort > 65535) {
		return fmt.Errorf("pcap_port must be in 0..65535, got %d", *c.PCAPPort)
	}
	if c.Mode != nil {
		if _, err := oap.ParseMode(*c.Mode); err != nil {
			return err
		}
	}
	if c.Delay != nil {
		d, err := time.ParseDuration(*c.Delay)
		if err != nil {
			return fmt.Errorf("invalid delay %q: %w", *c.Delay, err)
		}
		if d < 0 {
			return fmt.Errorf("delay must not be negative, got %v", d)
		}
	}
	return nil
}

func (c *ReplayConfig) GetHost() string {
	if c == nil || c.Host == nil {
		return DefaultHost
	}
	return *c.Host
}

func (c *ReplayConfig) GetPort() int {
	if c == nil || c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

func (c *ReplayConfig) GetListenPort() int {
	if c == nil || c.ListenPort == nil {
		return DefaultPort
	}
	return *c.ListenPort
}

func (c *ReplayConfig) GetPCAPPort() int {
	if c == nil || c.PCAPPort == nil {
		return 0
	}
	return *c.PCAPPort
}

// GetDelay returns the configured delay. Validate has already rejected
// unparseable values, so a parse failure here falls back to the default.
func (c *ReplayConfig) GetDelay() time.Duration {
	if c == nil || c.Delay == nil {
		return DefaultDelay
	}
	d, err := time.ParseDuration(*c.Delay)
	if err != nil {
		return DefaultDelay
	}
	return d
}

func (c *ReplayConfig) GetFullRecord() bool {
	if c == nil || c.FullRecord == nil {
		return false
	}
	return *c.FullRecord
}

// GetMode returns the configured stream mode, raw when full_record is set.
func (c *ReplayConfig) GetMode() oap.Mode {
	if c.GetFullRecord() {
		return oap.ModeRaw
	}
	if c == nil || c.Mode == nil {
		return oap.ModeReconstructed
	}
	m, err := oap.ParseMode(*c.Mode)
	if err != nil {
		return oap.ModeReconstructed
	}
	return m
}
