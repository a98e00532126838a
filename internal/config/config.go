// Package config loads the process-wide policy and provider configuration
// that seeds a thread's default TurnContext: approval policy, sandbox
// policy, auto-compaction limits, and per-provider model settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/corerun/agentcore/internal/protocol"
)

// ProviderSettings configures one named model provider endpoint.
type ProviderSettings struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Config is the top-level process configuration, loaded once at startup
// from $AGENTCORE_HOME/config.yaml.
type Config struct {
	ApprovalPolicy   protocol.ApprovalPolicy     `yaml:"approval_policy"`
	SandboxPolicy    SandboxPolicyConfig         `yaml:"sandbox_policy"`
	AutoCompactLimit int                         `yaml:"auto_compact_limit"`
	WindowPercent    float64                     `yaml:"window_percent"`
	DefaultProvider  string                      `yaml:"default_provider"`
	Providers        map[string]ProviderSettings `yaml:"providers"`
}

// SandboxPolicyConfig is the YAML-friendly mirror of protocol.SandboxPolicy.
type SandboxPolicyConfig struct {
	Kind             string   `yaml:"kind"`
	WritableRoots    []string `yaml:"writable_roots"`
	NetworkAllowed   bool     `yaml:"network_allowed"`
}

// ToPolicy converts the loaded YAML shape into protocol.SandboxPolicy.
func (c SandboxPolicyConfig) ToPolicy() protocol.SandboxPolicy {
	switch c.Kind {
	case "workspace_write":
		return protocol.WorkspaceWriteSandbox(c.WritableRoots, c.NetworkAllowed)
	case "danger_full_access":
		return protocol.DangerFullAccessSandbox()
	default:
		return protocol.ReadOnlySandbox()
	}
}

// Default returns the safe-by-default configuration used when no config
// file is present, matching the teacher's permissive-by-default /
// deny-list-for-safety idiom in safeguard/config.go.
func Default() *Config {
	return &Config{
		ApprovalPolicy: protocol.ApprovalUnlessTrusted,
		SandboxPolicy: SandboxPolicyConfig{
			Kind:           "workspace_write",
			WritableRoots:  []string{"."},
			NetworkAllowed: false,
		},
		AutoCompactLimit: 0,
		WindowPercent:    0.75,
		DefaultProvider:  "default",
		Providers:        map[string]ProviderSettings{},
	}
}

// HomeDir resolves $AGENTCORE_HOME, falling back to ~/.agentcore.
func HomeDir() (string, error) {
	if home := os.Getenv("AGENTCORE_HOME"); home != "" {
		return home, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(dir, ".agentcore"), nil
}

// Load reads <home>/config.yaml, returning Default() unchanged if the file
// does not exist.
func Load(home string) (*Config, error) {
	path := filepath.Join(home, "config.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
