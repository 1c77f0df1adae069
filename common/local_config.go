package common

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// GatewayConfig represents the operator-supplied configuration file: the set
// of upstream LLM providers the gateway is allowed to dispatch to, keyed so
// the secret manager and the provider factory can both resolve a provider by
// name (spec §4.5).
type GatewayConfig struct {
	Providers []ModelProviderConfig `koanf:"providers,omitempty"`
}

func (c GatewayConfig) customProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name)
	}
	return names
}

func (c GatewayConfig) validateProvider(provider string) error {
	if slices.Contains(BuiltinProviders, provider) {
		return nil
	}
	if !slices.Contains(c.customProviderNames(), provider) {
		return fmt.Errorf("invalid provider name: %s", provider)
	}
	return nil
}

// Validate ensures every configured provider entry is well-formed.
func (c GatewayConfig) Validate() error {
	for _, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid provider %s: %w", p.Name, err)
		}
		if err := c.validateProvider(p.Type); err == nil {
			// provider type is one of the builtin families or a declared
			// openai_compatible entry; nothing further to check here.
			continue
		}
	}
	return nil
}

// LoadGatewayConfig loads the gateway configuration from the given file
// path, parsed as YAML, TOML or JSON according to its extension. A missing
// file is not an error — it yields an empty config, so the
// gateway can run purely off environment-variable secrets.
func LoadGatewayConfig(configPath string) (GatewayConfig, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GatewayConfig{}, nil
	}

	parser := GetParserForExtension(configPath)
	if parser == nil {
		return GatewayConfig{}, fmt.Errorf("unsupported config file extension: %s", configPath)
	}

	if err := k.Load(file.Provider(configPath), parser); err != nil {
		return GatewayConfig{}, fmt.Errorf("error loading config: %w", err)
	}

	var config GatewayConfig
	if err := k.Unmarshal("", &config); err != nil {
		return GatewayConfig{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func GetGatewayConfigDir() string {
	configDir := xdg.ConfigHome
	for _, dir := range xdg.ConfigDirs {
		if filepath.Base(dir) == ".config" {
			configDir = dir
			break
		}
	}
	return filepath.Join(configDir, "inference-gateway")
}

func GetGatewayConfigPath() string {
	return filepath.Join(GetGatewayConfigDir(), "config.yml")
}
