package common

import "fmt"

// GatewayConfigResponse is the gateway configuration with secrets stripped,
// suitable for returning from an admin endpoint or Temporal activity.
type GatewayConfigResponse struct {
	Providers []ModelProviderConfig `json:"providers"`
}

// GetGatewayConfig loads the gateway configuration from disk and strips
// provider keys before returning it, so it is safe to expose to an admin UI
// or log. It is a plain function: the worker does not register it as a
// Temporal activity, and no workflow calls it.
func GetGatewayConfig(configPath string) (GatewayConfigResponse, error) {
	config, err := LoadGatewayConfig(configPath)
	if err != nil {
		return GatewayConfigResponse{}, fmt.Errorf("failed to load gateway config: %w", err)
	}

	providers := make([]ModelProviderConfig, len(config.Providers))
	for i, p := range config.Providers {
		providers[i] = ModelProviderConfig{
			Name:       p.Name,
			Type:       p.Type,
			BaseURL:    p.BaseURL,
			DefaultLLM: p.DefaultLLM,
			SmallLLM:   p.SmallLLM,
		}
	}

	return GatewayConfigResponse{Providers: providers}, nil
}
