package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGatewayCacheHome returns a directory path for storing gateway-local
// cache data (eg the models.dev catalog snapshot), creating it if needed
// per the XDG spec. Overridable via GATEWAY_CACHE_HOME.
func GetGatewayCacheHome() (string, error) {
	cacheDir := os.Getenv("GATEWAY_CACHE_HOME")
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create gateway cache directory from GATEWAY_CACHE_HOME: %w", err)
		}
		return cacheDir, nil
	}

	cacheDir = filepath.Join(xdg.CacheHome, "inference-gateway")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create gateway cache directory: %w", err)
	}
	return cacheDir, nil
}
