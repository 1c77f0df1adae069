package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGatewayDataHome returns a directory path for storing gateway-local
// data (eg the SQLite database file when no external DSN is configured),
// per the XDG spec. Overridable via GATEWAY_DATA_HOME.
func GetGatewayDataHome() (string, error) {
	dataDir := os.Getenv("GATEWAY_DATA_HOME")
	if dataDir != "" {
		return dataDir, nil
	}

	dataDir = filepath.Join(xdg.DataHome, "inference-gateway")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create gateway data directory: %w", err)
	}
	return dataDir, nil
}

// GetGatewaySQLitePath returns the path to the gateway's local SQLite
// database file, rooted under GetGatewayDataHome unless overridden directly
// via GATEWAY_SQLITE_PATH (eg to point at a mounted volume in production).
func GetGatewaySQLitePath() (string, error) {
	if path := os.Getenv("GATEWAY_SQLITE_PATH"); path != "" {
		return path, nil
	}
	dataDir, err := GetGatewayDataHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "gateway.db"), nil
}
