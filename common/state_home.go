package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetGatewayStateHome returns a directory path for storing gateway state
// (logs, traces), per the XDG spec. Overridable via GATEWAY_STATE_HOME.
func GetGatewayStateHome() (string, error) {
	stateDir := os.Getenv("GATEWAY_STATE_HOME")
	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create gateway state directory from GATEWAY_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "inference-gateway")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create gateway state directory: %w", err)
	}
	return stateDir, nil
}
