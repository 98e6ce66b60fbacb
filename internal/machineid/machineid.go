// Package machineid derives the stable per-machine name used for service
// advertisements.
package machineid

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

const machineIDPath = "/etc/machine-id"

// InstanceName returns a stable identifier for this machine: the machine-id
// when available, the hostname otherwise. As a last resort it returns a
// random id, unique per process but no longer stable across restarts.
func InstanceName() string {
	if data, err := os.ReadFile(machineIDPath); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}

	return uuid.NewString()
}
