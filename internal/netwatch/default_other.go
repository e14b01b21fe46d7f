//go:build !linux

package netwatch

import (
	"time"

	"NetSpeedMonitor/internal/topology"
)

// Default returns the platform's preferred watcher.
func Default(pollInterval time.Duration) Watcher {
	return NewPollWatcher(pollInterval, topology.HostInterfaces)
}
