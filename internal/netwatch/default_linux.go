//go:build linux

package netwatch

import "time"

// Default returns the platform's preferred watcher.
func Default(time.Duration) Watcher {
	return NewNetlinkWatcher()
}
