package capture

import (
	"errors"
	"path/filepath"
	"sync"
)

var errDeviceBusy = errors.New("device busy")

// registry tracks devices held by this process so a second Open of the
// same camera fails fast instead of racing the first for the driver.
var registry = struct {
	mu   sync.Mutex
	held map[string]bool
}{held: make(map[string]bool)}

// acquire reserves device and returns its release function.
func acquire(device string) (func(), error) {
	key := deviceKey(device)

	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.held[key] {
		return nil, unavailable(device, errDeviceBusy)
	}
	registry.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			registry.mu.Lock()
			delete(registry.held, key)
			registry.mu.Unlock()
		})
	}, nil
}

// deviceKey resolves symlinks such as /dev/v4l/by-id/... to the node they point at.
func deviceKey(device string) string {
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		return resolved
	}
	return filepath.Clean(device)
}

// Held reports whether device is currently open in this process.
func Held(device string) bool {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.held[deviceKey(device)]
}
