package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/avgate/avgate/internal/infrastructure/logging"
)

// Factory constructs a device driver from its parsed config.
type Factory func(cfg Config, bus Bus, logger *logging.Logger) (Driver, error)

// classRegistry maps device_class names to constructors. Configs declaring
// an unregistered class are rejected at load.
var (
	classRegistry = make(map[string]Factory)
	registryMu    sync.RWMutex
)

// RegisterClass binds a device class name to its factory. Called from
// driver package init functions.
func RegisterClass(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	classRegistry[name] = factory
}

// NewDriver constructs a driver for a config via the class registry.
//
// Returns:
//   - Driver: Constructed device
//   - error: ErrUnknownClass if the class is not registered
func NewDriver(cfg Config, bus Bus, logger *logging.Logger) (Driver, error) {
	registryMu.RLock()
	factory, ok := classRegistry[cfg.DeviceClass]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, cfg.DeviceClass)
	}

	return factory(cfg, bus, logger)
}

// RegisteredClasses returns the sorted list of known device class names.
func RegisteredClasses() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(classRegistry))
	for name := range classRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
