package provider

import "sync"

// Process-wide active provider. Set once at startup via Initialize;
// lazily defaults to an env-backed static provider on first read so
// ad-hoc local use needs no explicit wiring.
var (
	registryMu sync.RWMutex
	active     TokenProvider
)

// Initialize sets the process-wide active provider. Intended to be called
// exactly once at startup; last write wins.
func Initialize(p TokenProvider) {
	registryMu.Lock()
	active = p
	registryMu.Unlock()
}

// Active returns the process-wide provider, constructing and caching the
// env-backed default if Initialize was never called.
func Active() TokenProvider {
	registryMu.RLock()
	p := active
	registryMu.RUnlock()
	if p != nil {
		return p
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if active == nil {
		active = StaticFromEnv()
	}
	return active
}

// ResetForTest clears the registry so tests don't leak providers into each
// other.
func ResetForTest() {
	registryMu.Lock()
	active = nil
	registryMu.Unlock()
}
