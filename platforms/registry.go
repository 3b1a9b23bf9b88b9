package platforms

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps platform identifiers to adapter implementations. It is
// populated once at startup; lookups at dispatch time never construct
// adapters on demand.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]PlatformAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]PlatformAdapter)}
}

func (r *Registry) Register(adapter PlatformAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := adapter.Platform()
	if _, exists := r.adapters[name]; exists {
		logrus.Warnf("[PLATFORMS] Adapter %s registered twice, replacing", name)
	}
	r.adapters[name] = adapter
	logrus.Infof("[PLATFORMS] Registered adapter: %s", name)
}

func (r *Registry) Get(platform string) (PlatformAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[platform]
	return adapter, ok
}

// Platforms returns the registered platform identifiers, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
