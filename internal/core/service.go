package core

import "sync"

// serviceRegistry holds named runtime services that modules expose to each
// other: a links store, a metrics recorder, an HTTP handler to mount. It is
// shared by every AppContext derived from the same root.
type serviceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

func newServiceRegistry() *serviceRegistry {
	return &serviceRegistry{services: make(map[string]any)}
}

// RegisterService publishes a service under the given name, overwriting any
// previous registration. Modules call this during Provision so that later
// modules (and the wiring layer) can look the service up by name.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.services[name] = svc
}

// Service returns the service registered under name, or false when nothing
// is registered. Callers type-assert the result to the interface they need.
func (ctx *AppContext) Service(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.services[name]
	return svc, ok
}
