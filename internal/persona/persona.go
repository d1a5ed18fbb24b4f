// Package persona holds the currently-active domain.Persona and allows
// atomic hot-swap, per the PersonaRuntime component: readers never see a
// torn Persona value, including mid-swap while a neural step is in flight.
package persona

import (
	"sync/atomic"

	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
)

// SwapObserver is notified after a successful Swap. The Dashboard and
// WakeWordDetector register one each to refresh their own state (colors,
// wake-word set) without PersonaRuntime knowing about either.
type SwapObserver func(p domain.Persona)

// Runtime holds the active Persona behind a lock-free atomic pointer, the
// idiom the donor uses elsewhere for small shared state
// (speech.Ear's earState in the donor uses an atomic+mutex combination;
// here a single atomic.Pointer suffices because Persona is replaced
// wholesale, never mutated in place).
type Runtime struct {
	log       *logger.Logger
	loader    domain.PersonaLoader
	active    atomic.Pointer[domain.Persona]
	observers []SwapObserver
}

// New creates a Runtime with the given initial persona and loader. loader
// may be nil if callers only ever construct personas directly (tests).
func New(log *logger.Logger, loader domain.PersonaLoader, initial domain.Persona) *Runtime {
	r := &Runtime{log: log, loader: loader}
	r.active.Store(&initial)
	return r
}

// Active returns the currently active persona. Cheap, lock-free.
func (r *Runtime) Active() domain.Persona {
	p := r.active.Load()
	if p == nil {
		return domain.Persona{}
	}
	return *p
}

// Swap replaces the active persona atomically and notifies observers.
// Any caller observing Active() after Swap returns sees the new value; a
// step already in flight keeps using the value it captured before the
// swap, so no step ever sees a torn mix of old and new persona fields.
func (r *Runtime) Swap(p domain.Persona) {
	r.active.Store(&p)
	if r.log != nil {
		r.log.Info("persona: swapped to %q", p.Name)
	}
	for _, obs := range r.observers {
		obs(p)
	}
}

// OnSwap registers an observer fired synchronously at the end of Swap.
// Call before the runtime is shared across goroutines.
func (r *Runtime) OnSwap(obs SwapObserver) {
	r.observers = append(r.observers, obs)
}

// ListAvailable delegates to the injected PersonaLoader.
func (r *Runtime) ListAvailable() ([]domain.PersonaDescriptor, error) {
	if r.loader == nil {
		return nil, domain.ErrNotImplemented
	}
	return r.loader.ListAvailable()
}

// LoadByName delegates to the injected PersonaLoader. It does not swap;
// callers decide when (and whether) to apply the loaded persona via Swap.
func (r *Runtime) LoadByName(name string) (domain.Persona, error) {
	if r.loader == nil {
		return domain.Persona{}, domain.ErrNotImplemented
	}
	return r.loader.LoadByName(name)
}
