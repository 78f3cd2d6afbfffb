package detector

import "sync"

// Registry holds the candidate surfaces an engine tests against.
// Registration may happen from any goroutine; detection reads a snapshot.
type Registry struct {
	surfaces []Surface
	mu       sync.RWMutex
}

// NewRegistry creates a Registry with the given surfaces.
func NewRegistry(surfaces ...Surface) *Registry {
	r := &Registry{}
	for _, s := range surfaces {
		r.Add(s)
	}
	return r
}

// Add registers a surface. Adding a surface twice is a no-op.
func (r *Registry) Add(s Surface) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.surfaces {
		if existing == s {
			return
		}
	}
	r.surfaces = append(r.surfaces, s)
}

// Remove unregisters a surface.
func (r *Registry) Remove(s Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.surfaces {
		if existing == s {
			r.surfaces = append(r.surfaces[:i], r.surfaces[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered surfaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surfaces)
}

// Surfaces returns a copy of the registered surfaces.
func (r *Registry) Surfaces() []Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Surface, len(r.surfaces))
	copy(out, r.surfaces)
	return out
}

// appendCandidates appends hoverable surfaces on any of the mask's layers to dst.
func (r *Registry) appendCandidates(dst []Surface, mask uint32) []Surface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.surfaces {
		if s.Layer()&mask == 0 || !s.IsHoverable() {
			continue
		}
		dst = append(dst, s)
	}
	return dst
}
