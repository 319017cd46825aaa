package engine

import (
	"fmt"
	"sync"

	"github.com/jpekkanen/estiva/internal/layer"
)

// layerRegistry holds the calculation layers a coordinator runs, in
// registration order.
type layerRegistry struct {
	mu     sync.RWMutex
	byName map[string]layer.Layer
	order  []string
}

func newLayerRegistry() *layerRegistry {
	return &layerRegistry{
		byName: make(map[string]layer.Layer),
	}
}

func (r *layerRegistry) Register(l layer.Layer) error {
	if l == nil {
		return fmt.Errorf("register layer: nil layer")
	}
	name := l.Name()
	if name == "" {
		return fmt.Errorf("register layer: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("layer %q already registered", name)
	}
	r.byName[name] = l
	r.order = append(r.order, name)
	return nil
}

// At returns the i-th registered layer, or nil when i is past the end.
func (r *layerRegistry) At(i int) layer.Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.order) {
		return nil
	}
	return r.byName[r.order[i]]
}

func (r *layerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *layerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
