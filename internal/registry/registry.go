// Package registry maps protocol type tags to constructors so that
// serialized workflow schemas can be rehydrated into live protocol nodes.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jpekkanen/estiva/pkg/api"
)

// Factory builds a fresh protocol node with the given id. Each call must
// return an independent instance; registries never share node state.
type Factory func(id string) api.Protocol

// ProtocolRegistry is a concurrency-safe map from type tag to Factory.
//
// The zero value is not usable; call New.
type ProtocolRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func New() *ProtocolRegistry {
	return &ProtocolRegistry{
		factories: make(map[string]Factory),
	}
}

// Register adds a protocol type. The factory is probed once at
// registration so malformed declarations fail here rather than at first
// use: the built node must report the tag it was registered under and
// carry no duplicate property names.
func (r *ProtocolRegistry) Register(typeTag string, factory Factory) error {
	if typeTag == "" {
		return fmt.Errorf("register protocol: empty type tag")
	}
	if factory == nil {
		return fmt.Errorf("register protocol %q: nil factory", typeTag)
	}

	probe := factory("probe")
	if probe == nil {
		return fmt.Errorf("register protocol %q: factory returned nil", typeTag)
	}
	if probe.TypeName() != typeTag {
		return fmt.Errorf("register protocol %q: factory builds type %q", typeTag, probe.TypeName())
	}
	if err := checkDeclarations(probe); err != nil {
		return fmt.Errorf("register protocol %q: %w", typeTag, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeTag]; exists {
		return &api.DuplicateRegistrationError{TypeTag: typeTag}
	}
	r.factories[typeTag] = factory
	return nil
}

// NewProtocol builds a fresh node of the given type.
func (r *ProtocolRegistry) NewProtocol(typeTag, id string) (api.Protocol, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeTag]
	r.mu.RUnlock()

	if !ok {
		return nil, &api.UnknownTypeError{TypeTag: typeTag}
	}
	return factory(id), nil
}

// FromSchema builds a node of the schema's type and applies the schema's
// id and inputs to it.
func (r *ProtocolRegistry) FromSchema(schema *api.ProtocolSchema) (api.Protocol, error) {
	node, err := r.NewProtocol(schema.Type, schema.ID)
	if err != nil {
		return nil, err
	}
	if err := node.ApplySchema(schema); err != nil {
		return nil, err
	}
	return node, nil
}

// Types returns the registered type tags in sorted order.
func (r *ProtocolRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func checkDeclarations(p api.Protocol) error {
	seen := make(map[string]string)
	for _, in := range p.Inputs() {
		if in.Name == "" {
			return fmt.Errorf("input with empty name")
		}
		if prior, ok := seen[in.Name]; ok {
			return fmt.Errorf("property %q declared as both %s and input", in.Name, prior)
		}
		seen[in.Name] = "input"
	}
	for _, out := range p.Outputs() {
		if out.Name == "" {
			return fmt.Errorf("output with empty name")
		}
		if prior, ok := seen[out.Name]; ok {
			return fmt.Errorf("property %q declared as both %s and output", out.Name, prior)
		}
		seen[out.Name] = "output"
	}
	return nil
}
