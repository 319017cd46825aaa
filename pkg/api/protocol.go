package api

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// MergePolicy decides how one declared input behaves when two structurally
// identical protocols are collapsed into one.
type MergePolicy int

const (
	// MergeUnmanaged leaves the input untouched during a merge; the caller
	// (typically the enclosing graph construction) is responsible for it.
	// It is the zero value, so undeclared behaviour defaults to "hands off".
	MergeUnmanaged MergePolicy = iota

	// MergeExactlyEqual requires both protocols to hold an equal value for
	// the input before a merge is allowed at all.
	MergeExactlyEqual

	// MergeSmallest keeps the smaller of the two values on the survivor.
	MergeSmallest

	// MergeGreatest keeps the greater of the two values on the survivor.
	MergeGreatest
)

func (p MergePolicy) String() string {
	switch p {
	case MergeUnmanaged:
		return "Unmanaged"
	case MergeExactlyEqual:
		return "ExactlyEqual"
	case MergeSmallest:
		return "Smallest"
	case MergeGreatest:
		return "Greatest"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// InputSpec statically describes one settable input of a protocol type.
// The full set of specs is fixed when the protocol is constructed and never
// changes afterwards.
type InputSpec struct {
	Name   string
	Policy MergePolicy

	// Default, if non-nil, is the initial value of the input.
	Default any
}

// OutputSpec statically describes one computed output of a protocol type.
type OutputSpec struct {
	Name string
}

// Protocol is a single addressable unit of work in a workflow graph.
//
// Concrete protocols embed *ProtocolBase, which supplies everything except
// Execute, and implement Execute with the domain computation. Inputs may be
// literal values or PathAddress references to the outputs of other
// protocols; references define the edges of the graph.
type Protocol interface {
	ID() string
	TypeName() string
	Inputs() []InputSpec
	Outputs() []OutputSpec
	AllowMerging() bool

	// Value returns the value addressed by addr, following any nested
	// accessors into the stored value.
	Value(addr PathAddress) (any, error)

	// SetValue sets the input addressed by addr. Declared outputs are
	// read-only through this method.
	SetValue(addr PathAddress, value any) error

	// Dependencies returns the addresses of other protocols' properties
	// that this protocol's inputs currently reference.
	Dependencies() []PathAddress

	// CanMerge reports whether other could be collapsed into this
	// protocol without changing the meaning of the graph.
	CanMerge(other Protocol) bool

	// Merge folds other into this protocol according to each input's
	// MergePolicy. The caller must have verified CanMerge first. The
	// returned map lists node id substitutions the caller must apply to
	// the rest of the graph (empty for plain protocols).
	Merge(other Protocol) (map[string]string, error)

	// AppendInstanceTag rewrites the protocol id and every address held in
	// its inputs to carry a per-job instance tag.
	AppendInstanceTag(tag string)

	// Retarget rewrites input references from oldID to newID after a merge
	// elsewhere in the graph.
	Retarget(oldID, newID string)

	Schema() (*ProtocolSchema, error)
	ApplySchema(schema *ProtocolSchema) error

	// Execute runs the protocol in workDir and returns its outputs keyed
	// by output name. Domain failures are returned as *StructuredError.
	Execute(ctx context.Context, workDir string, resources ComputeResources) (map[string]any, error)
}

// ProtocolBase is the embeddable implementation of everything in the
// Protocol contract except the domain computation.
type ProtocolBase struct {
	id       string
	typeName string

	inputs  []InputSpec
	outputs []OutputSpec

	inputIndex  map[string]int
	outputIndex map[string]struct{}

	values       map[string]any
	outputValues map[string]any

	allowMerging bool
}

// NewProtocolBase constructs the shared state of a protocol node. The
// input and output specs become the node's fixed declarations; defaults
// are applied immediately.
func NewProtocolBase(id, typeName string, inputs []InputSpec, outputs []OutputSpec) *ProtocolBase {
	b := &ProtocolBase{
		id:           id,
		typeName:     typeName,
		inputs:       append([]InputSpec(nil), inputs...),
		outputs:      append([]OutputSpec(nil), outputs...),
		inputIndex:   make(map[string]int, len(inputs)),
		outputIndex:  make(map[string]struct{}, len(outputs)),
		values:       make(map[string]any, len(inputs)),
		outputValues: make(map[string]any, len(outputs)),
		allowMerging: true,
	}
	for i, in := range b.inputs {
		b.inputIndex[in.Name] = i
		if in.Default != nil {
			b.values[in.Name] = in.Default
		}
	}
	for _, out := range b.outputs {
		b.outputIndex[out.Name] = struct{}{}
	}
	return b
}

func (b *ProtocolBase) ID() string           { return b.id }
func (b *ProtocolBase) TypeName() string     { return b.typeName }
func (b *ProtocolBase) Inputs() []InputSpec  { return append([]InputSpec(nil), b.inputs...) }
func (b *ProtocolBase) Outputs() []OutputSpec {
	return append([]OutputSpec(nil), b.outputs...)
}
func (b *ProtocolBase) AllowMerging() bool { return b.allowMerging }

// SetAllowMerging opts the protocol out of (or back into) deduplication.
func (b *ProtocolBase) SetAllowMerging(allow bool) { b.allowMerging = allow }

// checkTarget verifies that addr refers to a declared property of this
// node, returning whether it names an output.
func (b *ProtocolBase) checkTarget(addr PathAddress) (isOutput bool, err error) {
	if !addr.IsLocal() && addr.Origin() != b.id {
		return false, &UnknownPropertyError{ProtocolID: b.id, Path: addr.String()}
	}
	if _, ok := b.inputIndex[addr.Property()]; ok {
		return false, nil
	}
	if _, ok := b.outputIndex[addr.Property()]; ok {
		return true, nil
	}
	return false, &UnknownPropertyError{ProtocolID: b.id, Path: addr.String()}
}

func (b *ProtocolBase) Value(addr PathAddress) (any, error) {
	isOutput, err := b.checkTarget(addr)
	if err != nil {
		return nil, err
	}

	var root any
	if isOutput {
		root = b.outputValues[addr.Property()]
	} else {
		root = b.values[addr.Property()]
	}
	return followAccessors(root, addr)
}

func (b *ProtocolBase) SetValue(addr PathAddress, value any) error {
	isOutput, err := b.checkTarget(addr)
	if err != nil {
		return err
	}
	if isOutput {
		return &ReadOnlyOutputError{ProtocolID: b.id, Property: addr.Property()}
	}

	if len(addr.Accessors()) == 0 {
		b.values[addr.Property()] = value
		return nil
	}
	return setThroughAccessors(b.values[addr.Property()], addr, value)
}

// SetOutput records a computed output value. It is intended for use by
// Execute implementations; it bypasses the read-only rule that applies to
// SetValue callers.
func (b *ProtocolBase) SetOutput(name string, value any) error {
	if _, ok := b.outputIndex[name]; !ok {
		return &UnknownPropertyError{ProtocolID: b.id, Path: name}
	}
	b.outputValues[name] = value
	return nil
}

// OutputMap returns the current values of every declared output.
func (b *ProtocolBase) OutputMap() map[string]any {
	out := make(map[string]any, len(b.outputs))
	for _, spec := range b.outputs {
		out[spec.Name] = b.outputValues[spec.Name]
	}
	return out
}

// Execute is the default implementation: a protocol with no computation
// simply reports its outputs. Concrete protocols override this.
func (b *ProtocolBase) Execute(ctx context.Context, workDir string, resources ComputeResources) (map[string]any, error) {
	return b.OutputMap(), nil
}

func (b *ProtocolBase) Dependencies() []PathAddress {
	var deps []PathAddress
	seen := make(map[string]struct{})

	add := func(addr PathAddress) {
		if addr.IsLocal() || addr.Origin() == b.id {
			return
		}
		key := addr.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		deps = append(deps, addr)
	}

	for _, spec := range b.inputs {
		value := b.values[spec.Name]
		switch v := value.(type) {
		case PathAddress:
			add(v)
		case []any:
			for _, elem := range v {
				if addr, ok := elem.(PathAddress); ok {
					add(addr)
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if addr, ok := v[k].(PathAddress); ok {
					add(addr)
				}
			}
		}
	}
	return deps
}

// isLocalValue reports whether an input value stays within this node's own
// scope, i.e. is not a reference to some other node's property.
func (b *ProtocolBase) isLocalValue(value any) bool {
	addr, ok := value.(PathAddress)
	if !ok {
		return true
	}
	return addr.IsLocal() || addr.Origin() == b.id
}

func (b *ProtocolBase) CanMerge(other Protocol) bool {
	if !b.allowMerging || !other.AllowMerging() {
		return false
	}
	if b.typeName != other.TypeName() {
		return false
	}

	for _, spec := range b.inputs {
		if spec.Policy != MergeExactlyEqual {
			continue
		}

		selfValue := b.values[spec.Name]
		if !b.isLocalValue(selfValue) {
			// References into the wider graph are resolved by the merge
			// engine, not compared here.
			continue
		}

		otherValue, err := other.Value(NewPathAddress(spec.Name))
		if err != nil {
			return false
		}
		if !valuesEqual(selfValue, otherValue) {
			return false
		}
	}
	return true
}

func (b *ProtocolBase) Merge(other Protocol) (map[string]string, error) {
	for _, spec := range b.inputs {
		if spec.Policy != MergeSmallest && spec.Policy != MergeGreatest {
			continue
		}

		selfValue := b.values[spec.Name]
		if !b.isLocalValue(selfValue) {
			continue
		}

		otherValue, err := other.Value(NewPathAddress(spec.Name))
		if err != nil {
			return nil, fmt.Errorf("merge %s into %s: %w", other.ID(), b.id, err)
		}

		cmp, err := compareValues(selfValue, otherValue)
		if err != nil {
			return nil, fmt.Errorf("merge %s into %s, input %q: %w", other.ID(), b.id, spec.Name, err)
		}

		keep := selfValue
		if (spec.Policy == MergeSmallest && cmp > 0) || (spec.Policy == MergeGreatest && cmp < 0) {
			keep = otherValue
		}
		b.values[spec.Name] = keep
	}
	return map[string]string{}, nil
}

func (b *ProtocolBase) AppendInstanceTag(tag string) {
	b.id = TagNodeID(b.id, tag)
	b.rewriteAddresses(func(addr PathAddress) PathAddress {
		return addr.AppendInstanceTag(tag)
	})
}

func (b *ProtocolBase) Retarget(oldID, newID string) {
	b.rewriteAddresses(func(addr PathAddress) PathAddress {
		return addr.Retarget(oldID, newID)
	})
}

func (b *ProtocolBase) rewriteAddresses(rewrite func(PathAddress) PathAddress) {
	for _, spec := range b.inputs {
		switch v := b.values[spec.Name].(type) {
		case PathAddress:
			b.values[spec.Name] = rewrite(v)
		case []any:
			for i, elem := range v {
				if addr, ok := elem.(PathAddress); ok {
					v[i] = rewrite(addr)
				}
			}
		case map[string]any:
			for k, elem := range v {
				if addr, ok := elem.(PathAddress); ok {
					v[k] = rewrite(addr)
				}
			}
		}
	}
}

func valuesEqual(a, b any) bool {
	if aAddr, ok := a.(PathAddress); ok {
		bAddr, ok := b.(PathAddress)
		return ok && aAddr.Equal(bAddr)
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values of the same general kind. Numbers are
// compared numerically across int/uint/float representations, strings
// lexicographically.
func compareValues(a, b any) (int, error) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		default:
			return 0, nil
		}
	}

	return 0, fmt.Errorf("values of type %T are not ordered", a)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
