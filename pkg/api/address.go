package api

import (
	"fmt"
	"strconv"
	"strings"
)

// AccessorKind discriminates the ways a PathAddress can reach inside a
// property value.
type AccessorKind int

const (
	// AccessorField selects a named field of a struct or a map entry keyed
	// by the field name.
	AccessorField AccessorKind = iota
	// AccessorIndex selects an element of a slice or array.
	AccessorIndex
	// AccessorKey selects a map entry by string key.
	AccessorKey
)

// Accessor is one step into a nested property value.
type Accessor struct {
	Kind  AccessorKind
	Field string
	Index int
	Key   string
}

func (a Accessor) String() string {
	switch a.Kind {
	case AccessorField:
		return "." + a.Field
	case AccessorIndex:
		return "[" + strconv.Itoa(a.Index) + "]"
	default:
		return "[" + a.Key + "]"
	}
}

// PathAddress is an immutable address of a single property on a single
// protocol node, optionally reaching into the property value itself.
//
// The canonical form is
//
//	[id1/id2/]property[.field | [index] | [key]]*
//
// An address without a node chain is "local": it refers to a property of
// whichever protocol it is later bound to (see ResolveAgainst). Two
// addresses are equal exactly when their canonical strings are equal.
//
// All methods return a modified copy; a PathAddress is never mutated in
// place, so addresses may be shared freely between protocols.
type PathAddress struct {
	nodes     []string
	property  string
	accessors []Accessor
}

// NewPathAddress builds an address for a property, optionally scoped to a
// chain of node ids (outermost first). Component names are not validated
// here; ParsePathAddress is the validating entry point.
func NewPathAddress(property string, nodeIDs ...string) PathAddress {
	return PathAddress{
		nodes:    append([]string(nil), nodeIDs...),
		property: property,
	}
}

// ParsePathAddress parses the canonical string form of an address.
func ParsePathAddress(s string) (PathAddress, error) {
	if s == "" {
		return PathAddress{}, &AddressResolutionError{Path: s, Reason: "empty address"}
	}

	var addr PathAddress
	rest := s

	// Everything before the last '/' is the node id chain.
	if idx := strings.LastIndex(rest, "/"); idx >= 0 {
		for _, id := range strings.Split(rest[:idx], "/") {
			if err := validateComponent(id); err != nil {
				return PathAddress{}, &AddressResolutionError{Path: s, Reason: err.Error()}
			}
			addr.nodes = append(addr.nodes, id)
		}
		rest = rest[idx+1:]
	}
	end := strings.IndexAny(rest, ".[")
	if end < 0 {
		end = len(rest)
	}
	addr.property = rest[:end]
	if err := validateComponent(addr.property); err != nil {
		return PathAddress{}, &AddressResolutionError{Path: s, Reason: err.Error()}
	}
	rest = rest[end:]

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			fieldEnd := strings.IndexAny(rest, ".[")
			if fieldEnd < 0 {
				fieldEnd = len(rest)
			}
			field := rest[:fieldEnd]
			if err := validateComponent(field); err != nil {
				return PathAddress{}, &AddressResolutionError{Path: s, Reason: err.Error()}
			}
			addr.accessors = append(addr.accessors, Accessor{Kind: AccessorField, Field: field})
			rest = rest[fieldEnd:]

		case '[':
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return PathAddress{}, &AddressResolutionError{Path: s, Reason: "unterminated accessor"}
			}
			inner := rest[1:close]
			if inner == "" {
				return PathAddress{}, &AddressResolutionError{Path: s, Reason: "empty accessor"}
			}
			if n, err := strconv.Atoi(inner); err == nil {
				addr.accessors = append(addr.accessors, Accessor{Kind: AccessorIndex, Index: n})
			} else {
				addr.accessors = append(addr.accessors, Accessor{Kind: AccessorKey, Key: inner})
			}
			rest = rest[close+1:]

		default:
			return PathAddress{}, &AddressResolutionError{Path: s, Reason: "malformed accessor at " + rest}
		}
	}

	return addr, nil
}

func validateComponent(name string) error {
	if name == "" {
		return fmt.Errorf("empty path component")
	}
	if strings.ContainsAny(name, "/.[]") {
		return fmt.Errorf("path component %q contains a reserved character", name)
	}
	return nil
}

// String returns the canonical form of the address.
func (a PathAddress) String() string {
	var b strings.Builder
	for _, id := range a.nodes {
		b.WriteString(id)
		b.WriteByte('/')
	}
	b.WriteString(a.property)
	for _, acc := range a.accessors {
		b.WriteString(acc.String())
	}
	return b.String()
}

// Property returns the name of the addressed property.
func (a PathAddress) Property() string { return a.property }

// Origin returns the first node id in the chain, or "" for a local address.
func (a PathAddress) Origin() string {
	if len(a.nodes) == 0 {
		return ""
	}
	return a.nodes[0]
}

// Last returns the innermost node id of the chain, or "" for a local address.
func (a PathAddress) Last() string {
	if len(a.nodes) == 0 {
		return ""
	}
	return a.nodes[len(a.nodes)-1]
}

// IsLocal reports whether the address has not yet been bound to a node.
func (a PathAddress) IsLocal() bool { return len(a.nodes) == 0 }

// Accessors returns a copy of the accessor chain.
func (a PathAddress) Accessors() []Accessor {
	return append([]Accessor(nil), a.accessors...)
}

// Field returns a copy of the address descending into a named field.
func (a PathAddress) Field(name string) PathAddress {
	return a.withAccessor(Accessor{Kind: AccessorField, Field: name})
}

// Index returns a copy of the address descending into a slice element.
func (a PathAddress) Index(i int) PathAddress {
	return a.withAccessor(Accessor{Kind: AccessorIndex, Index: i})
}

// Key returns a copy of the address descending into a map entry.
func (a PathAddress) Key(k string) PathAddress {
	return a.withAccessor(Accessor{Kind: AccessorKey, Key: k})
}

func (a PathAddress) withAccessor(acc Accessor) PathAddress {
	out := a.clone()
	out.accessors = append(out.accessors, acc)
	return out
}

// ResolveAgainst binds a local address to a concrete origin node. An
// address that is already bound is returned unchanged.
func (a PathAddress) ResolveAgainst(nodeID string) PathAddress {
	if !a.IsLocal() {
		return a
	}
	out := a.clone()
	out.nodes = []string{nodeID}
	return out
}

// AppendInstanceTag rewrites every node id in the chain to carry the given
// instance tag. Ids already carrying the tag are left alone, so the
// operation is idempotent.
func (a PathAddress) AppendInstanceTag(tag string) PathAddress {
	out := a.clone()
	for i, id := range out.nodes {
		out.nodes[i] = TagNodeID(id, tag)
	}
	return out
}

// Retarget rewrites references to oldID so they point at newID instead.
// Addresses that never mention oldID are returned unchanged.
func (a PathAddress) Retarget(oldID, newID string) PathAddress {
	out := a.clone()
	for i, id := range out.nodes {
		if id == oldID {
			out.nodes[i] = newID
		}
	}
	return out
}

// Equal reports whether two addresses have the same canonical form.
func (a PathAddress) Equal(other PathAddress) bool {
	return a.String() == other.String()
}

// TargetsNode reports whether the address is bound to the given node id.
func (a PathAddress) TargetsNode(nodeID string) bool {
	return a.Origin() == nodeID
}

func (a PathAddress) clone() PathAddress {
	return PathAddress{
		nodes:     append([]string(nil), a.nodes...),
		property:  a.property,
		accessors: append([]Accessor(nil), a.accessors...),
	}
}

// TagNodeID prefixes a node id with a workflow instance tag, unless the id
// already carries it. The tagged form is "<tag>|<id>".
func TagNodeID(id, tag string) string {
	if tag == "" || strings.HasPrefix(id, tag+"|") {
		return id
	}
	return tag + "|" + id
}
