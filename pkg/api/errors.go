package api

import (
	"errors"
	"fmt"
)

// AddressResolutionError indicates that an address string could not be
// parsed, or that an accessor chain could not be followed through a
// property value (for example, indexing into a value that is not a slice).
// The operation that raised it fails; the caller may recover.
type AddressResolutionError struct {
	Path   string
	Reason string
}

func (e *AddressResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve address %q: %s", e.Path, e.Reason)
}

// IsAddressResolutionError reports whether err is an AddressResolutionError.
func IsAddressResolutionError(err error) bool {
	var e *AddressResolutionError
	return errors.As(err, &e)
}

// UnknownPropertyError indicates that an address named a property a
// protocol does not declare, or targeted a different node entirely. It
// signals a defect in the calling plug-in, not a recoverable condition.
type UnknownPropertyError struct {
	ProtocolID string
	Path       string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("protocol %q has no property addressed by %q", e.ProtocolID, e.Path)
}

// ReadOnlyOutputError indicates an attempt to set a declared output through
// SetValue. Outputs are produced only by Execute.
type ReadOnlyOutputError struct {
	ProtocolID string
	Property   string
}

func (e *ReadOnlyOutputError) Error() string {
	return fmt.Sprintf("output %q of protocol %q is read-only", e.Property, e.ProtocolID)
}

// TypeMismatchError indicates that a schema was applied to a protocol of a
// different declared type.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot apply a %q schema to a %q protocol", e.Got, e.Want)
}

// DuplicateRegistrationError indicates that a type tag was registered twice
// with the same registry.
type DuplicateRegistrationError struct {
	TypeTag string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("protocol type %q is already registered", e.TypeTag)
}

// UnknownTypeError indicates a lookup of a type tag the registry has never
// seen.
type UnknownTypeError struct {
	TypeTag string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol type %q is not registered", e.TypeTag)
}

// PropertyMatchConflictError indicates that a calculation result matched
// more than one queued property. It is recorded against the request rather
// than aborting the batch.
type PropertyMatchConflictError struct {
	PropertyID string
}

func (e *PropertyMatchConflictError) Error() string {
	return fmt.Sprintf("property id %q matched more than one queued property", e.PropertyID)
}
