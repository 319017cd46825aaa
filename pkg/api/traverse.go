package api

import (
	"fmt"
	"reflect"
)

// followAccessors walks an accessor chain down into a property value.
func followAccessors(root any, addr PathAddress) (any, error) {
	current := root
	for _, acc := range addr.accessors {
		next, err := applyAccessor(current, acc)
		if err != nil {
			return nil, &AddressResolutionError{Path: addr.String(), Reason: err.Error()}
		}
		current = next
	}
	return current, nil
}

func applyAccessor(value any, acc Accessor) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("accessor %s applied to nil value", acc)
	}

	switch acc.Kind {
	case AccessorField:
		if m, ok := value.(map[string]any); ok {
			v, ok := m[acc.Field]
			if !ok {
				return nil, fmt.Errorf("no entry %q", acc.Field)
			}
			return v, nil
		}
		rv := reflect.ValueOf(value)
		for rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil, fmt.Errorf("accessor %s applied to nil pointer", acc)
			}
			rv = rv.Elem()
		}
		if rv.Kind() == reflect.Struct {
			field := rv.FieldByName(acc.Field)
			if !field.IsValid() {
				return nil, fmt.Errorf("no field %q on %T", acc.Field, value)
			}
			return field.Interface(), nil
		}
		return nil, fmt.Errorf("field accessor %s applied to %T", acc, value)

	case AccessorIndex:
		if s, ok := value.([]any); ok {
			if acc.Index < 0 || acc.Index >= len(s) {
				return nil, fmt.Errorf("index %d out of range (len %d)", acc.Index, len(s))
			}
			return s[acc.Index], nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("index accessor %s applied to %T", acc, value)
		}
		if acc.Index < 0 || acc.Index >= rv.Len() {
			return nil, fmt.Errorf("index %d out of range (len %d)", acc.Index, rv.Len())
		}
		return rv.Index(acc.Index).Interface(), nil

	default: // AccessorKey
		if m, ok := value.(map[string]any); ok {
			v, ok := m[acc.Key]
			if !ok {
				return nil, fmt.Errorf("no entry %q", acc.Key)
			}
			return v, nil
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("key accessor %s applied to %T", acc, value)
		}
		item := rv.MapIndex(reflect.ValueOf(acc.Key))
		if !item.IsValid() {
			return nil, fmt.Errorf("no entry %q", acc.Key)
		}
		return item.Interface(), nil
	}
}

// setThroughAccessors assigns into a nested position of a stored property
// value. The top-level value must already exist; only its interior is
// rewritten.
func setThroughAccessors(root any, addr PathAddress, value any) error {
	accs := addr.accessors
	parent := root
	for _, acc := range accs[:len(accs)-1] {
		next, err := applyAccessor(parent, acc)
		if err != nil {
			return &AddressResolutionError{Path: addr.String(), Reason: err.Error()}
		}
		parent = next
	}

	last := accs[len(accs)-1]
	if err := assignAccessor(parent, last, value); err != nil {
		return &AddressResolutionError{Path: addr.String(), Reason: err.Error()}
	}
	return nil
}

func assignAccessor(container any, acc Accessor, value any) error {
	if container == nil {
		return fmt.Errorf("accessor %s applied to nil value", acc)
	}

	switch acc.Kind {
	case AccessorField:
		if m, ok := container.(map[string]any); ok {
			m[acc.Field] = value
			return nil
		}
		rv := reflect.ValueOf(container)
		if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
			field := rv.Elem().FieldByName(acc.Field)
			if !field.IsValid() || !field.CanSet() {
				return fmt.Errorf("no settable field %q on %T", acc.Field, container)
			}
			field.Set(reflect.ValueOf(value))
			return nil
		}
		return fmt.Errorf("field accessor %s cannot assign into %T", acc, container)

	case AccessorIndex:
		if s, ok := container.([]any); ok {
			if acc.Index < 0 || acc.Index >= len(s) {
				return fmt.Errorf("index %d out of range (len %d)", acc.Index, len(s))
			}
			s[acc.Index] = value
			return nil
		}
		rv := reflect.ValueOf(container)
		if rv.Kind() != reflect.Slice {
			return fmt.Errorf("index accessor %s cannot assign into %T", acc, container)
		}
		if acc.Index < 0 || acc.Index >= rv.Len() {
			return fmt.Errorf("index %d out of range (len %d)", acc.Index, rv.Len())
		}
		rv.Index(acc.Index).Set(reflect.ValueOf(value))
		return nil

	default: // AccessorKey
		if m, ok := container.(map[string]any); ok {
			m[acc.Key] = value
			return nil
		}
		rv := reflect.ValueOf(container)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("key accessor %s cannot assign into %T", acc, container)
		}
		rv.SetMapIndex(reflect.ValueOf(acc.Key), reflect.ValueOf(value))
		return nil
	}
}
