package api

// refKey marks an encoded PathAddress reference inside schema input values.
const refKey = "$path"

// ProtocolSchema is the serializable description of a protocol node: its
// id, declared type tag, and every input value. Reference values are
// encoded as {"$path": "<address>"} objects so they survive a JSON round
// trip distinguishably from string literals.
//
// A schema captures configuration only; outputs are never serialized.
type ProtocolSchema struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Inputs map[string]any `json:"inputs"`
}

// encodeSchemaValue converts a live input value into its schema form,
// rewriting PathAddress references (including ones nested one level inside
// slices and maps) into $path objects.
func encodeSchemaValue(value any) any {
	switch v := value.(type) {
	case PathAddress:
		return map[string]any{refKey: v.String()}
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = encodeSchemaValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = encodeSchemaValue(elem)
		}
		return out
	default:
		return value
	}
}

// decodeSchemaValue is the inverse of encodeSchemaValue.
func decodeSchemaValue(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := v[refKey]; ok && len(v) == 1 {
			s, ok := ref.(string)
			if !ok {
				return nil, &AddressResolutionError{Path: "", Reason: "non-string $path reference"}
			}
			return ParsePathAddress(s)
		}
		out := make(map[string]any, len(v))
		for k, elem := range v {
			decoded, err := decodeSchemaValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			decoded, err := decodeSchemaValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return value, nil
	}
}

// Schema exports the protocol's configuration. Every declared input that
// currently holds a value is serialized; references to other protocols are
// preserved as $path objects.
func (b *ProtocolBase) Schema() (*ProtocolSchema, error) {
	schema := &ProtocolSchema{
		ID:     b.id,
		Type:   b.typeName,
		Inputs: make(map[string]any, len(b.inputs)),
	}
	for _, spec := range b.inputs {
		value, ok := b.values[spec.Name]
		if !ok {
			continue
		}
		schema.Inputs[spec.Name] = encodeSchemaValue(value)
	}
	return schema, nil
}

// ApplySchema restores the protocol's configuration from a schema. The
// schema's type tag must match the protocol's own declared type.
func (b *ProtocolBase) ApplySchema(schema *ProtocolSchema) error {
	if schema.Type != b.typeName {
		return &TypeMismatchError{Want: b.typeName, Got: schema.Type}
	}

	b.id = schema.ID

	for key, raw := range schema.Inputs {
		addr, err := ParsePathAddress(key)
		if err != nil {
			return err
		}
		value, err := decodeSchemaValue(raw)
		if err != nil {
			return err
		}
		if err := b.SetValue(addr, value); err != nil {
			return err
		}
	}
	return nil
}
