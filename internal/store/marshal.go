package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/frontbase/internal/ir"
)

// marshalFields converts document fields to canonical JSON TEXT for storage.
// Canonical form keeps stored text stable across rewrites of equal values.
func marshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses stored JSON TEXT into an Object.
func unmarshalFields(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

func marshalDefinition(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal definition: %w", err)
	}
	return string(data), nil
}

func unmarshalModel(data string) (ir.Model, error) {
	var m ir.Model
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return ir.Model{}, fmt.Errorf("unmarshal model: %w", err)
	}
	if m.Fields == nil {
		m.Fields = map[string]ir.FieldDefinition{}
	}
	return m, nil
}

func unmarshalProcess(data string) (ir.ProcessSpec, error) {
	var p ir.ProcessSpec
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return ir.ProcessSpec{}, fmt.Errorf("unmarshal process: %w", err)
	}
	return p, nil
}
