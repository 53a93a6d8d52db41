package engine

import (
	"bytes"
	"encoding/json"
)

// encodeValue serializes a value for engines backed by external stores.
func encodeValue(v any) ([]byte, error) {
	return json.Marshal(v)
}

// decodeValue restores a value written by encodeValue. Numbers come back as
// float64 and structs as map[string]any.
func decodeValue(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
