// Package codec provides the JSON marshal/unmarshal helpers used to
// serialize the pkg/events envelope that carries cache events.
package codec

import (
	"encoding/json"
	"fmt"
)

// Marshal is a thin wrapper adding context to encoding errors.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal is a thin wrapper adding context to decoding errors.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: cannot unmarshal empty data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}

// Pretty formats JSON with indentation, for admin/debug endpoints.
func Pretty(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("codec: invalid JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: pretty: %w", err)
	}
	return pretty, nil
}

// EstimateSize approximates the encoded size of v in bytes, for memory accounting.
func EstimateSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
