package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Normalize turns a decoded body into a uniform batch: a JSON object
// becomes a batch of one, an array stays a batch, an absent body is an
// empty batch. Everything downstream handles exactly one shape.
func Normalize(body []byte) ([]map[string]interface{}, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	if body[0] == '[' {
		var batch []map[string]interface{}
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("payload: decode batch: %w", err)
		}
		return batch, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("payload: decode record: %w", err)
	}
	return []map[string]interface{}{single}, nil
}
