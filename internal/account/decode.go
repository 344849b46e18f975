package account

import (
	"encoding/json"
	"fmt"
)

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode account record: %w", err)
	}
	return nil
}
