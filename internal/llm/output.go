package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeStrict validates model output against a JSON schema and decodes it into v.
// Output that is not JSON or violates the schema yields a MalformedModelOutputError.
func DecodeStrict(output string, schema []byte, v any) error {
	body := StripCodeFence(output)
	if body == "" {
		return &MalformedModelOutputError{Reason: "empty output", Output: output}
	}
	if !json.Valid([]byte(body)) {
		return &MalformedModelOutputError{Reason: "output is not valid JSON", Output: output}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewStringLoader(body),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return &MalformedModelOutputError{
			Reason: "schema violation: " + strings.Join(msgs, "; "),
			Output: output,
		}
	}

	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &MalformedModelOutputError{Reason: err.Error(), Output: output}
	}
	return nil
}
