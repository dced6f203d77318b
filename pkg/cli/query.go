package cli

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// Query runs a jq expression over v. v is first converted to its JSON
// form, so field names follow the json tags. A single result is returned
// as is; several results are returned as a slice.
func Query(expr string, v any) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	var results []any
	iter := query.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := out.(error); ok {
			return nil, fmt.Errorf("jq %q: %w", expr, err)
		}
		results = append(results, out)
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
