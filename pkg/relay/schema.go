package relay

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema returns the JSON Schema of client messages, derived from Inbound.
func Schema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[Inbound](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("relay: inbound schema: %w", err)
	}
	s.Title = "voxlock client message"
	return s, nil
}
