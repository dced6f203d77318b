package commands

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	setupTestEnv(t)

	stdout, stderr, code := runCmd(t, "schema")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(stdout), &schema); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if schema["title"] != "voxlock client message" {
		t.Errorf("title = %v", schema["title"])
	}
	for _, want := range []string{`"frame"`, `"faces"`, `"ts_ms"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("schema missing %s", want)
		}
	}
}
