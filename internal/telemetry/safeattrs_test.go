package telemetry

import (
	"testing"
)

func TestSafeAttributesFiltersSecrets(t *testing.T) {
	kvs := map[string]interface{}{
		"draft_text":    "should drop",
		"context_text":  "drop",
		"suggestion":    "drop",
		"api_key":       "sk-123",
		"token":         "abc",
		"authorization": "secret",
		"usage":         `{"used":1}`,
		"long_string":   string(make([]byte, 600)),
		"persona":       "polite",
		"strategy":      "concurrent",
		"inference":     true,
	}

	attrs := SafeAttributes(kvs)
	kept := map[string]bool{}
	for _, a := range attrs {
		kept[string(a.Key)] = true
	}
	for _, bad := range []string{"draft_text", "context_text", "suggestion", "api_key", "token", "authorization", "usage", "long_string"} {
		if kept[bad] {
			t.Fatalf("unexpected unsafe attribute %s", bad)
		}
	}
	for _, want := range []string{"persona", "strategy", "inference"} {
		if !kept[want] {
			t.Fatalf("expected attribute %s to be kept", want)
		}
	}
}
