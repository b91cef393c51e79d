// Package approval implements the Approval Coordinator (§4.E): the
// per-run pending-approval protocol, input-preview sanitization, and
// decision resolution.
package approval

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
)

// secretKeyPattern matches key names whose values must be redacted from
// any approval preview (invariant 5).
var secretKeyPattern = regexp.MustCompile(`(?i)(authorization|api[-_]?key|token|secret|password|cookie|credential)`)

const redactedValue = "[redacted]"

// Sanitize recursively walks input, replacing the value of any key whose
// name matches secretKeyPattern with "[redacted]" and replacing repeated
// references (cycles) with "[circular]". maxChars truncates the final
// JSON preview, appending a "... (truncated N chars)" marker.
func Sanitize(input any, maxChars int) string {
	seen := make(map[uintptr]bool)
	clean := sanitizeValue(input, seen)

	raw, err := json.Marshal(clean)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", clean))
	}
	s := string(raw)
	if maxChars > 0 && len(s) > maxChars {
		truncated := len(s) - maxChars
		s = s[:maxChars] + fmt.Sprintf("... (truncated %d chars)", truncated)
	}
	return s
}

func sanitizeValue(v any, seen map[uintptr]bool) any {
	switch val := v.(type) {
	case map[string]any:
		ptr := mapPtr(val)
		if ptr != 0 {
			if seen[ptr] {
				return "[circular]"
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			if secretKeyPattern.MatchString(k) {
				out[k] = redactedValue
				continue
			}
			out[k] = sanitizeValue(item, seen)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, seen)
		}
		return out
	default:
		return val
	}
}

// mapPtr returns the underlying runtime pointer of a map value, used only
// to detect reference cycles. Go's map values produced by decoding JSON
// (via map[string]any) never legitimately cycle, but user-constructed
// inputs passed through the runtime adapter might.
func mapPtr(m map[string]any) uintptr {
	if m == nil {
		return 0
	}
	return reflect.ValueOf(m).Pointer()
}
