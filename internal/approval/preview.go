package approval

import (
	"fmt"
	"strings"
)

// BuildPreview renders an approval input preview. When previewKeys is
// non-empty, the preview is the values at those top-level keys joined by
// " @ " (the compact, human-facing presentation a provider descriptor can
// opt into); otherwise the full sanitized JSON object is used.
func BuildPreview(args map[string]any, previewKeys []string, maxChars int) string {
	if len(previewKeys) == 0 {
		return Sanitize(args, maxChars)
	}

	parts := make([]string, 0, len(previewKeys))
	seen := make(map[uintptr]bool)
	for _, k := range previewKeys {
		v, ok := args[k]
		if !ok {
			continue
		}
		clean := sanitizeValue(v, seen)
		parts = append(parts, fmt.Sprintf("%v", clean))
	}
	preview := strings.Join(parts, " @ ")
	if maxChars > 0 && len(preview) > maxChars {
		truncated := len(preview) - maxChars
		preview = preview[:maxChars] + fmt.Sprintf("... (truncated %d chars)", truncated)
	}
	return preview
}
