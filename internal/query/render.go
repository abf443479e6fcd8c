package query

import (
	"strings"
)

// RenderText substitutes {placeholder} fields in a strategy-authored title or
// content template. Unknown placeholders are left in place so a typo in a
// strategy file is visible in the produced alert rather than silently erased.
func RenderText(tmpl string, values map[string]string) string {
	if tmpl == "" || len(values) == 0 {
		return tmpl
	}
	result := tmpl
	for key, value := range values {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
