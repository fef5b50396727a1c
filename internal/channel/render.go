package channel

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Render substitutes {{name}} placeholders in content with values from data.
// Keys starting with an underscore are never substituted. Unknown placeholders
// are left untouched.
func Render(content string, data map[string]any) string {
	if content == "" || len(data) == 0 {
		return content
	}
	pairs := make([]string, 0, len(data)*4)
	for k, v := range data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		s := fmt.Sprint(v)
		pairs = append(pairs, "{{"+k+"}}", s, "{{ "+k+" }}", s)
	}
	return strings.NewReplacer(pairs...).Replace(content)
}

// plainBody builds a readable body when the template has no content for the channel.
func plainBody(data map[string]any) string {
	lines := make([]string, 0, len(data))
	for _, k := range slices.Sorted(maps.Keys(data)) {
		if strings.HasPrefix(k, "_") || k == "subject" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %v", k, data[k]))
	}
	return strings.Join(lines, "\n")
}
