package printer

import (
	"sort"
	"strings"
)

// RenderTemplate substitutes {{attribute}} tokens in the template with the
// record's attribute values. Tokens with no matching attribute are left blank.
func RenderTemplate(tmpl string, attributes map[string]string) string {
	result := tmpl
	for id, value := range attributes {
		result = strings.ReplaceAll(result, "{{"+id+"}}", value)
	}
	return stripTokens(result)
}

func stripTokens(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			break
		}
		b.WriteString(s[:start])
		s = s[start+end+2:]
	}
	b.WriteString(s)
	return b.String()
}

// DefaultTemplate lists every attribute of the record, one per line, when no
// template file is configured for previews.
func DefaultTemplate(attributes map[string]string) string {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Request for payment\n\n")
	for _, k := range keys {
		b.WriteString(k + ": {{" + k + "}}\n")
	}
	return b.String()
}
