// Package masking redacts partner contact details before they are written to
// the audit log.
package masking

import "strings"

const redacted = "****"

// Email keeps the first character of the local part and the domain, so
// "jane@example.com" becomes "j****@example.com". Anything that is not an
// address is fully redacted.
func Email(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	at := strings.LastIndexByte(value, '@')
	if at <= 0 || at == len(value)-1 {
		return redacted
	}
	return value[:1] + redacted + value[at:]
}

// Fields returns a copy of input with every value under one of keys masked.
// Nested maps are walked, so {"previous": {"email": ...}} is covered too.
func Fields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return input
	}
	sensitive := make(map[string]bool, len(keys))
	for _, key := range keys {
		sensitive[strings.TrimSpace(key)] = true
	}
	return walk(input, sensitive)
}

func walk(input map[string]any, sensitive map[string]bool) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		switch {
		case sensitive[key]:
			out[key] = mask(value)
		default:
			if nested, ok := value.(map[string]any); ok {
				out[key] = walk(nested, sensitive)
				continue
			}
			out[key] = value
		}
	}
	return out
}

func mask(value any) any {
	switch v := value.(type) {
	case string:
		return Email(v)
	case *string:
		if v == nil {
			return nil
		}
		return Email(*v)
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = Email(s)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = mask(item)
		}
		return out
	case nil:
		return nil
	default:
		return redacted
	}
}
