package cgminer

import (
	"encoding/json"
	"regexp"
	"strings"
)

// trailingComma matches a dangling comma immediately before a closing
// brace or bracket, the most common defect in firmware-built JSON.
var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// ExtractJSON recovers the first balanced JSON object from a raw device
// response. Responses may carry leading garbage, NUL padding, control
// bytes and invalid UTF-8; after isolating the candidate object it is
// parsed strictly, with one repair pass removing trailing commas. Returns
// nil when no object can be recovered. This is the only ingress point for
// untrusted firmware output.
func ExtractJSON(raw []byte) map[string]any {
	text := sanitize(raw)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseObject(text[start : i+1])
			}
		}
	}

	// More opening braces than closing: truncated response.
	return nil
}

// sanitize drops invalid UTF-8 sequences, NUL padding and control bytes
// other than newline, carriage return and tab.
func sanitize(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), "")
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func parseObject(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj
	}

	repaired := trailingComma.ReplaceAllString(s, "$1")
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return obj
	}
	return nil
}

// Section returns the first element of the list stored under key, the
// shape CGMiner uses for SUMMARY and POOLS payloads.
func Section(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	list, ok := obj[key].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	first, _ := list[0].(map[string]any)
	return first
}

// Number reads the first present numeric field among keys. Missing or
// non-numeric fields count as absent.
func Number(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return n, true
			case int:
				return float64(n), true
			}
		}
	}
	return 0, false
}

// String reads a string field, empty when missing or mistyped.
func String(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
