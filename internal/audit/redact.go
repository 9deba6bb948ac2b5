package audit

import (
	"regexp"
	"strings"
)

// piiPatterns matches literal PII spans so they can be blanked out of audit
// detail values before an entry is hashed and persisted.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
	regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`),
}

// blockedFieldNames marks whole detail fields as PII regardless of content,
// matched as a case-insensitive substring of the field name.
var blockedFieldNames = []string{
	"email", "ssn", "social_security", "phone", "address", "date_of_birth",
	"dob", "full_name", "credit_card", "card_number",
}

const redactionPlaceholder = "***REDACTED***"

// PIIRedactor blanks personally identifiable information out of audit
// detail maps before they are serialized into the hash chain.
type PIIRedactor struct {
	enabled bool
}

// NewPIIRedactor builds an enabled redactor. Disabling it is only ever
// useful for tests that assert on pre-redaction content.
func NewPIIRedactor() *PIIRedactor {
	return &PIIRedactor{enabled: true}
}

func (r *PIIRedactor) isBlockedField(name string) bool {
	lower := strings.ToLower(name)
	for _, blocked := range blockedFieldNames {
		if strings.Contains(lower, blocked) {
			return true
		}
	}
	return false
}

// RedactString blanks any PII span found in s.
func (r *PIIRedactor) RedactString(s string) string {
	if !r.enabled {
		return s
	}
	result := s
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, redactionPlaceholder)
	}
	return result
}

// RedactMap returns a copy of m with PII-bearing fields and PII-shaped
// string values replaced by a placeholder. Nested maps and slices are
// walked recursively.
func (r *PIIRedactor) RedactMap(m map[string]interface{}) map[string]interface{} {
	if !r.enabled || m == nil {
		return m
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch {
		case r.isBlockedField(k):
			out[k] = redactionPlaceholder
		case v == nil:
			out[k] = nil
		default:
			out[k] = r.redactValue(v)
		}
	}
	return out
}

func (r *PIIRedactor) redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return r.RedactString(val)
	case map[string]interface{}:
		return r.RedactMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}
