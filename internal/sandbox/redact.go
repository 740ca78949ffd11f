package sandbox

import "regexp"

// secretPatterns matches common credential shapes so tool args/output
// never reach the audit log or model context verbatim.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{10,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*["']?[^\s"']{6,}`),
	regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`), // long base64-ish blobs (AWS-style keys, JWTs)
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces any substring matching a known secret shape with a
// placeholder. Used before writing to the tool-audit log and before
// returning tool output to the model.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
