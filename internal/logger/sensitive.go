package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns contains regex patterns for data redacted from logs
var SensitiveDataPatterns = []*regexp.Regexp{
	// MailChimp API keys: 32 hex characters, a dash and the datacenter
	regexp.MustCompile(`()\b[0-9a-fA-F]{32}-[a-z]{2,4}[0-9]{1,3}\b`),

	// Basic and bearer authorization headers
	regexp.MustCompile(`(?i)((?:basic|bearer)\s+)([A-Za-z0-9\-._~+/]+=*)`),

	// key=value style secrets
	regexp.MustCompile(`(?i)((?:api|access|auth|token|secret|passw(?:or)?d)[0-9a-z\-_.]*[\s:=]+)([^;,\s]{5,})`),
}

// SensitiveKeywords mark field keys whose values are always redacted
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key", "authorization", "dsn",
}

const redacted = "[REDACTED]"

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}"+redacted)
	}
	return input
}

// IsSensitiveKey reports whether a field key names a secret
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}

// Secret returns a string field whose value is redacted when non-empty.
// Use it when logging configuration values.
func Secret(key, value string) Field {
	if value != "" {
		value = redacted
	}
	return String(key, value)
}
