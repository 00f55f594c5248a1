package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder is the string used to replace sensitive data
const RedactedPlaceholder = "[REDACTED]"

// sensitivePatterns are compiled once at package initialization.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}`),  // bcrypt hashes
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._~+/=-]{8,})`), // Authorization headers
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),      // token= or token:
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),   // password= or password:
	regexp.MustCompile(`(?i)([?&]access_token=)[^&\s]+`),        // query string tokens
}

// sensitiveFieldNames are substrings of field or env var names whose values
// are always redacted.
var sensitiveFieldNames = []string{
	"TOKEN",
	"PASSWORD",
	"SECRET",
	"AUTHORIZATION",
}

// RedactSensitiveData scans a string value and redacts any detected
// sensitive data.
// This is a pure function with no side effects.
//
// Example:
//
//	RedactSensitiveData("Authorization: Bearer abc.def.ghi")
//	// "Authorization: [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// IsSensitiveField returns true if the field name indicates sensitive data.
//
// Example:
//
//	IsSensitiveField("PREVIEW_ACCESS_TOKEN_HASH") // true
//	IsSensitiveField("session_id")                // false
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}
