package server

import (
	"regexp"
)

var credentialPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{regex: regexp.MustCompile(`(?i)("?(?:api_?key|apikey|api_key_comfy_org)"?\s*[:=]\s*)"[^"]*"`), replacement: `$1"[redacted]"`},
	{regex: regexp.MustCompile(`(?i)\b(api_?key|apikey|api_key_comfy_org)=\S+`), replacement: "$1=[redacted]"},
	{regex: regexp.MustCompile(`(?i)("?cookies?"?\s*[:=]\s*)"[^"]*"`), replacement: `$1"[redacted]"`},
	{regex: regexp.MustCompile(`(?i)\bcookies?=\S+`), replacement: "cookies=[redacted]"},
	{regex: regexp.MustCompile(`(?i)\b(password|secret|token|refresh_token|access_key)=\S+`), replacement: "$1=[redacted]"},
	{regex: regexp.MustCompile(`(?i)authorization:\s*bearer\s+[a-z0-9\-._~+/=]+`), replacement: "authorization: Bearer [redacted]"},
	{regex: regexp.MustCompile(`(?i)https?://[^:@\s/]+:[^@\s/]+@`), replacement: "http://[redacted]:[redacted]@"},
	{regex: regexp.MustCompile(`(?i)(password|secret|token)\s*"[^"]+"`), replacement: "$1\"[redacted]\""},
}

// SanitizeLogLines redacts API keys, cookies and other credentials before logs leave the process.
func SanitizeLogLines(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		for _, pattern := range credentialPatterns {
			l = pattern.regex.ReplaceAllString(l, pattern.replacement)
		}
		out[i] = l
	}
	return out
}
