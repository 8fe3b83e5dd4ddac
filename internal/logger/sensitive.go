package logger

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// SensitiveDataPatterns match credentials embedded in free text
var SensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	// JWT: keep header and claims segments, drop the signature
	regexp.MustCompile(`(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,})\.[a-zA-Z0-9_-]{5,}`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|key|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s&]{5,})`),
	// go-sql-driver DSN user:pass@tcp(host)/db
	regexp.MustCompile(`([A-Za-z0-9_]+):([^@\s]+)@tcp\(`),
}

var sensitiveQueryParams = []string{"token", "access_token", "password", "secret", "key"}

// RedactSensitiveData replaces credentials in free text with [REDACTED]
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for i, pattern := range SensitiveDataPatterns {
		if i == len(SensitiveDataPatterns)-1 {
			input = pattern.ReplaceAllString(input, "$1:"+redacted+"@tcp(")
			continue
		}
		input = pattern.ReplaceAllString(input, "$1"+redacted)
	}
	return input
}

// RedactURL blanks credential query parameters. The recognition websocket
// carries the tenant JWT in ?token=, which must never reach the access log.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return RedactSensitiveData(raw)
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), redacted)
		}
	}
	if u.RawQuery == "" {
		return u.String()
	}

	q := u.Query()
	changed := false
	for key := range q {
		lk := strings.ToLower(key)
		for _, s := range sensitiveQueryParams {
			if lk == s {
				q.Set(key, redacted)
				changed = true
				break
			}
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
