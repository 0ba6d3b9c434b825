package log

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "access_token",
	"secret", "auth", "authorization",
	"credential", "dsn",
}

// Matches URLs inside free text such as wrapped transport errors.
var urlPattern = regexp.MustCompile(`https?://[^\s"']+`)

// SanitizeField checks if the key contains sensitive keywords and sanitizes the value.
// Values of url-like keys have their query credentials masked.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	if strings.Contains(lowerKey, "url") || strings.Contains(value, "://") {
		return SanitizeURL(value)
	}

	return value
}

// SanitizeURL masks credentials in every URL found in s: userinfo passwords
// and query parameters whose name looks like a key or token. Market data
// providers commonly take the API key as a query parameter.
func SanitizeURL(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, sanitizeOneURL)
}

func sanitizeOneURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "****")
			changed = true
		}
	}

	q := u.Query()
	for name, values := range q {
		lower := strings.ToLower(name)
		sensitive := false
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lower, keyword) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			continue
		}
		for i, v := range values {
			values[i] = sanitizeToken(v)
		}
		q[name] = values
		changed = true
	}

	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// sanitizeToken masks token/password values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
