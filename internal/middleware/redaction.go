package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

const redactedValue = "[REDACTED]"

var redactHeaderKeys = []string{
	"Authorization",
	"Cookie",
	"Set-Cookie",
	"X-API-Key",
	"Proxy-Authorization",
}

func isHeaderInList(key string, keys []string) bool {
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(key), k) {
			return true
		}
	}
	return false
}

func redactHeaderValue(key, value string) string {
	if strings.EqualFold(key, "Authorization") || strings.EqualFold(key, "Proxy-Authorization") {
		parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
		if len(parts) == 2 && parts[0] != "" {
			return parts[0] + " " + redactedValue
		}
	}
	return redactedValue
}

// RedactHeaders returns a copy of h with credential values replaced by a
// constant, for logging. Forwarded requests keep the original headers.
func RedactHeaders(h http.Header) http.Header {
	if h == nil {
		return nil
	}

	out := make(http.Header, len(h))
	for key, values := range h {
		copied := make([]string, len(values))
		for i, v := range values {
			if isHeaderInList(key, redactHeaderKeys) {
				v = redactHeaderValue(key, v)
			}
			copied[i] = v
		}
		out[key] = copied
	}
	return out
}

// RedactURL renders raw for logs with the userinfo password and every query
// value masked. RPC providers commonly embed API keys there.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redactedValue
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "redacted")
		}
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "redacted")
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
