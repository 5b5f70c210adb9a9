package probe

import (
	"net/http"
	"strings"
)

var commonHeaders = map[string]bool{
	"retry-after": true,
	"date":        true,
	"request-id":  true,
}

// FilterHeaders keeps the headers starting with prefix plus retry-after,
// date and request-id. Keys are lower-cased; repeated values are joined.
func FilterHeaders(h http.Header, prefix string) map[string]string {
	out := make(map[string]string)
	for k, vs := range h {
		key := strings.ToLower(k)
		if !strings.HasPrefix(key, prefix) && !commonHeaders[key] {
			continue
		}
		out[key] = strings.Join(vs, ", ")
	}
	return out
}
