package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware enforcing a static API key. Clients may present
// it as a Bearer token, in X-API-Key, or as the api_key query parameter
// since browser WebSocket clients cannot set headers. Paths listed in
// exempt skip the check, and an empty key disables it entirely.
func Auth(apiKey string, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			presented := presentedKey(r)
			if presented == "" {
				deny(w, "missing authentication token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				deny(w, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey pulls the credential out of the request.
func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
