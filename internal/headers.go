package internal

import "net/http"

// NoStoreCache sets the Cache-Control header to no-store for the response.
// Challenges are single use, so nothing this server returns may be cached.
func NoStoreCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
