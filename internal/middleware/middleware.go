package middleware

import (
	"net/http"

	"github.com/parleychat/parley-go/pkg/utils"
)

// KeyHeader carries the embedding organization's public key.
const KeyHeader = "X-Parley-Key"

// CORS allows the widget to call the devserver from any origin.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+KeyHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireKey rejects requests whose public key is not in the accepted set.
// An empty accepted set admits any non-empty key.
func RequireKey(accepted []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(accepted))
	for _, k := range accepted {
		allowed[k] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(KeyHeader)
			if key == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing public key")
				return
			}
			if len(allowed) > 0 && !allowed[key] {
				utils.RespondError(w, http.StatusUnauthorized, "public key rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
