package middleware

import (
	"errors"
	"net/http"
)

// MaxBodySize returns middleware that limits request body size
// maxBytes is the maximum allowed body size in bytes
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Reads past the limit fail with *http.MaxBytesError
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// HandleMaxBytesError writes a 413 response when err came from MaxBytesReader.
// Returns false, writing nothing, for any other error.
func HandleMaxBytesError(w http.ResponseWriter, err error) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}

	writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
		"error":        "Request body too large",
		"maxSizeBytes": mbe.Limit,
	})
	return true
}
