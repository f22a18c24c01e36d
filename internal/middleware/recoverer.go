package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Recoverer turns a handler panic into a 500 response
func Recoverer(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				log.WithFields(logrus.Fields{
					"panic":      rv,
					"path":       r.URL.Path,
					"request_id": RequestIDFromContext(r.Context()),
					"stack":      string(debug.Stack()),
				}).Error("handler panic")

				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Internal server error",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
