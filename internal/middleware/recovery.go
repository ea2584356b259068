package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/pkg/utils"
)

// Recovery converts a handler panic into a 500 so one bad booking request
// can't take the worker down.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic on %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				utils.Error(w, apperrors.InternalError("an unexpected error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
