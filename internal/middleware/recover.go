package middleware

import (
	"fmt"
	"net/http"

	"github.com/checkpoint-edu/checkpoint/internal/handler"
)

// Recover turns a panic into a 500 envelope. http.ErrAbortHandler is re-raised.
func Recover(respond *handler.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				respond.Error(w, r, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
