package exchange

import (
	"context"
	"net/http"
)

// Handler creates an Exchange for every request, stores it in the request
// context and completes it once next returns. Completion also runs when next
// panics; the panic is re-raised afterwards so outer recovery still sees it.
func Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromRequest(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		ex := newExchange(w, r)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, ex))
		ex.request = r

		defer func() {
			if p := recover(); p != nil {
				ex.aborted = true
				ex.complete()
				panic(p)
			}
			if r.Context().Err() != nil {
				ex.aborted = true
			}
			ex.complete()
		}()
		next.ServeHTTP(ex.writer, r)
	})
}

// Wrap adapts an exchange-aware handler function to http.Handler. The
// exchange is created on demand when no outer Handler has done so.
func Wrap(fn func(ex *Exchange, w http.ResponseWriter, r *http.Request)) http.Handler {
	return Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex, _ := FromRequest(r)
		fn(ex, w, r)
	}))
}
