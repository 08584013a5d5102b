// Package security establishes the exchange security context from the
// credentials a request carries.
package security

import (
	"encoding/json"
	"errors"
	"net/http"

	"dumpgw/internal/exchange"

	"github.com/rs/zerolog/log"
)

// Mechanism authenticates requests carrying one kind of credential.
type Mechanism interface {
	// Name is recorded as the authentication type, e.g. "BASIC".
	Name() string
	// Authenticate returns the principal for a valid credential,
	// ErrNoCredentials when the request carries none for this mechanism,
	// or another error when the credential is invalid.
	Authenticate(r *http.Request) (Identity, error)
	// Challenge adds the mechanism's challenge to a 401 response.
	Challenge(w http.ResponseWriter)
}

// Identity is an authenticated caller.
type Identity struct {
	Principal string
	Role      string
}

// ErrNoCredentials means the mechanism was not attempted.
var ErrNoCredentials = errors.New("no credentials")

// Options configures Handler.
type Options struct {
	Mechanisms []Mechanism
	// Required rejects requests no mechanism authenticated.
	Required bool
}

// Handler installs a security context on the exchange and tries each
// mechanism in order until one authenticates the request. A request with an
// invalid credential is rejected; a request with none is rejected only when
// authentication is required. On success X-User-ID and X-User-Role are
// injected for downstream services.
func Handler(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := exchange.NewSecurityContext()
			if ex, ok := exchange.FromRequest(r); ok {
				ex.SetSecurityContext(sc)
			}

			var failure error
			for _, m := range opts.Mechanisms {
				id, err := m.Authenticate(r)
				if errors.Is(err, ErrNoCredentials) {
					continue
				}
				if err != nil {
					log.Debug().Err(err).Str("mechanism", m.Name()).Str("path", r.URL.Path).Msg("authentication failed")
					failure = err
					continue
				}
				sc.Authenticate(m.Name(), id.Principal)
				r = withIdentity(r, id)
				break
			}

			if !sc.IsAuthenticated() && (failure != nil || opts.Required) {
				for _, m := range opts.Mechanisms {
					m.Challenge(w)
				}
				msg := "authentication required"
				if failure != nil {
					msg = failure.Error()
				}
				writeUnauthorized(w, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withIdentity(r *http.Request, id Identity) *http.Request {
	r2 := r.Clone(r.Context())
	if id.Principal != "" {
		r2.Header.Set("X-User-ID", id.Principal)
	}
	if id.Role != "" {
		r2.Header.Set("X-User-Role", id.Role)
	}
	return r2
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
