package security

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Basic authenticates HTTP Basic credentials against a static user table.
type Basic struct {
	realm string
	users map[string]string
}

// NewBasic returns a Basic mechanism for the given user -> password table.
func NewBasic(realm string, users map[string]string) *Basic {
	if realm == "" {
		realm = "dumpgw"
	}
	return &Basic{realm: realm, users: users}
}

// ParseUsers parses "user:password,user2:password2".
func ParseUsers(s string) map[string]string {
	users := make(map[string]string)
	for _, entry := range strings.Split(s, ",") {
		user, pass, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || user == "" {
			continue
		}
		users[user] = pass
	}
	return users
}

func (b *Basic) Name() string { return "BASIC" }

func (b *Basic) Authenticate(r *http.Request) (Identity, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return Identity{}, ErrNoCredentials
	}
	want, exists := b.users[user]
	if !exists || subtle.ConstantTimeCompare([]byte(want), []byte(pass)) != 1 {
		return Identity{}, errors.New("invalid username or password")
	}
	return Identity{Principal: user}, nil
}

func (b *Basic) Challenge(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="`+b.realm+`"`)
}
