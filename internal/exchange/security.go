package exchange

// SecurityContext tracks the authentication state of an exchange. A context
// starts unauthenticated and may become authenticated at any point while the
// exchange is being processed.
type SecurityContext struct {
	authenticated bool
	mechanism     string
	principal     string
}

// NewSecurityContext returns an unauthenticated context.
func NewSecurityContext() *SecurityContext {
	return &SecurityContext{}
}

// Authenticate marks the context as authenticated by mechanism for principal.
func (sc *SecurityContext) Authenticate(mechanism, principal string) {
	sc.authenticated = true
	sc.mechanism = mechanism
	sc.principal = principal
}

// IsAuthenticated reports whether a mechanism has authenticated the exchange.
func (sc *SecurityContext) IsAuthenticated() bool { return sc.authenticated }

// MechanismName returns the name of the authenticating mechanism.
func (sc *SecurityContext) MechanismName() string { return sc.mechanism }

// Principal returns the authenticated principal name.
func (sc *SecurityContext) Principal() string { return sc.principal }
