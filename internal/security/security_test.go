package security

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dumpgw/internal/exchange"

	"github.com/golang-jwt/jwt/v5"
)

func makeToken(t *testing.T, secret []byte, issuer, subject, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := CustomClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("signed token: %v", err)
	}
	return s
}

// serve runs h behind an exchange and returns the recorder plus the security
// context as seen by the innermost handler.
func serve(h func(http.Handler) http.Handler, req *http.Request) (*httptest.ResponseRecorder, *exchange.SecurityContext, *http.Request) {
	var sc *exchange.SecurityContext
	var seen *http.Request
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex, _ := exchange.FromRequest(r)
		sc = ex.SecurityContext()
		seen = r
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	exchange.Handler(h(inner)).ServeHTTP(rr, req)
	return rr, sc, seen
}

func TestHandler_JWTValid(t *testing.T) {
	secret := []byte("test-secret")
	h := Handler(Options{Mechanisms: []Mechanism{NewHMACJWT(secret, "test-issuer")}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken(t, secret, "test-issuer", "user123", "admin", time.Minute))
	rr, sc, seen := serve(h, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rr.Code, rr.Body.String())
	}
	if !sc.IsAuthenticated() || sc.MechanismName() != "JWT" || sc.Principal() != "user123" {
		t.Fatalf("unexpected security context %+v", sc)
	}
	if got := seen.Header.Get("X-User-ID"); got != "user123" {
		t.Fatalf("expected X-User-ID=user123 got=%s", got)
	}
	if got := seen.Header.Get("X-User-Role"); got != "admin" {
		t.Fatalf("expected X-User-Role=admin got=%s", got)
	}
}

func TestHandler_JWTInvalid(t *testing.T) {
	secret := []byte("test-secret")
	h := Handler(Options{Mechanisms: []Mechanism{NewHMACJWT(secret, "test-issuer")}})

	cases := map[string]string{
		"bad token":     "Bearer bad.token.here",
		"expired token": "Bearer " + makeToken(t, secret, "test-issuer", "user123", "admin", -time.Minute),
		"wrong issuer":  "Bearer " + makeToken(t, secret, "wrong-issuer", "user123", "admin", time.Minute),
		"wrong secret":  "Bearer " + makeToken(t, []byte("other"), "test-issuer", "user123", "admin", time.Minute),
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rr, _, _ := serve(h, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", name, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("%s: expected Bearer challenge", name)
		}
	}
}

func TestHandler_Anonymous(t *testing.T) {
	h := Handler(Options{Mechanisms: []Mechanism{NewBasic("", map[string]string{"alice": "pw"})}})
	rr, sc, _ := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if sc == nil || sc.IsAuthenticated() {
		t.Fatalf("expected unauthenticated context, got %+v", sc)
	}
}

func TestHandler_Required(t *testing.T) {
	h := Handler(Options{Mechanisms: []Mechanism{NewBasic("gw", nil)}, Required: true})
	rr, _, _ := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got != `Basic realm="gw"` {
		t.Fatalf("unexpected challenge %q", got)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["error"] != "unauthorized" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBasic(t *testing.T) {
	h := Handler(Options{Mechanisms: []Mechanism{NewBasic("", ParseUsers("alice:secret, bob:pw,broken"))}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("alice", "secret")
	rr, sc, _ := serve(h, req)
	if rr.Code != http.StatusOK || sc.MechanismName() != "BASIC" || sc.Principal() != "alice" {
		t.Fatalf("expected alice via BASIC, got %d %+v", rr.Code, sc)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("bob", "wrong")
	rr, _, _ = serve(h, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password got %d", rr.Code)
	}
}

func TestParseUsers(t *testing.T) {
	users := ParseUsers("alice:secret, bob:p:w,broken,:x")
	if len(users) != 2 || users["alice"] != "secret" || users["bob"] != "p:w" {
		t.Fatalf("unexpected users %v", users)
	}
}

func TestAPIKey(t *testing.T) {
	store := NewAPIKeyStore()
	store.AddKey(&APIKey{Key: "test-key-123", Name: "Test Key", Role: "user", Enabled: true, Paths: []string{"/api/*"}})
	store.AddKey(&APIKey{Key: "disabled-key", Name: "Disabled", Role: "user"})
	if store.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", store.Len())
	}
	h := Handler(Options{Mechanisms: []Mechanism{NewAPIKeyMechanism(store)}})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("X-API-Key", "test-key-123")
	rr, sc, seen := serve(h, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if sc.MechanismName() != "API_KEY" || sc.Principal() != "Test Key" {
		t.Fatalf("unexpected security context %+v", sc)
	}
	if seen.Header.Get("X-User-Role") != "user" {
		t.Fatalf("expected role header, got %q", seen.Header.Get("X-User-Role"))
	}

	for _, tc := range []struct{ key, path string }{
		{"invalid-key", "/api/users"},
		{"disabled-key", "/api/users"},
		{"test-key-123", "/admin/handlers"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-API-Key", tc.key)
		rr, _, _ := serve(h, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("key %s path %s: expected 401 got %d", tc.key, tc.path, rr.Code)
		}
	}

	store.RemoveKey("test-key-123")
	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("X-API-Key", "test-key-123")
	if rr, _, _ := serve(h, req); rr.Code != http.StatusUnauthorized || store.Len() != 1 {
		t.Fatalf("removed key must be rejected, got %d with %d keys", rr.Code, store.Len())
	}
}

func TestMatchPath(t *testing.T) {
	if !matchPath("/api/*", "/api/users") || matchPath("/api/*", "/apiary") || !matchPath("/metrics", "/metrics") {
		t.Fatal("unexpected matchPath result")
	}
}

func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	}))
}

func TestJWKS_RoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	calls := 0
	srv := jwksServer(t, "k1", &key.PublicKey, &calls)
	defer srv.Close()

	mech := NewJWKSJWT(NewJWKSClient(srv.URL, time.Minute), "test-issuer", "test-audience")
	h := Handler(Options{Mechanisms: []Mechanism{mech}})

	claims := CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		Subject:   "user123",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr, sc, _ := serve(h, req)
	if rr.Code != http.StatusOK || sc.Principal() != "user123" {
		t.Fatalf("expected user123, got %d %+v body=%s", rr.Code, sc, rr.Body.String())
	}

	// second request is served from cache
	serve(h, req)
	if calls != 1 {
		t.Fatalf("expected 1 JWKS fetch, got %d", calls)
	}
}

func TestJWKSClient_CacheExpiry(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	calls := 0
	srv := jwksServer(t, "key1", &key.PublicKey, &calls)
	defer srv.Close()

	client := NewJWKSClient(srv.URL, 100*time.Millisecond)
	k1, err := client.PublicKey("key1")
	if err != nil {
		t.Fatalf("expected valid key on first call, got: %v", err)
	}
	if k1.E != 65537 || k1.N.Cmp(key.N) != 0 {
		t.Fatal("decoded key does not match")
	}
	client.PublicKey("key1")
	if calls != 1 {
		t.Fatalf("expected 1 fetch within TTL, got %d", calls)
	}

	time.Sleep(150 * time.Millisecond)
	client.PublicKey("key1")
	if calls != 2 {
		t.Fatalf("expected 2 fetches after TTL expiry, got %d", calls)
	}

	if _, err := client.PublicKey("missing"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}
