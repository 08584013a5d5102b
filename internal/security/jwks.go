package security

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWKSClient fetches and caches RSA signing keys from a JWKS endpoint.
type JWKSClient struct {
	endpoint  string
	client    *http.Client
	mu        sync.RWMutex
	cache     map[string]*rsa.PublicKey
	ttl       time.Duration
	lastFetch time.Time
}

type jwks struct {
	Keys []struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// NewJWKSClient creates a client that refreshes its key set after ttl.
func NewJWKSClient(endpoint string, ttl time.Duration) *JWKSClient {
	return &JWKSClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		cache:    make(map[string]*rsa.PublicKey),
		ttl:      ttl,
	}
}

// Keyfunc resolves the verification key named by the token's kid header.
func (c *JWKSClient) Keyfunc(t *jwt.Token) (interface{}, error) {
	kid, ok := t.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing kid in token header")
	}
	return c.PublicKey(kid)
}

// PublicKey returns the key for kid from cache, refreshing when stale.
func (c *JWKSClient) PublicKey(kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.cache[kid]
	fresh := time.Since(c.lastFetch) < c.ttl
	c.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(); err != nil {
		return nil, fmt.Errorf("refresh JWKS: %w", err)
	}

	c.mu.RLock()
	key, ok = c.cache[kid]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

func (c *JWKSClient) refresh() error {
	resp, err := c.client.Get(c.endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("JWKS endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("parse JWKS: %w", err)
	}

	cache := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := decodeRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		cache[k.Kid] = pub
	}

	c.mu.Lock()
	c.cache = cache
	c.lastFetch = time.Now()
	c.mu.Unlock()
	return nil
}

func decodeRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	parser := jwt.NewParser()
	nBytes, err := parser.DecodeSegment(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := parser.DecodeSegment(e)
	if err != nil {
		return nil, err
	}
	eVal := 0
	for _, b := range eBytes {
		eVal = eVal<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: eVal}, nil
}
