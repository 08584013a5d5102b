package security

import (
	"net/http"
	"strings"
	"sync"
)

// APIKeyStore manages API keys and their permissions
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey
}

// APIKey represents an API key with permissions
type APIKey struct {
	Key     string   `yaml:"key"`
	Name    string   `yaml:"name"`
	Role    string   `yaml:"role"`
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"` // Allowed paths (if empty, all allowed)
}

// NewAPIKeyStore creates a new API key store
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{
		keys: make(map[string]*APIKey),
	}
}

// AddKey adds a new API key
func (s *APIKeyStore) AddKey(key *APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.Key] = key
}

// RemoveKey removes an API key
func (s *APIKeyStore) RemoveKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// Len returns the number of stored keys.
func (s *APIKeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// ValidateKey checks if an API key is valid and allowed for the path
func (s *APIKeyStore) ValidateKey(key, path string) (*APIKey, error) {
	s.mu.RLock()
	apiKey, exists := s.keys[key]
	s.mu.RUnlock()
	if !exists {
		return nil, ErrInvalidAPIKey
	}
	if !apiKey.Enabled {
		return nil, ErrAPIKeyDisabled
	}
	if len(apiKey.Paths) > 0 {
		allowed := false
		for _, p := range apiKey.Paths {
			if matchPath(p, path) {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, ErrAPIKeyPathDenied
		}
	}
	return apiKey, nil
}

// APIKeyError is returned for rejected keys.
type APIKeyError struct {
	Code    string
	Message string
}

func (e APIKeyError) Error() string {
	return e.Message
}

var (
	ErrInvalidAPIKey    = APIKeyError{Code: "invalid_api_key", Message: "API key is invalid"}
	ErrAPIKeyDisabled   = APIKeyError{Code: "api_key_disabled", Message: "API key is disabled"}
	ErrAPIKeyPathDenied = APIKeyError{Code: "api_key_path_denied", Message: "API key not allowed for this path"}
)

// APIKeyMechanism authenticates the X-API-Key header. The principal is the
// key's name, never the key itself.
type APIKeyMechanism struct {
	store *APIKeyStore
}

// NewAPIKeyMechanism creates a mechanism backed by store.
func NewAPIKeyMechanism(store *APIKeyStore) *APIKeyMechanism {
	return &APIKeyMechanism{store: store}
}

func (m *APIKeyMechanism) Name() string { return "API_KEY" }

func (m *APIKeyMechanism) Authenticate(r *http.Request) (Identity, error) {
	raw := r.Header.Get("X-API-Key")
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}
	key, err := m.store.ValidateKey(raw, r.URL.Path)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Principal: key.Name, Role: key.Role}, nil
}

func (m *APIKeyMechanism) Challenge(w http.ResponseWriter) {}

// matchPath checks if a permission pattern matches a path.
// Supports wildcards: /admin/* matches /admin/handlers
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return strings.HasPrefix(path, prefix+"/")
	}
	return false
}
