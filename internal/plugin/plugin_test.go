package plugin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type tagBuilder struct {
	name string
}

func (b tagBuilder) Name() string { return b.name }

func (b tagBuilder) Parameters() map[string]string {
	return map[string]string{"count": "int", "loud": "bool", "label": "string"}
}

func (b tagBuilder) Build(params map[string]string) (Middleware, error) {
	label := String(params, "label", b.name)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Chain", label)
			next.ServeHTTP(w, r)
		})
	}, nil
}

func TestRegistry_Duplicate(t *testing.T) {
	_, err := NewRegistry(tagBuilder{"a"}, tagBuilder{"a"})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r, err := NewRegistry(tagBuilder{"b"}, tagBuilder{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := r.List()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Parameters["count"] != "int" {
		t.Fatalf("unexpected parameters %+v", list[0].Parameters)
	}
}

func TestChain_Order(t *testing.T) {
	r, _ := NewRegistry(tagBuilder{"a"}, tagBuilder{"b"})
	mw, err := Chain(r, []Spec{{Name: "a"}, {Name: "b", Params: map[string]string{"label": "second"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rr := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(rr.Header().Values("X-Chain"), ","); got != "a,second" {
		t.Fatalf("unexpected chain order %s", got)
	}
}

func TestChain_Errors(t *testing.T) {
	r, _ := NewRegistry(tagBuilder{"a"})
	cases := []struct {
		spec Spec
		want error
	}{
		{Spec{Name: "missing"}, ErrUnknownHandler},
		{Spec{Name: "a", Params: map[string]string{"color": "red"}}, ErrUnknownParameter},
		{Spec{Name: "a", Params: map[string]string{"count": "many"}}, ErrInvalidParameter},
		{Spec{Name: "a", Params: map[string]string{"loud": "maybe"}}, ErrInvalidParameter},
	}
	for _, c := range cases {
		if _, err := Chain(r, []Spec{c.spec}); !errors.Is(err, c.want) {
			t.Errorf("%+v: expected %v, got %v", c.spec, c.want, err)
		}
	}
}

func TestParameterHelpers(t *testing.T) {
	params := map[string]string{"n": "5", "b": "true", "s": "x", "empty": ""}
	if n, err := Int(params, "n", 1); err != nil || n != 5 {
		t.Fatalf("Int: %d %v", n, err)
	}
	if n, _ := Int(params, "empty", 7); n != 7 {
		t.Fatalf("expected default, got %d", n)
	}
	if b, err := Bool(params, "b", false); err != nil || !b {
		t.Fatalf("Bool: %v %v", b, err)
	}
	if s := String(params, "missing", "def"); s != "def" {
		t.Fatalf("String: %s", s)
	}
	if _, err := Int(params, "s", 0); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestBuiltins(t *testing.T) {
	r, err := NewRegistry(FormData{}, StoredResponse{MaxBytes: 16})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Chain(r, []Spec{
		{Name: "form-data", Params: map[string]string{"max-field-size": "1024"}},
		{Name: "stored-response"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Chain(r, []Spec{{Name: "stored-response", Params: map[string]string{"max-bytes": "lots"}}}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}
