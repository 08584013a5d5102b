package handler

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog/log"
)

// ProxyHandler forwards requests to the downstream service.
type ProxyHandler struct {
	proxy *httputil.ReverseProxy
}

func NewProxyHandler(downstream string) (*ProxyHandler, error) {
	u, err := url.Parse(downstream)
	if err != nil {
		return nil, fmt.Errorf("parse downstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("downstream url %q needs a scheme and host", downstream)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Msg("downstream request failed")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}
	return &ProxyHandler{proxy: rp}, nil
}

func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}
