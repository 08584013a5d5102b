package dump

import (
	"net/http"
	"sync"

	"dumpgw/internal/plugin"
)

// HandlerName is the configuration name of the dump handler.
const HandlerName = "dump-request"

// Builder creates Dumpers from handler parameters layered over Base.
type Builder struct {
	Base Options

	mu    sync.Mutex
	built []*Dumper
}

func NewBuilder(base Options) *Builder {
	return &Builder{Base: base}
}

func (b *Builder) Name() string { return HandlerName }

func (b *Builder) Parameters() map[string]string {
	return map[string]string{
		"address": "string",
		"port":    "int",
		"format":  "string",
		"framing": "string",
		"async":   "bool",
	}
}

func (b *Builder) Build(params map[string]string) (plugin.Middleware, error) {
	opts := b.Base
	opts.Address = plugin.String(params, "address", opts.Address)

	port, err := plugin.Int(params, "port", opts.Port)
	if err != nil {
		return nil, err
	}
	if _, ok := params["port"]; ok {
		// Only Options treats 0 as unset.
		if err := checkRange("port", 1, 65535, port); err != nil {
			return nil, err
		}
	}
	opts.Port = port

	if opts.Format, err = ParseFormat(plugin.String(params, "format", string(opts.Format))); err != nil {
		return nil, err
	}
	if opts.Framing, err = ParseFraming(plugin.String(params, "framing", string(opts.Framing))); err != nil {
		return nil, err
	}
	if opts.Async, err = plugin.Bool(params, "async", opts.Async); err != nil {
		return nil, err
	}

	d, err := New(opts)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.built = append(b.built, d)
	b.mu.Unlock()
	return func(next http.Handler) http.Handler { return d.Middleware(next) }, nil
}

// Dumpers returns every Dumper built so far.
func (b *Builder) Dumpers() []*Dumper {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Dumper, len(b.built))
	copy(out, b.built)
	return out
}
