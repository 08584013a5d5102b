// Package dump records every exchange passing through the chain and ships
// the serialized record to a log and to a TCP collector.
//
// The request phase is captured when the request enters Middleware. The
// response phase, together with the parsed form body, is added by a
// completion listener once the exchange ends; the finished record is then
// serialized once and delivered to each sink.
package dump

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dumpgw/internal/exchange"
	"dumpgw/internal/form"
	"dumpgw/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StoredResponse gives access to a retained response body. truncated
// reports that the response was longer than what was retained.
type StoredResponse interface {
	ReadStoredResponse(ex *exchange.Exchange) (body string, truncated, ok bool)
}

type Options struct {
	Address      string
	Port         int
	Format       Format
	Framing      Framing
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	// Async moves delivery off the request goroutine. Wait drains it.
	Async bool

	// Logger receives one line per record. Defaults to the global logger.
	Logger  *zerolog.Logger
	Metrics *metrics.Registry
	Stored  StoredResponse
	// Archive is an optional sink delivered to after the network sink.
	Archive Sink
}

type state int

const (
	stateRequestCaptured state = iota
	stateResponseCaptured
	stateEmitted
)

func (s state) String() string {
	switch s {
	case stateRequestCaptured:
		return "requestCaptured"
	case stateResponseCaptured:
		return "responseCaptured"
	default:
		return "emitted"
	}
}

type pending struct {
	record *Record
	state  state
}

var pendingKey = exchange.NewKey[*pending]("dump-record")

// Dumper captures and emits exchange records.
type Dumper struct {
	format     Format
	async      bool
	stored     StoredResponse
	metrics    *metrics.Registry
	network    *NetworkSink
	dispatcher *Dispatcher
	wg         sync.WaitGroup
}

// New validates opts and builds the sinks. Port 0 selects DefaultPort; any
// other value outside 1..65535 fails with a parameter_out_of_range Error.
func New(opts Options) (*Dumper, error) {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Format != FormatJSON && opts.Format != FormatLegacy {
		return nil, newError(CodeParameterRange, nil, "unknown format %q", opts.Format)
	}
	network, err := NewNetworkSink(opts.Address, opts.Port, opts.Framing, opts.DialTimeout, opts.WriteTimeout)
	if err != nil {
		return nil, err
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	sinks := []Sink{NewLogSink(logger, opts.Format), network}
	if opts.Archive != nil {
		sinks = append(sinks, opts.Archive)
	}
	return &Dumper{
		format:     opts.Format,
		async:      opts.Async,
		stored:     opts.Stored,
		metrics:    opts.Metrics,
		network:    network,
		dispatcher: NewDispatcher(opts.Metrics, sinks...),
	}, nil
}

// Target returns the collector address and framing.
func (d *Dumper) Target() (string, Framing) {
	return d.network.Addr(), d.network.Framing()
}

func (d *Dumper) Format() Format { return d.format }

// Sinks returns the sink names in delivery order.
func (d *Dumper) Sinks() []string { return d.dispatcher.Sinks() }

// Middleware captures the request phase and registers the completion
// listener. An exchange is created when no outer exchange.Handler exists.
func (d *Dumper) Middleware(next http.Handler) http.Handler {
	return exchange.Wrap(func(ex *exchange.Exchange, w http.ResponseWriter, r *http.Request) {
		if err := d.capture(ex, r); err != nil {
			if d.metrics != nil {
				d.metrics.CaptureErrors.Inc()
			}
			log.Error().Err(err).Str("method", r.Method).Str("uri", r.RequestURI).Msg("dump capture failed")
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Dumper) capture(ex *exchange.Exchange, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newError(CodeCapture, nil, "panic while capturing request: %v", p)
		}
	}()
	if _, ok := exchange.Attachment(ex, pendingKey); ok {
		return nil
	}
	rec := captureRequest(ex, r)
	if rec.Request.QueryError != "" {
		if d.metrics != nil {
			d.metrics.CaptureErrors.Inc()
		}
		log.Warn().Str("record", rec.ID).Str("query", rec.Request.QueryString).
			Str("error", rec.Request.QueryError).Msg("query string recorded leniently")
	}
	exchange.Attach(ex, pendingKey, &pending{record: rec, state: stateRequestCaptured})
	ex.AddCompletionListener(d.complete)
	return nil
}

// complete finalizes the record, proceeds the listener chain and then
// delivers the payload. Proceed runs exactly once on every path.
func (d *Dumper) complete(ex *exchange.Exchange, next *exchange.NextListener) {
	defer func() {
		if !next.Proceeded() {
			next.Proceed()
		}
	}()

	p, ok := exchange.Attachment(ex, pendingKey)
	if !ok {
		log.Error().Msg("dump completion without captured request")
		return
	}
	if p.state != stateRequestCaptured {
		log.Error().Str("record", p.record.ID).Stringer("state", p.state).Msg("dump completion invoked twice")
		return
	}

	payload, err := d.finish(ex, p)
	if err != nil {
		log.Error().Err(err).Str("record", p.record.ID).Msg("dump record not emitted")
		return
	}
	p.state = stateEmitted
	if d.metrics != nil {
		d.metrics.RecordsEmitted.Inc()
	}

	next.Proceed()

	ctx := context.WithoutCancel(ex.Request().Context())
	if d.async {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.dispatch(ctx, p.record.ID, payload)
		}()
		return
	}
	d.dispatch(ctx, p.record.ID, payload)
}

// finish adds the completion phase and serializes the record.
func (d *Dumper) finish(ex *exchange.Exchange, p *pending) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(CodeEncode, nil, "panic while finishing record: %v", r)
		}
	}()

	rec := p.record
	if data, ok := form.FromExchange(ex); ok {
		rec.Request.Body = formFields(data)
	}
	resp := &Response{
		Auth:          authOf(ex.SecurityContext()),
		Status:        ex.StatusCode(),
		ContentType:   ex.ResponseHeader().Get("Content-Type"),
		ContentLength: ex.ResponseContentLength(),
		Cookies:       responseCookies(ex.ResponseCookies()),
		Headers:       headerEntries(ex.ResponseHeader()),
		BytesSent:     ex.BytesWritten(),
		Aborted:       ex.Aborted(),
	}
	if d.stored != nil {
		if body, truncated, ok := d.stored.ReadStoredResponse(ex); ok {
			resp.Body = &body
			resp.BodyTruncated = truncated
		}
	}
	rec.Response = resp
	rec.Duration = float64(time.Since(rec.Start).Microseconds()) / 1000
	p.state = stateResponseCaptured

	return Encode(rec, d.format)
}

func (d *Dumper) dispatch(ctx context.Context, id string, payload []byte) {
	if err := d.dispatcher.Dispatch(ctx, payload); err != nil {
		log.Error().Err(err).Str("record", id).Msg("dump delivery failed")
	}
}

// Wait blocks until asynchronous deliveries have finished.
func (d *Dumper) Wait() { d.wg.Wait() }

// Pending returns a copy of the record being built for ex.
func Pending(ex *exchange.Exchange) (Record, bool) {
	p, ok := exchange.Attachment(ex, pendingKey)
	if !ok {
		return Record{}, false
	}
	return *p.record, true
}

func formFields(data *form.Data) []FormField {
	fields := make([]FormField, 0, data.Len())
	for _, name := range data.Fields() {
		values := data.Get(name)
		f := FormField{Name: name, Values: make([]FormValue, 0, len(values))}
		for _, v := range values {
			fv := FormValue{Value: v.Value, File: v.File, FileName: v.FileName}
			if v.File {
				fv.Value = FilePlaceholder
			}
			for _, h := range v.Headers {
				fv.Headers = append(fv.Headers, Header{Name: h.Name, Value: h.Value})
			}
			f.Values = append(f.Values, fv)
		}
		fields = append(fields, f)
	}
	return fields
}
