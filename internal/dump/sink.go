package dump

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dumpgw/internal/metrics"

	"github.com/rs/zerolog"
)

// Sink receives serialized records.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
}

// LogSink writes each record as one info line on a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
	format Format
}

func NewLogSink(logger zerolog.Logger, format Format) *LogSink {
	return &LogSink{logger: logger, format: format}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, payload []byte) error {
	ev := s.logger.Info()
	if s.format == FormatJSON {
		ev = ev.RawJSON("record", trimNewline(payload))
	} else {
		ev = ev.Str("record", string(payload))
	}
	ev.Msg("exchange dumped")
	return nil
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}

// Dispatcher delivers a payload to each sink in order. A failing sink does
// not prevent delivery to the ones after it.
type Dispatcher struct {
	sinks   []Sink
	metrics *metrics.Registry
}

func NewDispatcher(m *metrics.Registry, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, metrics: m}
}

// Sinks returns the sink names in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch returns nil when every sink succeeded, otherwise a dispatch_failed
// Error wrapping all sink failures.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	var errs []error
	for _, s := range d.sinks {
		start := time.Now()
		err := s.Send(ctx, payload)
		if d.metrics != nil {
			d.metrics.DispatchDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		}
		if err != nil {
			if d.metrics != nil {
				d.metrics.DispatchErrors.WithLabelValues(s.Name()).Inc()
			}
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return newError(CodeDispatch, errors.Join(errs...), "deliver record")
}
