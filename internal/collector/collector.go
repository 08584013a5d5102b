// Package collector receives framed dump records over TCP.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"dumpgw/internal/dump"

	"github.com/rs/zerolog"
)

// Server accepts one record per connection, as the network sink sends them.
type Server struct {
	Framing     dump.Framing
	ReadTimeout time.Duration
	Logger      zerolog.Logger
	// Handle, when set, receives every payload after it is logged.
	Handle func(payload []byte)

	wg sync.WaitGroup
}

// Serve accepts connections until ctx is cancelled or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer s.wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn.SetReadDeadline(time.Now().Add(timeout))

	for {
		payload, err := dump.ReadFrame(conn, s.Framing)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.Logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("bad frame")
			return
		}
		ev := s.Logger.Info().Str("remote", conn.RemoteAddr().String()).Int("bytes", len(payload))
		if trimmed := trimNewline(payload); json.Valid(trimmed) {
			ev = ev.RawJSON("record", trimmed)
		} else {
			ev = ev.Str("record", string(payload))
		}
		ev.Msg("record received")
		if s.Handle != nil {
			s.Handle(payload)
		}
	}
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}
