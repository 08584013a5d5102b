package collector

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"dumpgw/internal/dump"

	"github.com/rs/zerolog"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_ReceivesFromNetworkSink(t *testing.T) {
	for _, framing := range []dump.Framing{dump.FramingU32, dump.FramingJavaUTF} {
		t.Run(string(framing), func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatalf("listen: %v", err)
			}
			var out lockedBuffer
			got := make(chan string, 2)
			s := &Server{
				Framing: framing,
				Logger:  zerolog.New(&out),
				Handle:  func(p []byte) { got <- string(p) },
			}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- s.Serve(ctx, ln) }()

			sink, err := dump.NewNetworkSink("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, framing, 0, 0)
			if err != nil {
				t.Fatalf("sink: %v", err)
			}
			if err := sink.Send(context.Background(), []byte("{\"id\":\"r1\"}\n")); err != nil {
				t.Fatalf("send: %v", err)
			}
			if err := sink.Send(context.Background(), []byte("plain text")); err != nil {
				t.Fatalf("send: %v", err)
			}

			for i := 0; i < 2; i++ {
				select {
				case <-got:
				case <-time.After(2 * time.Second):
					t.Fatal("record not received")
				}
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("serve: %v", err)
			}
			logs := out.String()
			if !strings.Contains(logs, `"record":{"id":"r1"}`) {
				t.Fatalf("expected json record in logs: %s", logs)
			}
			if !strings.Contains(logs, `"record":"plain text"`) {
				t.Fatalf("expected text record in logs: %s", logs)
			}
		})
	}
}
