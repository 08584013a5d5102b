package dump

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	DefaultAddress      = "127.0.0.1"
	DefaultPort         = 1575
	DefaultDialTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second

	// MaxFrameSize bounds u32 frames accepted by ReadFrame.
	MaxFrameSize = 64 << 20
	// maxJavaUTF is the largest encoded payload a 2-byte prefix can describe.
	maxJavaUTF = 65535
)

// Framing selects how a payload is delimited on the wire.
type Framing string

const (
	// FramingU32 prefixes the payload with its length as a big-endian uint32.
	FramingU32 Framing = "u32"
	// FramingJavaUTF is a big-endian uint16 byte count followed by modified
	// UTF-8, the layout DataInputStream.readUTF expects.
	FramingJavaUTF Framing = "java-utf"
)

var ErrFrameTooLarge = errors.New("frame too large")

func ParseFraming(s string) (Framing, error) {
	switch Framing(strings.ToLower(s)) {
	case "", FramingU32:
		return FramingU32, nil
	case FramingJavaUTF:
		return FramingJavaUTF, nil
	default:
		return "", fmt.Errorf("unknown dump framing %q", s)
	}
}

// NetworkSink opens one TCP connection per record, writes a single frame
// and closes the connection.
type NetworkSink struct {
	addr         string
	framing      Framing
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// NewNetworkSink validates the target. An empty address or a zero port
// selects the defaults; any other port outside 1..65535 is rejected.
func NewNetworkSink(address string, port int, framing Framing, dialTimeout, writeTimeout time.Duration) (*NetworkSink, error) {
	if address == "" {
		address = DefaultAddress
	}
	if port == 0 {
		port = DefaultPort
	}
	if err := checkRange("port", 1, 65535, port); err != nil {
		return nil, err
	}
	if framing == "" {
		framing = FramingU32
	}
	if framing != FramingU32 && framing != FramingJavaUTF {
		return nil, newError(CodeParameterRange, nil, "unknown framing %q", framing)
	}
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &NetworkSink{
		addr:         net.JoinHostPort(address, strconv.Itoa(port)),
		framing:      framing,
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
	}, nil
}

func (s *NetworkSink) Name() string { return "network" }

// Addr returns the collector address in host:port form.
func (s *NetworkSink) Addr() string { return s.addr }

func (s *NetworkSink) Framing() Framing { return s.framing }

func (s *NetworkSink) Send(ctx context.Context, payload []byte) (err error) {
	frame, err := EncodeFrame(payload, s.framing)
	if err != nil {
		return err
	}

	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", s.addr, cerr)
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("write %s: %w", s.addr, err)
	}
	return nil
}

// EncodeFrame returns payload with the framing's length prefix.
func EncodeFrame(payload []byte, f Framing) ([]byte, error) {
	switch f {
	case FramingJavaUTF:
		body := encodeModifiedUTF8(payload)
		if len(body) > maxJavaUTF {
			return nil, fmt.Errorf("%w: %d bytes exceeds %d for %s framing", ErrFrameTooLarge, len(body), maxJavaUTF, f)
		}
		frame := make([]byte, 2+len(body))
		binary.BigEndian.PutUint16(frame, uint16(len(body)))
		copy(frame[2:], body)
		return frame, nil
	case FramingU32, "":
		frame := make([]byte, 4+len(payload))
		binary.BigEndian.PutUint32(frame, uint32(len(payload)))
		copy(frame[4:], payload)
		return frame, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", f)
	}
}

// ReadFrame reads one frame from r and returns its payload as UTF-8.
func ReadFrame(r io.Reader, f Framing) ([]byte, error) {
	switch f {
	case FramingJavaUTF:
		var hdr [2]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		body := make([]byte, binary.BigEndian.Uint16(hdr[:]))
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return decodeModifiedUTF8(body)
	case FramingU32, "":
		var hdr [4]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n > MaxFrameSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return body, nil
	default:
		return nil, fmt.Errorf("unknown framing %q", f)
	}
}

// encodeModifiedUTF8 encodes NUL as two bytes and supplementary characters
// as surrogate pairs of three bytes each. Invalid UTF-8 input becomes U+FFFD.
func encodeModifiedUTF8(p []byte) []byte {
	out := make([]byte, 0, len(p))
	for _, r := range string(p) {
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = appendUnit(out, hi)
			out = appendUnit(out, lo)
			continue
		}
		out = appendUnit(out, r)
	}
	return out
}

func appendUnit(out []byte, c rune) []byte {
	switch {
	case c >= 0x01 && c <= 0x7F:
		return append(out, byte(c))
	case c <= 0x7FF:
		return append(out, byte(0xC0|c>>6), byte(0x80|c&0x3F))
	default:
		return append(out, byte(0xE0|c>>12), byte(0x80|(c>>6)&0x3F), byte(0x80|c&0x3F))
	}
}

func decodeModifiedUTF8(p []byte) ([]byte, error) {
	units := make([]uint16, 0, len(p))
	for i := 0; i < len(p); {
		b := p[i]
		switch {
		case b&0x80 == 0:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(p) || p[i+1]&0xC0 != 0x80 {
				return nil, fmt.Errorf("malformed input around byte %d", i)
			}
			units = append(units, uint16(b&0x1F)<<6|uint16(p[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(p) || p[i+1]&0xC0 != 0x80 || p[i+2]&0xC0 != 0x80 {
				return nil, fmt.Errorf("malformed input around byte %d", i)
			}
			units = append(units, uint16(b&0x0F)<<12|uint16(p[i+1]&0x3F)<<6|uint16(p[i+2]&0x3F))
			i += 3
		default:
			return nil, fmt.Errorf("malformed input around byte %d", i)
		}
	}
	runes := utf16.Decode(units)
	out := make([]byte, 0, len(runes))
	for _, r := range runes {
		out = utf8.AppendRune(out, r)
	}
	return out, nil
}
