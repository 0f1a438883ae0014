package mc

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrMalformedHandshake = errors.New("malformed handshake")
	ErrNotValidHandshake  = errors.New("not a valid handshake state")
)

// ClassifyBufferSize is the buffer size a reader handed to Classify needs
// to hold the handshake and login start without running full.
const ClassifyBufferSize = 8192

// ClassifyReader is implemented by *bufio.Reader.
type ClassifyReader interface {
	PeekReader
	Discard(n int) (int, error)
}

// Classification is everything the proxy learns from the first bytes of a
// connection. The raw slices hold the bytes exactly as the client sent them.
type Classification struct {
	Legacy       bool
	Type         HandshakeState
	Handshake    ServerBoundHandshake
	Username     string
	RawHandshake []byte
	RawLogin     []byte
}

// Classify reads the handshake, and for logins the login start, from r.
// Only those two frames are parsed, the rest of the connection is left in r.
// A legacy (pre 1.7) ping is detected by its first byte and nothing is
// consumed in that case.
func Classify(r ClassifyReader) (Classification, error) {
	var c Classification
	first, err := r.Peek(1)
	if err != nil {
		return c, err
	}
	if first[0] == LegacyPingPacketID {
		c.Legacy = true
		return c, nil
	}

	hsPk, raw, err := readFramed(r, MaxHandshakeSize)
	if err != nil {
		return c, err
	}
	c.RawHandshake = raw
	c.Handshake, err = UnmarshalServerBoundHandshake(hsPk)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
	}
	if len(c.Handshake.ServerAddress) > 255*4 {
		return c, fmt.Errorf("%w: %v", ErrMalformedHandshake, ErrStringTooLong)
	}
	c.Type = RequestState(c.Handshake.NextState)
	if c.Type == UnknownState {
		return c, fmt.Errorf("%w: next state %d", ErrNotValidHandshake, c.Handshake.NextState)
	}
	if c.Type != Login {
		return c, nil
	}

	loginPk, raw, err := readFramed(r, MaxLoginStartSize)
	if err != nil {
		return c, err
	}
	c.RawLogin = raw
	loginStart, err := UnmarshalServerBoundLoginStart(loginPk)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
	}
	c.Username = string(loginStart.Name)
	return c, nil
}

// readFramed peeks one length prefixed packet, then discards exactly the
// bytes it looked at and returns a copy of them.
func readFramed(r ClassifyReader, maxSize int) (Packet, []byte, error) {
	peeker := &BytePeeker{PeekReader: r}
	var length VarInt
	if err := length.Decode(peeker); err != nil {
		return Packet{}, nil, malformed(err)
	}
	if length < 1 {
		return Packet{}, nil, malformed(ErrPacketTooShort)
	}
	if int(length) > maxSize {
		return Packet{}, nil, malformed(ErrPacketTooBig)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(peeker, data); err != nil {
		return Packet{}, nil, malformed(err)
	}

	buf, err := r.Peek(peeker.Cursor)
	if err != nil {
		return Packet{}, nil, malformed(err)
	}
	raw := make([]byte, len(buf))
	copy(raw, buf)
	if _, err := r.Discard(peeker.Cursor); err != nil {
		return Packet{}, nil, err
	}

	return Packet{ID: data[0], Data: data[1:]}, raw, nil
}

// malformed marks framing errors, a closed connection or passed deadline is
// returned as it is.
func malformed(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformedHandshake, err)
}
