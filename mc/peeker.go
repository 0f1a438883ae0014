package mc

import "io"

type PeekReader interface {
	Peek(n int) ([]byte, error)
	io.Reader
}

// BytePeeker reads from a PeekReader without consuming anything, Cursor
// counts how many bytes have been looked at so far.
type BytePeeker struct {
	PeekReader
	Cursor int
}

func (peeker *BytePeeker) Read(b []byte) (int, error) {
	buf, err := peeker.Peek(len(b) + peeker.Cursor)
	if err != nil {
		return 0, err
	}

	n := copy(b, buf[peeker.Cursor:])
	peeker.Cursor += n

	return n, nil
}

func (peeker *BytePeeker) ReadByte() (byte, error) {
	buf, err := peeker.Peek(1 + peeker.Cursor)
	if err != nil {
		return 0x00, err
	}

	b := buf[peeker.Cursor]
	peeker.Cursor++

	return b, nil
}
