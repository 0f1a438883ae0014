package mc

import (
	"errors"
	"io"
	"math"

	"github.com/google/uuid"
)

var (
	ErrVarIntTooBig  = errors.New("VarInt is too big")
	ErrStringTooLong = errors.New("string is longer than allowed")
	ErrNegativeSize  = errors.New("negative length prefix")
)

// MaxStringLength is the largest string (in bytes) the protocol allows.
const MaxStringLength = 32767 * 4

// A Field is both FieldEncoder and FieldDecoder
type Field interface {
	FieldEncoder
	FieldDecoder
}

// A FieldEncoder can be encode as minecraft protocol used.
type FieldEncoder interface {
	Encode() []byte
}

// A FieldDecoder can Decode from minecraft protocol
type FieldDecoder interface {
	Decode(r DecodeReader) error
}

//DecodeReader is both io.Reader and io.ByteReader
type DecodeReader interface {
	io.ByteReader
	io.Reader
}

type (
	// Boolean of True is encoded as 0x01, false as 0x00.
	Boolean bool
	// Byte is signed 8-bit integer, two's complement
	Byte int8
	// UnsignedByte is unsigned 8-bit integer
	UnsignedByte uint8
	// UnsignedShort is unsigned 16-bit integer
	UnsignedShort uint16
	// Int is signed 32-bit integer, two's complement
	Int int32
	// Long is signed 64-bit integer, two's complement
	Long int64
	// Float is a single-precision 32-bit IEEE 754 floating point number
	Float float32
	// Double is a double-precision 64-bit IEEE 754 floating point number
	Double float64
	// String is sequence of Unicode scalar values
	String string
	// Chat is encoded as a String with max length of 32767.
	Chat = String
	// Identifier is encoded as a String with max length of 32767.
	Identifier = String
	// VarInt is variable-length data encoding a two's complement signed 32-bit integer
	VarInt int32
	// UUID encoded as an unsigned 128-bit integer
	UUID uuid.UUID
	// RawBytes is written as is, without a length prefix. Used for
	// pre-encoded NBT and for replaying bytes.
	RawBytes []byte
)

// ReadNBytes read N bytes from bytes.Reader
func ReadNBytes(r DecodeReader, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	bb := make([]byte, n)
	if _, err := io.ReadFull(r, bb); err != nil {
		return nil, err
	}
	return bb, nil
}

// Encode a Boolean
func (b Boolean) Encode() []byte {
	if b {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// Decode a Boolean
func (b *Boolean) Decode(r DecodeReader) error {
	v, err := r.ReadByte()
	if err != nil {
		return err
	}
	*b = v != 0
	return nil
}

// Encode a String
func (s String) Encode() []byte {
	byteString := []byte(s)
	var bb []byte
	bb = append(bb, VarInt(len(byteString)).Encode()...) // len
	bb = append(bb, byteString...)                       // data
	return bb
}

// Decode a String
func (s *String) Decode(r DecodeReader) error {
	str, err := ReadString(r, MaxStringLength)
	if err != nil {
		return err
	}
	*s = String(str)
	return nil
}

// ReadString decodes a length prefixed string and refuses strings longer
// than maxLen bytes before allocating anything.
func ReadString(r DecodeReader, maxLen int) (string, error) {
	var l VarInt // String length
	if err := l.Decode(r); err != nil {
		return "", err
	}
	if l < 0 {
		return "", ErrNegativeSize
	}
	if int(l) > maxLen {
		return "", ErrStringTooLong
	}

	bb, err := ReadNBytes(r, int(l))
	if err != nil {
		return "", err
	}
	return string(bb), nil
}

// Encode a Byte
func (b Byte) Encode() []byte {
	return []byte{byte(b)}
}

// Decode a Byte
func (b *Byte) Decode(r DecodeReader) error {
	v, err := r.ReadByte()
	if err != nil {
		return err
	}
	*b = Byte(v)
	return nil
}

// Encode a UnsignedByte
func (ub UnsignedByte) Encode() []byte {
	return []byte{byte(ub)}
}

// Decode a UnsignedByte
func (ub *UnsignedByte) Decode(r DecodeReader) error {
	v, err := r.ReadByte()
	if err != nil {
		return err
	}
	*ub = UnsignedByte(v)
	return nil
}

// Encode a Unsigned Short
func (us UnsignedShort) Encode() []byte {
	n := uint16(us)
	return []byte{
		byte(n >> 8),
		byte(n),
	}
}

// Decode a UnsignedShort
func (us *UnsignedShort) Decode(r DecodeReader) error {
	bb, err := ReadNBytes(r, 2)
	if err != nil {
		return err
	}

	*us = UnsignedShort(uint16(bb[0])<<8 | uint16(bb[1]))
	return nil
}

// Encode a Int
func (i Int) Encode() []byte {
	n := uint32(i)
	return []byte{
		byte(n >> 24), byte(n >> 16),
		byte(n >> 8), byte(n),
	}
}

// Decode a Int
func (i *Int) Decode(r DecodeReader) error {
	bb, err := ReadNBytes(r, 4)
	if err != nil {
		return err
	}

	*i = Int(uint32(bb[0])<<24 | uint32(bb[1])<<16 | uint32(bb[2])<<8 | uint32(bb[3]))
	return nil
}

// Encode a Long
func (l Long) Encode() []byte {
	n := uint64(l)
	return []byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	}
}

// Decode a Long
func (l *Long) Decode(r DecodeReader) error {
	bb, err := ReadNBytes(r, 8)
	if err != nil {
		return err
	}

	var n uint64
	for _, b := range bb {
		n = n<<8 | uint64(b)
	}
	*l = Long(n)
	return nil
}

// Encode a Float
func (f Float) Encode() []byte {
	return Int(math.Float32bits(float32(f))).Encode()
}

// Decode a Float
func (f *Float) Decode(r DecodeReader) error {
	var v Int
	if err := v.Decode(r); err != nil {
		return err
	}
	*f = Float(math.Float32frombits(uint32(v)))
	return nil
}

// Encode a Double
func (d Double) Encode() []byte {
	return Long(math.Float64bits(float64(d))).Encode()
}

// Decode a Double
func (d *Double) Decode(r DecodeReader) error {
	var v Long
	if err := v.Decode(r); err != nil {
		return err
	}
	*d = Double(math.Float64frombits(uint64(v)))
	return nil
}

// Encode a VarInt
func (v VarInt) Encode() []byte {
	num := uint32(v)
	var bb []byte
	for {
		b := num & 0x7F
		num >>= 7
		if num != 0 {
			b |= 0x80
		}
		bb = append(bb, byte(b))
		if num == 0 {
			break
		}
	}
	return bb
}

// Decode a VarInt
func (v *VarInt) Decode(r DecodeReader) error {
	var n uint32
	for i := 0; ; i++ {
		if i >= 5 {
			return ErrVarIntTooBig
		}
		sec, err := r.ReadByte()
		if err != nil {
			return err
		}

		n |= uint32(sec&0x7F) << uint32(7*i)

		if sec&0x80 == 0 {
			break
		}
	}

	*v = VarInt(n)
	return nil
}

// Encode a UUID
func (u UUID) Encode() []byte {
	return u[:]
}

// Decode a UUID
func (u *UUID) Decode(r DecodeReader) error {
	bb, err := ReadNBytes(r, 16)
	if err != nil {
		return err
	}
	copy(u[:], bb)
	return nil
}

// Encode RawBytes
func (b RawBytes) Encode() []byte {
	return b
}
