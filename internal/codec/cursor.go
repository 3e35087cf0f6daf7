package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrTruncated indicates the payload ended before a field could be read.
var ErrTruncated = errors.New("payload truncated")

const (
	addressLen = common.AddressLength
	hashLen    = common.HashLength
	u256Len    = 32
	lengthLen  = 4
)

// cursor reads fields sequentially from a payload. Each decode call owns its own cursor.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) take(field string, n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, fmt.Errorf("%s: need %d bytes at offset %d, have %d: %w", field, n, c.pos, c.remaining(), ErrTruncated)
	}
	out := c.buf[c.pos : c.pos+n]
	c.pos += n
	return out, nil
}

func (c *cursor) address(field string) (common.Address, error) {
	b, err := c.take(field, addressLen)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

func (c *cursor) hash(field string) (common.Hash, error) {
	b, err := c.take(field, hashLen)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}

func (c *cursor) u256(field string) (*uint256.Int, error) {
	b, err := c.take(field, u256Len)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes32(b), nil
}

func (c *cursor) u32(field string) (uint32, error) {
	b, err := c.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) u16(field string) (uint16, error) {
	b, err := c.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *cursor) u8(field string) (uint8, error) {
	b, err := c.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) boolean(field string) (bool, error) {
	v, err := c.u8(field)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// bytes reads a uint32 length prefix followed by that many bytes. The result is a copy.
func (c *cursor) bytes(field string) ([]byte, error) {
	n, err := c.u32(field + ".length")
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(c.remaining()) {
		return nil, fmt.Errorf("%s: length %d exceeds remaining %d: %w", field, n, c.remaining(), ErrTruncated)
	}
	b, err := c.take(field, int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

func (c *cursor) str(field string) (string, error) {
	b, err := c.bytes(field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) strs(field string) ([]string, error) {
	n, err := c.u32(field + ".count")
	if err != nil {
		return nil, err
	}
	// every element carries at least its length prefix
	if uint64(n)*lengthLen > uint64(c.remaining()) {
		return nil, fmt.Errorf("%s: count %d exceeds remaining %d: %w", field, n, c.remaining(), ErrTruncated)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := c.str(fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// writer is the encoding counterpart of cursor.
type writer struct {
	buf []byte
}

func (w *writer) address(v common.Address) { w.buf = append(w.buf, v.Bytes()...) }

func (w *writer) hash(v common.Hash) { w.buf = append(w.buf, v.Bytes()...) }

func (w *writer) u256(v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *writer) u16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *writer) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) bytes(v []byte) error {
	if uint64(len(v)) > uint64(^uint32(0)) {
		return fmt.Errorf("field too long: %d bytes", len(v))
	}
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
	return nil
}

func (w *writer) str(v string) error { return w.bytes([]byte(v)) }

func (w *writer) strs(v []string) error {
	w.u32(uint32(len(v)))
	for _, s := range v {
		if err := w.str(s); err != nil {
			return err
		}
	}
	return nil
}
