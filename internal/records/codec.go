package records

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"
)

type writer struct {
	buf bytes.Buffer
}

func newWriter(prefix [DiscriminatorSize]byte) *writer {
	w := &writer{}
	w.buf.Write(prefix[:])
	return w
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) string(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) raw(b []byte) {
	w.buf.Write(b)
}

func (w *writer) bytes() []byte {
	return w.buf.Bytes()
}

// reader consumes fields in order; the first failure sticks in err and later
// reads return zero values.
type reader struct {
	account string
	data    []byte
	off     int
	err     error
}

func newReader(data []byte, want [DiscriminatorSize]byte, account string) (*reader, error) {
	if len(data) < DiscriminatorSize {
		return nil, decodeError(account, "%d bytes is shorter than the discriminator", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], want[:]) {
		return nil, decodeError(account, "discriminator mismatch")
	}
	return &reader{account: account, data: data, off: DiscriminatorSize}, nil
}

func (r *reader) take(field string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = decodeError(r.account, "field %s: need %d bytes at offset %d, have %d", field, n, r.off, len(r.data)-r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32(field string) uint32 {
	b := r.take(field, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64(field string) uint64 {
	b := r.take(field, 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) string(field string) string {
	n := r.u32(field)
	if r.err != nil {
		return ""
	}
	if uint64(n) > uint64(len(r.data)-r.off) {
		r.err = decodeError(r.account, "field %s: length %d exceeds remaining %d bytes", field, n, len(r.data)-r.off)
		return ""
	}
	b := r.take(field, int(n))
	if !utf8.Valid(b) {
		r.err = decodeError(r.account, "field %s: invalid UTF-8", field)
		return ""
	}
	return string(b)
}

func (r *reader) raw(field string, n int) []byte {
	return r.take(field, n)
}
