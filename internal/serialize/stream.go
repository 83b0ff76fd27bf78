package serialize

import (
	"bytes"
	"fmt"
	"io"

	"github.com/annel0/voxel-core/internal/vec"
)

// Reader читает значения из буфера с проверкой границ.
// Первая ошибка запоминается; последующие чтения возвращают нули.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader создаёт Reader поверх буфера. Буфер не копируется.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err возвращает первую ошибку чтения.
func (r *Reader) Err() error { return r.err }

// Remaining возвращает количество непрочитанных байт.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset возвращает текущую позицию.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrSerialization, n, r.off, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return ReadU16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return ReadU32(b)
	}
	return 0
}

func (r *Reader) S16() int16 { return int16(r.U16()) }
func (r *Reader) S32() int32 { return int32(r.U32()) }

func (r *Reader) V3S16() vec.V3S16 {
	if b := r.take(6); b != nil {
		return ReadV3S16(b)
	}
	return vec.V3S16{}
}

func (r *Reader) V3F100() vec.V3F {
	if b := r.take(12); b != nil {
		return ReadV3F100(b)
	}
	return vec.V3F{}
}

func (r *Reader) F100() float32 { return float32(r.S32()) / 100 }

// Bytes возвращает следующие n байт (срез исходного буфера).
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Rest возвращает все оставшиеся байты.
func (r *Reader) Rest() []byte {
	return r.take(r.Remaining())
}

// Writer накапливает big-endian значения в буфере.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) U8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	WriteU16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	WriteU32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) S16(v int16) { w.U16(uint16(v)) }
func (w *Writer) S32(v int32) { w.U32(uint32(v)) }

func (w *Writer) V3S16(p vec.V3S16) {
	var b [6]byte
	WriteV3S16(b[:], p)
	w.buf.Write(b[:])
}

func (w *Writer) V3F100(v vec.V3F) {
	var b [12]byte
	WriteV3F100(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) F100(f float32) { w.S32(toFixed100(f)) }

// FixedString пишет строку фиксированной длины, дополненную нулями.
func (w *Writer) FixedString(s string, size int) {
	b := make([]byte, size)
	copy(b[:size-1], s)
	w.buf.Write(b)
}

func (w *Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

// Bytes возвращает накопленные данные.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Len возвращает количество записанных байт.
func (w *Writer) Len() int { return w.buf.Len() }

// ReadFixedString читает строку фиксированной длины до первого нуля.
func ReadFixedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

var _ io.Writer = (*Writer)(nil)
