package serialize

import (
	"encoding/binary"
	"math"

	"github.com/annel0/voxel-core/internal/vec"
)

// Функции фиксированной ширины для буферов известного размера.
// Все многобайтовые значения хранятся в big-endian.

func ReadU8(b []byte) uint8   { return b[0] }
func ReadU16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func ReadU32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func ReadS16(b []byte) int16  { return int16(binary.BigEndian.Uint16(b)) }
func ReadS32(b []byte) int32  { return int32(binary.BigEndian.Uint32(b)) }

func WriteU8(b []byte, v uint8)   { b[0] = v }
func WriteU16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func WriteU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func WriteS16(b []byte, v int16)  { binary.BigEndian.PutUint16(b, uint16(v)) }
func WriteS32(b []byte, v int32)  { binary.BigEndian.PutUint32(b, uint32(v)) }

// ReadV3S16 читает три int16 (6 байт).
func ReadV3S16(b []byte) vec.V3S16 {
	return vec.V3S16{X: ReadS16(b[0:]), Y: ReadS16(b[2:]), Z: ReadS16(b[4:])}
}

// WriteV3S16 пишет три int16 (6 байт).
func WriteV3S16(b []byte, p vec.V3S16) {
	WriteS16(b[0:], p.X)
	WriteS16(b[2:], p.Y)
	WriteS16(b[4:], p.Z)
}

// ReadV3S32 читает три int32 (12 байт).
func ReadV3S32(b []byte) [3]int32 {
	return [3]int32{ReadS32(b[0:]), ReadS32(b[4:]), ReadS32(b[8:])}
}

// WriteV3S32 пишет три int32 (12 байт).
func WriteV3S32(b []byte, v [3]int32) {
	WriteS32(b[0:], v[0])
	WriteS32(b[4:], v[1])
	WriteS32(b[8:], v[2])
}

// ReadV3F100 читает вектор, переданный как int32*100.
func ReadV3F100(b []byte) vec.V3F {
	v := ReadV3S32(b)
	return vec.V3F{X: float32(v[0]) / 100, Y: float32(v[1]) / 100, Z: float32(v[2]) / 100}
}

// WriteV3F100 пишет вектор как int32*100.
func WriteV3F100(b []byte, v vec.V3F) {
	WriteV3S32(b, [3]int32{toFixed100(v.X), toFixed100(v.Y), toFixed100(v.Z)})
}

// ReadF100 читает float, переданный как int32*100.
func ReadF100(b []byte) float32 { return float32(ReadS32(b)) / 100 }

// WriteF100 пишет float как int32*100.
func WriteF100(b []byte, f float32) { WriteS32(b, toFixed100(f)) }

func toFixed100(f float32) int32 {
	return int32(math.Round(float64(f) * 100))
}
