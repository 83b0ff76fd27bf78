package vec

import "fmt"

const (
	// BS - размер одного узла в мировых единицах.
	BS = 10
	// BlockSize - длина ребра MapBlock в узлах.
	BlockSize = 16
)

// V3S16 представляет трехмерный вектор с координатами int16.
// Используется для позиций узлов и блоков.
type V3S16 struct {
	X int16
	Y int16
	Z int16
}

// New3 создаёт V3S16.
func New3(x, y, z int16) V3S16 {
	return V3S16{X: x, Y: y, Z: z}
}

// Add складывает два вектора
func (v V3S16) Add(other V3S16) V3S16 {
	return V3S16{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v V3S16) Sub(other V3S16) V3S16 {
	return V3S16{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v V3S16) Mul(k int16) V3S16 {
	return V3S16{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// XZ возвращает проекцию на горизонтальную плоскость (позиция сектора).
func (v V3S16) XZ() V2S16 {
	return V2S16{X: v.X, Y: v.Z}
}

// Chebyshev возвращает расстояние по максимальной компоненте (радиус "оболочки").
func (v V3S16) Chebyshev(other V3S16) int16 {
	d := abs16(v.X - other.X)
	if dy := abs16(v.Y - other.Y); dy > d {
		d = dy
	}
	if dz := abs16(v.Z - other.Z); dz > d {
		d = dz
	}
	return d
}

func (v V3S16) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// NodeToBlock возвращает позицию блока, содержащего узел p.
// Деление округляется вниз и для отрицательных координат.
func NodeToBlock(p V3S16) V3S16 {
	return V3S16{X: floorDiv(p.X), Y: floorDiv(p.Y), Z: floorDiv(p.Z)}
}

// NodeInBlock возвращает координаты узла относительно его блока (0..BlockSize-1).
func NodeInBlock(p V3S16) V3S16 {
	return p.Sub(NodeToBlock(p).Mul(BlockSize))
}

// BlockOrigin возвращает абсолютную позицию узла (0,0,0) блока.
func BlockOrigin(blockpos V3S16) V3S16 {
	return blockpos.Mul(BlockSize)
}

// FacePositions перечисляет точки на поверхности куба радиуса d
// с центром в начале координат. Каждая точка встречается ровно один раз.
func FacePositions(d int16) []V3S16 {
	if d == 0 {
		return []V3S16{{}}
	}
	n := int(2*d+1)*int(2*d+1)*int(2*d+1) - int(2*d-1)*int(2*d-1)*int(2*d-1)
	list := make([]V3S16, 0, n)
	for y := -d; y <= d; y++ {
		// Левая и правая грани вместе с рёбрами
		for z := -d; z <= d; z++ {
			list = append(list, V3S16{d, y, z}, V3S16{-d, y, z})
		}
		// Передняя и задняя грани без рёбер
		for x := -d + 1; x <= d-1; x++ {
			list = append(list, V3S16{x, y, d}, V3S16{x, y, -d})
		}
	}
	// Верх и низ без рёбер
	for z := -d + 1; z <= d-1; z++ {
		for x := -d + 1; x <= d-1; x++ {
			list = append(list, V3S16{x, -d, z}, V3S16{x, d, z})
		}
	}
	return list
}

func floorDiv(c int16) int16 {
	if c >= 0 {
		return c / BlockSize
	}
	return (c+1)/BlockSize - 1
}

func abs16(a int16) int16 {
	if a < 0 {
		return -a
	}
	return a
}
