package vec

import "math"

// V3F представляет позицию или скорость в мировых единицах.
type V3F struct {
	X, Y, Z float32
}

// Add складывает два вектора
func (v V3F) Add(other V3F) V3F {
	return V3F{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v V3F) Sub(other V3F) V3F {
	return V3F{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v V3F) Mul(k float32) V3F {
	return V3F{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot возвращает скалярное произведение.
func (v V3F) Dot(other V3F) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross возвращает векторное произведение.
func (v V3F) Cross(other V3F) V3F {
	return V3F{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// Length возвращает длину вектора.
func (v V3F) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize возвращает единичный вектор; нулевой вектор остаётся нулевым.
func (v V3F) Normalize() V3F {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}

// RotateXZBy поворачивает вектор вокруг оси Y на заданное число градусов.
func (v V3F) RotateXZBy(degrees float32) V3F {
	rad := float64(degrees) * math.Pi / 180
	c := float32(math.Cos(rad))
	s := float32(math.Sin(rad))
	return V3F{X: c*v.X - s*v.Z, Y: v.Y, Z: s*v.X + c*v.Z}
}

// FloatToInt возвращает узел, в который попадает мировая позиция p.
func FloatToInt(p V3F) V3S16 {
	return V3S16{X: roundNode(p.X), Y: roundNode(p.Y), Z: roundNode(p.Z)}
}

// IntToFloat возвращает мировую позицию центра узла p.
func IntToFloat(p V3S16) V3F {
	return V3F{X: float32(p.X) * BS, Y: float32(p.Y) * BS, Z: float32(p.Z) * BS}
}

func roundNode(c float32) int16 {
	if c > 0 {
		return int16((c + BS/2) / BS)
	}
	return int16((c - BS/2) / BS)
}

// WrapDegrees приводит угол к диапазону (-360, 360), сохраняя знак.
func WrapDegrees(f float32) float32 {
	w := float32(math.Mod(float64(f), 360))
	return w
}
