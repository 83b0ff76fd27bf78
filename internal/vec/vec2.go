package vec

import "fmt"

// V2S16 представляет 2D координаты сектора (X, Z мира).
type V2S16 struct {
	X, Y int16
}

func (v V2S16) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Y)
}

// Add складывает два вектора
func (v V2S16) Add(other V2S16) V2S16 {
	return V2S16{X: v.X + other.X, Y: v.Y + other.Y}
}
