package physics

import (
	"math"

	"github.com/annel0/voxel-core/internal/vec"
)

// Размеры игрока в мировых единицах
const (
	PlayerRadius = vec.BS * 0.3
	PlayerHeight = vec.BS * 1.7
)

// Box - выровненный по осям параллелепипед в мировых единицах.
type Box struct {
	Min vec.V3F
	Max vec.V3F
}

// NodeBox возвращает коробку узла p (узел занимает ±BS/2 вокруг центра).
func NodeBox(p vec.V3S16) Box {
	c := vec.IntToFloat(p)
	h := float32(vec.BS) / 2
	return Box{
		Min: vec.V3F{X: c.X - h, Y: c.Y - h, Z: c.Z - h},
		Max: vec.V3F{X: c.X + h, Y: c.Y + h, Z: c.Z + h},
	}
}

// PlayerBox возвращает коробку игрока, стоящего ногами в pos.
func PlayerBox(pos vec.V3F) Box {
	return Box{
		Min: vec.V3F{X: pos.X - PlayerRadius, Y: pos.Y, Z: pos.Z - PlayerRadius},
		Max: vec.V3F{X: pos.X + PlayerRadius, Y: pos.Y + PlayerHeight, Z: pos.Z + PlayerRadius},
	}
}

// Intersects проверяет пересечение двух коробок
func (b Box) Intersects(o Box) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// axes - направления, по которым гасится скорость при столкновении.
var axes = [3]vec.V3F{
	{Z: 1}, // назад
	{Y: 1}, // вверх
	{X: 1}, // вправо
}

// Collide двигает игрока из oldpos в pos со скоростью speed, упираясь
// в сплошные узлы. solid сообщает, занят ли узел; незагруженные узлы
// тоже считаются сплошными, чтобы игрок не уходил за край карты.
// Возвращает итоговую позицию, скорость и касание земли.
func Collide(oldpos, pos, speed vec.V3F, solid func(vec.V3S16) bool) (vec.V3F, vec.V3F, bool) {
	// Шаг ограничен 0.1*BS за вызов, допуск чуть больше
	d := float32(vec.BS) * 0.15
	oldI := vec.FloatToInt(oldpos)
	playerBox := PlayerBox(pos)
	oldBox := PlayerBox(oldpos)
	touchingGround := false

	for y := oldI.Y - 1; y <= oldI.Y+2; y++ {
		for z := oldI.Z - 1; z <= oldI.Z+1; z++ {
			for x := oldI.X - 1; x <= oldI.X+1; x++ {
				p := vec.V3S16{X: x, Y: y, Z: z}
				if !solid(p) {
					continue
				}
				nb := NodeBox(p)

				if float32(math.Abs(float64(nb.Max.Y-playerBox.Min.Y))) < d &&
					nb.Max.X-d > playerBox.Min.X && nb.Min.X+d < playerBox.Max.X &&
					nb.Max.Z-d > playerBox.Min.Z && nb.Min.Z+d < playerBox.Max.Z {
					touchingGround = true
				}

				if !playerBox.Intersects(nb) {
					continue
				}
				for i, dir := range axes {
					nodeMax, nodeMin := nb.Max.Dot(dir), nb.Min.Dot(dir)
					playerMax, playerMin := playerBox.Max.Dot(dir), playerBox.Min.Dot(dir)
					oldMax, oldMin := oldBox.Max.Dot(dir), oldBox.Min.Dot(dir)
					v := speed.Dot(dir)

					mainEdge := (nodeMax > playerMin && nodeMax <= oldMin+d && v < 0) ||
						(nodeMin < playerMax && nodeMin >= oldMax-d && v > 0)
					if !mainEdge || !otherEdgesCollide(i, nb, playerBox, d) {
						continue
					}
					speed = speed.Sub(dir.Mul(v))
					pos = pos.Sub(dir.Mul(pos.Dot(dir))).Add(dir.Mul(oldpos.Dot(dir)))
				}
			}
		}
	}
	return pos, speed, touchingGround
}

func otherEdgesCollide(skip int, nb, pb Box, d float32) bool {
	for j, dir := range axes {
		if j == skip {
			continue
		}
		if !(nb.Max.Dot(dir)-d > pb.Min.Dot(dir) && nb.Min.Dot(dir)+d < pb.Max.Dot(dir)) {
			return false
		}
	}
	return true
}
