package world

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Generator отдаёт высоту поверхности в колонке (x, z) в узлах.
// Генератор детерминирован для одного сида.
type Generator interface {
	GroundHeight(x, z int16) int16
}

// HeightmapGenerator строит рельеф по двумерному шуму Перлина.
type HeightmapGenerator struct {
	noise *perlin.Perlin

	// Scale - сколько узлов приходится на единицу шума.
	Scale float64
	// Base и Amplitude задают высоты в узлах: Base ± Amplitude.
	Base      float64
	Amplitude float64
}

// NewHeightmapGenerator создаёт генератор с указанным сидом
func NewHeightmapGenerator(seed int64) *HeightmapGenerator {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &HeightmapGenerator{
		noise:     perlin.NewPerlin(alpha, beta, n, seed),
		Scale:     64,
		Base:      2,
		Amplitude: 16,
	}
}

// GroundHeight возвращает высоту поверхности.
func (g *HeightmapGenerator) GroundHeight(x, z int16) int16 {
	// Шум в диапазоне примерно -1..1
	v := g.noise.Noise2D(float64(x)/g.Scale, float64(z)/g.Scale)
	h := g.Base + v*g.Amplitude
	return int16(math.Round(h))
}

// FlatGenerator - ровная поверхность на заданной высоте.
type FlatGenerator struct {
	Height int16
}

func (g FlatGenerator) GroundHeight(x, z int16) int16 { return g.Height }
