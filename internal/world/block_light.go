package world

import (
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// PropagateSunlight заново расставляет солнечный свет в каждой колонке блока.
//
// Свет входит сверху, если узел над блоком освещён солнцем. Если узла
// над блоком нет, колонка считается освещённой, когда блок не подземный.
// Все узлы, получившие солнечный свет, добавляются в lightSources
// (абсолютные позиции).
//
// Возвращает false, если освещение верхнего слоя блока снизу не согласуется
// с результатом и блок ниже нужно пересчитать. Отсутствие блока снизу
// считается согласованным состоянием.
func (b *MapBlock) PropagateSunlight(parent NodeContainer, lightSources NodeSet) bool {
	if b.IsDummy() {
		return true
	}
	blockBelowValid := true
	rel := b.PosRelative()

	for x := int16(0); x < BlockSize; x++ {
		for z := int16(0); z < BlockSize; z++ {
			noSunlight := false
			if above, ok := b.GetNodeParent(parent, vec.V3S16{X: x, Y: BlockSize, Z: z}); ok {
				noSunlight = above.GetLight() != node.LightSun
			} else if b.isUnderground {
				// Соседа сверху нет: считаем, что светит солнце, если блок не подземный.
				// Из-за этого крытые наземные места тоже освещены.
				noSunlight = true
			}

			y := int16(BlockSize - 1)
			if !noSunlight {
				for ; y >= 0; y-- {
					p := vec.V3S16{X: x, Y: y, Z: z}
					n := b.nodeRef(p)
					if !n.SunlightPropagates() {
						break
					}
					n.SetLight(node.LightSun)
					lightSources.Add(rel.Add(p))
				}
			}

			sunlightShouldGoDown := y == -1

			// Остаток колонки до первого непрозрачного узла гасим
			for ; y >= 0; y-- {
				n := b.nodeRef(vec.V3S16{X: x, Y: y, Z: z})
				if !n.LightPropagates() {
					break
				}
				n.SetLight(0)
			}

			if !blockBelowValid {
				continue
			}
			below, ok := b.GetNodeParent(parent, vec.V3S16{X: x, Y: -1, Z: z})
			if !ok || !below.LightPropagates() {
				continue
			}
			sunBelow := below.GetLight() == node.LightSun
			if sunBelow != sunlightShouldGoDown {
				blockBelowValid = false
			}
		}
	}
	return blockBelowValid
}
