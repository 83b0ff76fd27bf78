// Package node описывает отдельный воксель (MapNode) и правила материалов.
package node

import (
	"github.com/annel0/voxel-core/internal/serialize"
)

// Material - идентификатор материала узла.
type Material uint8

const (
	Stone Material = iota
	Grass
	Water
	Light
	Tree
	Leaves
	GrassFootsteps
	Mese
	Mud

	// UsefulMaterialCount - количество "настоящих" материалов.
	UsefulMaterialCount
)

const (
	// Air - пустое пространство.
	Air Material = 254
	// Ignore - "нет данных"; на месте такого узла ничего не рисуется.
	Ignore Material = 255
)

const (
	LightMax uint8 = 14
	LightSun uint8 = LightMax + 1
)

var materialNames = map[Material]string{
	Stone:          "stone",
	Grass:          "grass",
	Water:          "water",
	Light:          "light",
	Tree:           "tree",
	Leaves:         "leaves",
	GrassFootsteps: "grass_footsteps",
	Mese:           "mese",
	Mud:            "mud",
	Air:            "air",
	Ignore:         "ignore",
}

func (m Material) String() string {
	if s, ok := materialNames[m]; ok {
		return s
	}
	return "unknown"
}

// LightPropagates: материал пропускает свет, яркость хранится в param.
func (m Material) LightPropagates() bool {
	return m == Air || m == Light || m == Water
}

// SunlightPropagates: материал пропускает солнечный свет без потерь.
func (m Material) SunlightPropagates() bool {
	return m == Air
}

// Solidness: 0 невидимый, 1 прозрачный, 2 непрозрачный.
func (m Material) Solidness() uint8 {
	switch m {
	case Air:
		return 0
	case Water:
		return 1
	}
	return 2
}

// FaceMaterials определяет, есть ли видимая грань между m1 и m2.
//
//	0: грани нет
//	1: грань рисуется материалом m1
//	2: грань рисуется материалом m2
func FaceMaterials(m1, m2 Material) uint8 {
	if m1 == Ignore || m2 == Ignore {
		return 0
	}
	if m1 == m2 {
		return 0
	}
	s1, s2 := m1.Solidness(), m2.Solidness()
	if s1 == s2 {
		return 0
	}
	if s1 > s2 {
		return 1
	}
	return 2
}

// DiminishLight возвращает уровень света после прохождения одного узла.
func DiminishLight(light uint8) uint8 {
	if light == 0 {
		return 0
	}
	if light >= LightMax {
		return LightMax - 1
	}
	return light - 1
}

// MapNode - значение одного вокселя.
// Нулевое значение не является воздухом: используйте New или AirNode.
type MapNode struct {
	Material Material
	// У прозрачных узлов Param хранит яркость 0..LightMax или LightSun.
	Param uint8
}

// New создаёт узел заданного материала с нулевым param.
func New(m Material) MapNode {
	return MapNode{Material: m}
}

// AirNode - узел по умолчанию.
func AirNode() MapNode {
	return MapNode{Material: Air}
}

// IgnoreNode - узел "нет данных".
func IgnoreNode() MapNode {
	return MapNode{Material: Ignore}
}

func (n MapNode) LightPropagates() bool    { return n.Material.LightPropagates() }
func (n MapNode) SunlightPropagates() bool { return n.Material.SunlightPropagates() }
func (n MapNode) Solidness() uint8         { return n.Material.Solidness() }

// LightSource возвращает яркость источника света (узел может светить,
// даже если сам свет не пропускает).
func (n MapNode) LightSource() uint8 {
	if n.Material == Light {
		return LightMax
	}
	return 0
}

// GetLight возвращает наибольшее из собственного свечения и хранимой яркости.
func (n MapNode) GetLight() uint8 {
	var light uint8
	if n.LightPropagates() {
		light = n.Param & 0x0f
	}
	if src := n.LightSource(); src > light {
		light = src
	}
	return light
}

// SetLight сохраняет яркость. Для непрозрачных узлов ничего не делает.
func (n *MapNode) SetLight(light uint8) {
	if !n.LightPropagates() {
		return
	}
	n.Param = light
}

// SerializedLength возвращает размер узла в байтах для версии формата.
func SerializedLength(version uint8) (int, error) {
	if err := serialize.CheckVersion(version); err != nil {
		return 0, err
	}
	if version == 0 {
		return 1, nil
	}
	return 2, nil
}

// Serialize пишет узел в dest (SerializedLength байт).
func (n MapNode) Serialize(dest []byte, version uint8) error {
	if err := serialize.CheckVersion(version); err != nil {
		return err
	}
	dest[0] = uint8(n.Material)
	if version > 0 {
		dest[1] = n.Param
	}
	return nil
}

// Deserialize читает узел из source.
func (n *MapNode) Deserialize(source []byte, version uint8) error {
	if err := serialize.CheckVersion(version); err != nil {
		return err
	}
	n.Material = Material(source[0])
	switch version {
	case 0:
		n.Param = 0
	case 1:
		// Версия 1 не хранит освещение
		if n.LightPropagates() || n.LightSource() > 0 {
			n.Param = 0
		} else {
			n.Param = source[1]
		}
	default:
		n.Param = source[1]
	}
	return nil
}
