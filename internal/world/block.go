package world

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// MapBlock - куб BlockSize³ узлов.
// Блок без массива узлов считается "пустышкой": известно, что данных пока нет.
// Блок не хранит ссылку на родительскую карту; соседние узлы читаются
// через переданный NodeContainer.
type MapBlock struct {
	pos  vec.V3S16
	data []node.MapNode

	isUnderground bool
	changed       bool
}

// NewMapBlock создаёт блок, заполненный воздухом, либо пустышку.
func NewMapBlock(pos vec.V3S16, dummy bool) *MapBlock {
	b := &MapBlock{pos: pos, changed: true}
	if !dummy {
		b.allocate()
	}
	return b
}

func (b *MapBlock) allocate() {
	b.data = make([]node.MapNode, NodeCount)
	for i := range b.data {
		b.data[i] = node.AirNode()
	}
}

// Pos возвращает позицию блока в блоках.
func (b *MapBlock) Pos() vec.V3S16 { return b.pos }

// PosRelative возвращает абсолютную позицию узла (0,0,0) блока.
func (b *MapBlock) PosRelative() vec.V3S16 { return vec.BlockOrigin(b.pos) }

// IsDummy сообщает, что у блока нет данных.
func (b *MapBlock) IsDummy() bool { return b.data == nil }

// Undummify выделяет массив узлов для пустышки.
func (b *MapBlock) Undummify() {
	if b.data == nil {
		b.allocate()
		b.changed = true
	}
}

func (b *MapBlock) IsUnderground() bool     { return b.isUnderground }
func (b *MapBlock) SetIsUnderground(u bool) { b.isUnderground = u; b.changed = true }

// Changed - блок изменён с момента последнего сохранения.
func (b *MapBlock) Changed() bool { return b.changed }
func (b *MapBlock) SetChanged()   { b.changed = true }
func (b *MapBlock) ResetChanged() { b.changed = false }

// IsValidPosition проверяет относительную позицию внутри блока.
func (b *MapBlock) IsValidPosition(p vec.V3S16) bool {
	if b.data == nil {
		return false
	}
	return p.X >= 0 && p.X < BlockSize &&
		p.Y >= 0 && p.Y < BlockSize &&
		p.Z >= 0 && p.Z < BlockSize
}

func index(p vec.V3S16) int {
	return int(p.Z)*BlockSize*BlockSize + int(p.Y)*BlockSize + int(p.X)
}

// GetNode возвращает узел по относительной позиции.
func (b *MapBlock) GetNode(p vec.V3S16) (node.MapNode, bool) {
	if !b.IsValidPosition(p) {
		return node.MapNode{}, false
	}
	return b.data[index(p)], true
}

// SetNode записывает узел по относительной позиции.
func (b *MapBlock) SetNode(p vec.V3S16, n node.MapNode) bool {
	if !b.IsValidPosition(p) {
		return false
	}
	b.data[index(p)] = n
	b.changed = true
	return true
}

// nodeRef возвращает указатель на узел; позиция должна быть валидной.
func (b *MapBlock) nodeRef(p vec.V3S16) *node.MapNode {
	return &b.data[index(p)]
}

func inBlock(p vec.V3S16) bool {
	return p.X >= 0 && p.X < BlockSize &&
		p.Y >= 0 && p.Y < BlockSize &&
		p.Z >= 0 && p.Z < BlockSize
}

// IsValidPositionParent проверяет относительную позицию, выходя к родителю
// за пределами блока.
func (b *MapBlock) IsValidPositionParent(parent NodeContainer, p vec.V3S16) bool {
	if b.IsValidPosition(p) {
		return true
	}
	if inBlock(p) {
		return false
	}
	return parent.IsValidPosition(b.PosRelative().Add(p))
}

// GetNodeParent читает узел по относительной позиции, которая может
// выходить за пределы блока.
func (b *MapBlock) GetNodeParent(parent NodeContainer, p vec.V3S16) (node.MapNode, bool) {
	if inBlock(p) {
		return b.GetNode(p)
	}
	return parent.GetNode(b.PosRelative().Add(p))
}

// SetNodeParent записывает узел по относительной позиции, которая может
// выходить за пределы блока.
func (b *MapBlock) SetNodeParent(parent NodeContainer, p vec.V3S16, n node.MapNode) bool {
	if inBlock(p) {
		return b.SetNode(p, n)
	}
	return parent.SetNode(b.PosRelative().Add(p), n)
}

// GetNodeMaterial возвращает материал узла или Ignore, если узла нет.
func (b *MapBlock) GetNodeMaterial(parent NodeContainer, p vec.V3S16) node.Material {
	n, ok := b.GetNodeParent(parent, p)
	if !ok {
		return node.Ignore
	}
	return n.Material
}

// GetFaceLight возвращает освещённость грани между p и p+faceDir.
// Берётся свет менее плотного из двух узлов; грани по +X, +Z и -Y
// затемняются сильнее, по -X и -Z слабее.
func (b *MapBlock) GetFaceLight(parent NodeContainer, p, faceDir vec.V3S16) uint8 {
	n, ok := b.GetNodeParent(parent, p)
	if !ok {
		return 0
	}
	n2, ok := b.GetNodeParent(parent, p.Add(faceDir))
	if !ok {
		return 0
	}
	var light uint8
	if n.Solidness() < n2.Solidness() {
		light = n.GetLight()
	} else {
		light = n2.GetLight()
	}
	switch {
	case faceDir.X == 1 || faceDir.Z == 1 || faceDir.Y == -1:
		light = node.DiminishLight(node.DiminishLight(light))
	case faceDir.X == -1 || faceDir.Z == -1:
		light = node.DiminishLight(light)
	}
	return light
}

// Serialize кодирует блок в формате указанной версии.
func (b *MapBlock) Serialize(version uint8) ([]byte, error) {
	if err := serialize.CheckVersion(version); err != nil {
		return nil, err
	}
	if b.data == nil {
		return nil, fmt.Errorf("%w: not writing dummy block %v", serialize.ErrSerialization, b.pos)
	}

	var w serialize.Writer
	w.U8(boolByte(b.isUnderground))

	if !serialize.Compressed(version) {
		l, err := node.SerializedLength(version)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, NodeCount*l)
		for i := range b.data {
			if err := b.data[i].Serialize(buf[i*l:], version); err != nil {
				return nil, err
			}
		}
		_, _ = w.Write(buf)
		return w.Bytes(), nil
	}

	// Материалы и параметры сжимаются раздельно
	materials := make([]byte, NodeCount)
	params := make([]byte, NodeCount)
	for i, n := range b.data {
		materials[i] = uint8(n.Material)
		params[i] = n.Param
	}
	if err := serialize.Compress(&w, materials, version); err != nil {
		return nil, err
	}
	if err := serialize.Compress(&w, params, version); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Deserialize загружает содержимое блока. Пустышка становится настоящим блоком.
func (b *MapBlock) Deserialize(data []byte, version uint8) error {
	if err := serialize.CheckVersion(version); err != nil {
		return err
	}
	r := serialize.NewReader(data)
	underground := r.U8() != 0
	if err := r.Err(); err != nil {
		return fmt.Errorf("block %v: %w", b.pos, err)
	}

	nodes := make([]node.MapNode, NodeCount)
	if !serialize.Compressed(version) {
		l, err := node.SerializedLength(version)
		if err != nil {
			return err
		}
		raw := r.Bytes(NodeCount * l)
		if err := r.Err(); err != nil {
			return fmt.Errorf("block %v: not enough input data: %w", b.pos, err)
		}
		for i := range nodes {
			if err := nodes[i].Deserialize(raw[i*l:], version); err != nil {
				return err
			}
		}
	} else {
		materials, err := serialize.Decompress(r, version)
		if err != nil {
			return fmt.Errorf("block %v materials: %w", b.pos, err)
		}
		if len(materials) != NodeCount {
			return fmt.Errorf("%w: block %v: invalid format", serialize.ErrSerialization, b.pos)
		}
		params, err := serialize.Decompress(r, version)
		if err != nil {
			return fmt.Errorf("block %v params: %w", b.pos, err)
		}
		if len(params) != NodeCount {
			return fmt.Errorf("%w: block %v: invalid format", serialize.ErrSerialization, b.pos)
		}
		for i := range nodes {
			nodes[i] = node.MapNode{Material: node.Material(materials[i]), Param: params[i]}
		}
	}

	b.data = nodes
	b.isUnderground = underground
	return nil
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
