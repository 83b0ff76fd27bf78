package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// testContainer отдаёт один и тот же узел для всех валидных позиций.
// exceptions инвертируют positionValid для отдельных позиций.
type testContainer struct {
	node          node.MapNode
	positionValid bool
	exceptions    map[vec.V3S16]bool
}

func newTestContainer() *testContainer {
	return &testContainer{node: node.AirNode(), positionValid: true, exceptions: map[vec.V3S16]bool{}}
}

func (c *testContainer) IsValidPosition(p vec.V3S16) bool {
	if c.exceptions[p] {
		return !c.positionValid
	}
	return c.positionValid
}

func (c *testContainer) GetNode(p vec.V3S16) (node.MapNode, bool) {
	if !c.IsValidPosition(p) {
		return node.MapNode{}, false
	}
	return c.node, true
}

func (c *testContainer) SetNode(p vec.V3S16, n node.MapNode) bool {
	return c.IsValidPosition(p)
}

func TestMapBlockBasics(t *testing.T) {
	b := NewMapBlock(vec.V3S16{X: 1, Y: 1, Z: 1}, false)
	assert.Equal(t, vec.V3S16{X: BlockSize, Y: BlockSize, Z: BlockSize}, b.PosRelative())

	assert.True(t, b.IsValidPosition(vec.V3S16{}))
	assert.False(t, b.IsValidPosition(vec.V3S16{X: -1}))
	assert.False(t, b.IsValidPosition(vec.V3S16{X: -1, Y: -142, Z: -2341}))
	assert.False(t, b.IsValidPosition(vec.V3S16{X: -124, Y: 142, Z: 2341}))
	assert.True(t, b.IsValidPosition(vec.V3S16{X: BlockSize - 1, Y: BlockSize - 1, Z: BlockSize - 1}))
	assert.False(t, b.IsValidPosition(vec.V3S16{X: BlockSize - 1, Y: BlockSize, Z: BlockSize - 1}))

	// Новый блок помечен изменённым
	assert.True(t, b.Changed())
	b.ResetChanged()
	assert.False(t, b.Changed())

	for z := int16(0); z < BlockSize; z++ {
		for y := int16(0); y < BlockSize; y++ {
			for x := int16(0); x < BlockSize; x++ {
				n, ok := b.GetNode(vec.V3S16{X: x, Y: y, Z: z})
				require.True(t, ok)
				require.Equal(t, node.Air, n.Material)
				require.Equal(t, uint8(0), n.GetLight())
			}
		}
	}
}

func TestMapBlockParentAccess(t *testing.T) {
	parent := newTestContainer()
	b := NewMapBlock(vec.V3S16{X: 1, Y: 1, Z: 1}, false)

	parent.positionValid = false
	parent.node = node.New(node.Leaves)

	// Внутри блока позиции остаются валидными
	assert.True(t, b.IsValidPositionParent(parent, vec.V3S16{}))
	assert.True(t, b.IsValidPositionParent(parent, vec.V3S16{X: BlockSize - 1, Y: BlockSize - 1, Z: BlockSize - 1}))
	n, ok := b.GetNodeParent(parent, vec.V3S16{Y: BlockSize - 1})
	require.True(t, ok)
	assert.Equal(t, node.Air, n.Material)

	// ...а снаружи нет
	assert.False(t, b.IsValidPositionParent(parent, vec.V3S16{X: -121, Y: 2341}))
	assert.False(t, b.IsValidPositionParent(parent, vec.V3S16{X: -1}))
	assert.False(t, b.IsValidPositionParent(parent, vec.V3S16{X: BlockSize - 1, Y: BlockSize - 1, Z: BlockSize}))
	_, ok = b.GetNodeParent(parent, vec.V3S16{Z: -1})
	assert.False(t, ok)

	parent.positionValid = true
	assert.True(t, b.IsValidPositionParent(parent, vec.V3S16{X: -121, Y: 2341}))
	assert.True(t, b.IsValidPositionParent(parent, vec.V3S16{X: -1}))
	n, ok = b.GetNodeParent(parent, vec.V3S16{Z: BlockSize})
	require.True(t, ok)
	assert.Equal(t, node.Leaves, n.Material)

	p := vec.V3S16{X: 1, Y: 2}
	require.True(t, b.SetNode(p, node.New(node.Tree)))
	got, _ := b.GetNode(p)
	assert.Equal(t, node.Tree, got.Material)
	assert.Equal(t, node.Tree, b.GetNodeMaterial(parent, p))
	assert.Equal(t, node.Leaves, b.GetNodeMaterial(parent, vec.V3S16{X: -1, Y: -1}))

	parent.positionValid = false
	assert.Equal(t, node.Ignore, b.GetNodeMaterial(parent, vec.V3S16{X: -1, Y: -1}))
}

func TestPropagateSunlightSkyBlock(t *testing.T) {
	parent := newTestContainer()
	b := NewMapBlock(vec.V3S16{X: 1, Y: 1, Z: 1}, false)
	p := vec.V3S16{X: 1, Y: 2}
	b.SetNode(p, node.New(node.Tree))

	b.SetIsUnderground(false)
	parent.node = node.AirNode()
	parent.node.SetLight(node.LightSun)
	sources := make(NodeSet)

	// Затеняющий узел делает нижний блок невалидным
	assert.False(t, b.PropagateSunlight(parent, sources))

	light := func(x, y, z int16) uint8 {
		n, ok := b.GetNode(vec.V3S16{X: x, Y: y, Z: z})
		require.True(t, ok)
		return n.GetLight()
	}
	assert.Equal(t, node.LightSun, light(1, 4, 0))
	assert.Equal(t, node.LightSun, light(1, 3, 0))
	assert.Equal(t, uint8(0), light(1, 2, 0))
	assert.Equal(t, uint8(0), light(1, 1, 0))
	assert.Equal(t, uint8(0), light(1, 0, 0))
	assert.Equal(t, node.LightSun, light(1, 2, 3))

	assert.Equal(t, node.LightSun, b.GetFaceLight(parent, p, vec.V3S16{Y: 1}))
	assert.Equal(t, uint8(0), b.GetFaceLight(parent, p, vec.V3S16{Y: -1}))
	assert.Equal(t, node.DiminishLight(node.DiminishLight(node.LightMax)), b.GetFaceLight(parent, p, vec.V3S16{Z: 1}))

	// В источники попадают абсолютные позиции освещённых узлов
	_, ok := sources[b.PosRelative().Add(vec.V3S16{X: 1, Y: 3})]
	assert.True(t, ok)
	_, ok = sources[b.PosRelative().Add(vec.V3S16{X: 1, Y: 1})]
	assert.False(t, ok)
}

func TestPropagateSunlightUnderground(t *testing.T) {
	parent := newTestContainer()
	b := NewMapBlock(vec.V3S16{X: 1, Y: 1, Z: 1}, false)
	b.SetNode(vec.V3S16{X: 1, Y: 2}, node.New(node.Tree))
	for i := range b.data {
		b.data[i].SetLight(node.LightSun)
	}

	b.SetIsUnderground(true)
	parent.node = node.AirNode()
	parent.node.SetLight(node.LightMax / 2)

	// Снизу тоже нет солнца, так что нижний блок валиден
	assert.True(t, b.PropagateSunlight(parent, make(NodeSet)))
	n, _ := b.GetNode(vec.V3S16{X: 1, Y: 2, Z: 3})
	assert.Equal(t, uint8(0), n.GetLight())
}

func TestPropagateSunlightBottomInvalid(t *testing.T) {
	parent := newTestContainer()
	b := NewMapBlock(vec.V3S16{X: 1, Y: 1, Z: 1}, false)
	b.SetIsUnderground(false)

	// Соседей нет, кроме верхнего слоя блока снизу
	parent.positionValid = false
	for x := int16(0); x < BlockSize; x++ {
		for z := int16(0); z < BlockSize; z++ {
			parent.exceptions[vec.V3S16{X: BlockSize + x, Y: BlockSize - 1, Z: BlockSize + z}] = true
		}
	}
	parent.node = node.AirNode()
	parent.node.SetLight(node.LightMax / 2)

	assert.False(t, b.PropagateSunlight(parent, make(NodeSet)))

	// Если снизу тоже солнце, состояние согласовано
	parent.node.SetLight(node.LightSun)
	sources := make(NodeSet)
	assert.True(t, b.PropagateSunlight(parent, sources))
	assert.Len(t, sources, NodeCount)
}

func TestPropagateSunlightNoBlockBelow(t *testing.T) {
	parent := newTestContainer()
	parent.positionValid = false
	b := NewMapBlock(vec.V3S16{}, false)

	assert.True(t, b.PropagateSunlight(parent, make(NodeSet)))
	n, _ := b.GetNode(vec.V3S16{X: 3, Y: 0, Z: 9})
	assert.Equal(t, node.LightSun, n.GetLight())
}

func TestDummyBlock(t *testing.T) {
	b := NewMapBlock(vec.V3S16{}, true)
	assert.True(t, b.IsDummy())
	assert.False(t, b.IsValidPosition(vec.V3S16{}))
	_, ok := b.GetNode(vec.V3S16{})
	assert.False(t, ok)

	_, err := b.Serialize(serialize.VersionHighest)
	assert.ErrorIs(t, err, serialize.ErrSerialization)

	b.Undummify()
	assert.False(t, b.IsDummy())
	n, ok := b.GetNode(vec.V3S16{})
	require.True(t, ok)
	assert.Equal(t, node.Air, n.Material)
}

func testBlockContents() *MapBlock {
	b := NewMapBlock(vec.V3S16{X: 2, Y: -1, Z: 3}, false)
	b.SetIsUnderground(true)
	materials := []node.Material{node.Stone, node.Grass, node.Water, node.Light, node.Tree, node.Air, node.Mud, node.Mese}
	for i := range b.data {
		m := materials[(i/7)%len(materials)]
		b.data[i] = node.MapNode{Material: m, Param: uint8(i % 11)}
	}
	return b
}

// expectedAfter - каким узел станет после записи и чтения в версии v.
func expectedAfter(n node.MapNode, v uint8) node.MapNode {
	switch {
	case v == 0:
		return node.MapNode{Material: n.Material}
	case v == 1 && (n.LightPropagates() || n.LightSource() > 0):
		return node.MapNode{Material: n.Material}
	}
	return n
}

func TestSerializeRoundTripAllVersions(t *testing.T) {
	src := testBlockContents()
	for v := serialize.VersionLowest; v <= serialize.VersionHighest; v++ {
		data, err := src.Serialize(v)
		require.NoError(t, err, "version %d", v)

		dst := NewMapBlock(src.Pos(), true)
		require.NoError(t, dst.Deserialize(data, v), "version %d", v)
		assert.True(t, dst.IsUnderground())
		for i := range src.data {
			require.Equal(t, expectedAfter(src.data[i], v), dst.data[i], "version %d node %d", v, i)
		}
	}
}

func TestSerializeCompressionBoundary(t *testing.T) {
	b := NewMapBlock(vec.V3S16{}, false)
	raw3, err := b.Serialize(3)
	require.NoError(t, err)
	rle4, err := b.Serialize(4)
	require.NoError(t, err)

	assert.Len(t, raw3, 1+NodeCount*2)
	// Однородный блок сжимается в разы
	assert.Less(t, len(rle4), 200)
	// Сразу после флага идёт длина несжатых материалов
	assert.Equal(t, uint32(NodeCount), serialize.ReadU32(rle4[1:5]))
}

func TestDeserializeErrors(t *testing.T) {
	b := NewMapBlock(vec.V3S16{}, false)
	data, err := b.Serialize(2)
	require.NoError(t, err)

	dst := NewMapBlock(vec.V3S16{}, true)
	err = dst.Deserialize(data, serialize.VersionInvalid)
	assert.ErrorIs(t, err, serialize.ErrVersionMismatch)

	err = dst.Deserialize(data[:len(data)/2], 2)
	assert.ErrorIs(t, err, serialize.ErrSerialization)
	assert.True(t, dst.IsDummy())

	data, err = b.Serialize(8)
	require.NoError(t, err)
	err = dst.Deserialize(data[:len(data)-3], 8)
	assert.ErrorIs(t, err, serialize.ErrSerialization)
}
