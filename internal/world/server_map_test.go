package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/storage"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

func TestEmergeBlockGenerates(t *testing.T) {
	m := NewServerMap(storage.NewMemoryStore(), FlatGenerator{Height: 4})

	b, changed, invalidated, err := m.EmergeBlock(vec.V3S16{}, false)
	require.NoError(t, err)
	require.False(t, b.IsDummy())
	assert.True(t, changed.Has(vec.V3S16{}))
	assert.Contains(t, invalidated, vec.V3S16{})
	assert.False(t, b.IsUnderground())

	material := func(y int16) node.Material {
		n, ok := b.GetNode(vec.V3S16{X: 3, Y: y, Z: 3})
		require.True(t, ok)
		return n.Material
	}
	assert.Equal(t, node.Stone, material(0))
	assert.Equal(t, node.Mud, material(2))
	assert.Equal(t, node.Grass, material(4))
	assert.Equal(t, node.Air, material(5))

	// Повторный вызов отдаёт тот же блок без побочных эффектов
	b2, changed, invalidated, err := m.EmergeBlock(vec.V3S16{}, false)
	require.NoError(t, err)
	assert.Same(t, b, b2)
	assert.Empty(t, changed)
	assert.Empty(t, invalidated)

	deep, _, _, err := m.EmergeBlock(vec.V3S16{Y: -2}, false)
	require.NoError(t, err)
	assert.True(t, deep.IsUnderground())
}

func TestEmergeBlockWaterBelowSeaLevel(t *testing.T) {
	m := NewServerMap(storage.NewMemoryStore(), FlatGenerator{Height: -5})
	b, _, _, err := m.EmergeBlock(vec.V3S16{Y: -1}, false)
	require.NoError(t, err)

	n, _ := m.GetNode(vec.V3S16{Y: -5})
	assert.Equal(t, node.Mud, n.Material)
	n, _ = m.GetNode(vec.V3S16{Y: -2})
	assert.Equal(t, node.Water, n.Material)
	assert.False(t, b.IsDummy())
}

func TestEmergeBlockOnlyFromDisk(t *testing.T) {
	m := NewServerMap(storage.NewMemoryStore(), FlatGenerator{Height: 4})

	b, changed, _, err := m.EmergeBlock(vec.V3S16{X: 1}, true)
	require.NoError(t, err)
	assert.True(t, b.IsDummy())
	assert.Empty(t, changed)

	// Пустышка потом догенерируется на месте
	b2, changed, _, err := m.EmergeBlock(vec.V3S16{X: 1}, false)
	require.NoError(t, err)
	assert.Same(t, b, b2)
	assert.False(t, b2.IsDummy())
	assert.True(t, changed.Has(vec.V3S16{X: 1}))
}

func TestEmergeBlockOverLimit(t *testing.T) {
	m := NewServerMap(storage.NewMemoryStore(), FlatGenerator{})
	_, _, _, err := m.EmergeBlock(vec.V3S16{X: GenerationLimit/BlockSize + 1}, false)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.Equal(t, 0, m.SectorCount())
}

func TestSaveAndLoadFromDisk(t *testing.T) {
	store := storage.NewMemoryStore()
	m := NewServerMap(store, FlatGenerator{Height: 4})

	b, _, invalidated, err := m.EmergeBlock(vec.V3S16{}, false)
	require.NoError(t, err)
	m.UpdateLighting(invalidated)
	b.SetNode(vec.V3S16{X: 1, Y: 9, Z: 1}, node.New(node.Mese))

	n, err := m.Save(true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, b.Changed())
	assert.Equal(t, 1, store.BlockCount())

	// Ничего не изменилось: повторное сохранение пустое
	n, err = m.Save(true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Новая карта поверх того же хранилища читает блок с диска
	m2 := NewServerMap(store, FlatGenerator{Height: 100})
	loaded, changed, invalidated, err := m2.EmergeBlock(vec.V3S16{}, true)
	require.NoError(t, err)
	require.False(t, loaded.IsDummy())
	assert.Empty(t, changed)
	assert.Empty(t, invalidated)
	assert.False(t, loaded.Changed())

	got, _ := loaded.GetNode(vec.V3S16{X: 1, Y: 9, Z: 1})
	assert.Equal(t, node.Mese, got.Material)
	got, _ = loaded.GetNode(vec.V3S16{X: 1, Y: 10, Z: 1})
	assert.Equal(t, node.LightSun, got.GetLight())

	// Высоты берутся из метаданных сектора, а не из нового генератора
	h, err := m2.SurfaceHeight(3, 3)
	require.NoError(t, err)
	assert.Equal(t, int16(4), h)
}

func TestHeightmapGeneratorDeterministic(t *testing.T) {
	g1 := NewHeightmapGenerator(7)
	g2 := NewHeightmapGenerator(7)
	for x := int16(-40); x < 40; x += 13 {
		for z := int16(-40); z < 40; z += 11 {
			h := g1.GroundHeight(x, z)
			assert.Equal(t, h, g2.GroundHeight(x, z))
			assert.InDelta(t, g1.Base, float64(h), 2*g1.Amplitude)
		}
	}
}

func TestClientMapReceiveBlock(t *testing.T) {
	src := NewMapBlock(vec.V3S16{X: 2, Y: 0, Z: -1}, false)
	src.SetNode(vec.V3S16{X: 4, Y: 4, Z: 4}, node.New(node.Tree))
	data, err := src.Serialize(8)
	require.NoError(t, err)

	m := NewClientMap()
	b, relight, err := m.ReceiveBlock(src.Pos(), data, 8)
	require.NoError(t, err)
	assert.False(t, relight)
	n, ok := m.GetNode(vec.V3S16{X: 36, Y: 4, Z: -12})
	require.True(t, ok)
	assert.Equal(t, node.Tree, n.Material)

	// Повторная посылка перезаписывает тот же блок
	old, err := src.Serialize(1)
	require.NoError(t, err)
	b2, relight, err := m.ReceiveBlock(src.Pos(), old, 1)
	require.NoError(t, err)
	assert.Same(t, b, b2)
	assert.True(t, relight)
	assert.Equal(t, 1, m.BlockCount())
}
