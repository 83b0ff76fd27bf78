package world

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/storage"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// ServerMap - авторитетная карта сервера: умеет генерировать блоки,
// загружать и сохранять их через storage.BlockStore.
type ServerMap struct {
	*Map

	store storage.BlockStore
	gen   Generator
	log   *logging.Logger

	// saveVersion - версия формата, в которой блоки пишутся на диск.
	saveVersion uint8
}

// NewServerMap создаёт карту поверх хранилища и генератора.
func NewServerMap(store storage.BlockStore, gen Generator) *ServerMap {
	return &ServerMap{
		Map:         NewMap(),
		store:       store,
		gen:         gen,
		log:         logging.GetMapLogger(),
		saveVersion: serialize.VersionHighest,
	}
}

// Store возвращает хранилище карты.
func (m *ServerMap) Store() storage.BlockStore { return m.store }

// Generator возвращает генератор рельефа.
func (m *ServerMap) Generator() Generator { return m.gen }

func sectorOverLimit(p vec.V2S16) bool {
	const lim = GenerationLimit / BlockSize
	return p.X < -lim || p.X > lim || p.Y < -lim || p.Y > lim
}

// LoadSectorMeta создаёт сектор по метаданным из хранилища.
// Возвращает storage.ErrNotFound, если сектор не сохранялся.
func (m *ServerMap) LoadSectorMeta(p vec.V2S16) (*Sector, error) {
	meta, err := m.store.LoadSectorMeta(p)
	if err != nil {
		return nil, err
	}
	if len(meta.GroundHeights) != BlockSize*BlockSize {
		return nil, fmt.Errorf("%w: sector %v: %d ground heights", storage.ErrCorrupt, p, len(meta.GroundHeights))
	}
	s := NewSector(p)
	s.groundHeights = meta.GroundHeights
	m.AddSector(s)
	return s, nil
}

// EmergeSector возвращает сектор, загружая его метаданные с диска
// или генерируя таблицу высот.
func (m *ServerMap) EmergeSector(p vec.V2S16) (*Sector, error) {
	if s, err := m.GetSectorNoGenerate(p); err == nil {
		return s, nil
	}
	if sectorOverLimit(p) {
		return nil, fmt.Errorf("%w: sector %v over generation limit", ErrInvalidPosition, p)
	}

	s, err := m.LoadSectorMeta(p)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("sector %v meta unreadable, regenerating: %v", p, err)
	}

	s = NewSector(p)
	heights := make([]int16, BlockSize*BlockSize)
	for z := int16(0); z < BlockSize; z++ {
		for x := int16(0); x < BlockSize; x++ {
			heights[int(z)*BlockSize+int(x)] = m.gen.GroundHeight(p.X*BlockSize+x, p.Y*BlockSize+z)
		}
	}
	s.SetGroundHeights(heights)
	m.AddSector(s)
	return s, nil
}

// EmergeBlock возвращает блок p: из памяти, с диска или сгенерированный.
//
// changed - блоки, чьи данные изменились и должны быть разосланы;
// lightingInvalidated - блоки, освещение которых нужно пересчитать.
// При onlyFromDisk отсутствующий на диске блок возвращается пустышкой.
func (m *ServerMap) EmergeBlock(p vec.V3S16, onlyFromDisk bool) (*MapBlock, BlockSet, map[vec.V3S16]*MapBlock, error) {
	changed := make(BlockSet)
	lightingInvalidated := make(map[vec.V3S16]*MapBlock)

	if BlockPosOverLimit(p) {
		return nil, changed, lightingInvalidated, fmt.Errorf("%w: block %v over generation limit", ErrInvalidPosition, p)
	}

	sector, err := m.EmergeSector(p.XZ())
	if err != nil {
		return nil, changed, lightingInvalidated, err
	}

	block, _ := sector.GetBlockNoCreate(p.Y)
	if block != nil && !block.IsDummy() {
		return block, changed, lightingInvalidated, nil
	}

	if loaded, err := m.loadBlock(sector, block, p); err == nil {
		if loaded.lightingStale {
			lightingInvalidated[p] = loaded.block
		}
		return loaded.block, changed, lightingInvalidated, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn("block %v unreadable: %v", p, err)
	}

	if onlyFromDisk {
		if block == nil {
			block = NewMapBlock(p, true)
			sector.InsertBlock(block)
		}
		return block, changed, lightingInvalidated, nil
	}

	if block == nil {
		block = NewMapBlock(p, false)
		sector.InsertBlock(block)
	} else {
		block.Undummify()
	}
	m.generateBlock(sector, block)

	changed.Add(p)
	lightingInvalidated[p] = block
	// Соседи по вертикали получают или теряют солнечный свет
	for _, dy := range []int16{-1, 1} {
		np := p.Add(vec.V3S16{Y: dy})
		if nb := m.blockAt(np); nb != nil && !nb.IsDummy() {
			lightingInvalidated[np] = nb
		}
	}
	return block, changed, lightingInvalidated, nil
}

type loadedBlock struct {
	block         *MapBlock
	lightingStale bool
}

// loadBlock читает блок с диска в существующую пустышку или новый блок.
func (m *ServerMap) loadBlock(sector *Sector, dummy *MapBlock, p vec.V3S16) (loadedBlock, error) {
	rec, err := m.store.LoadBlock(p)
	if err != nil {
		return loadedBlock{}, err
	}
	b := dummy
	if b == nil {
		b = NewMapBlock(p, true)
	}
	if err := b.Deserialize(rec.Data, rec.Version); err != nil {
		return loadedBlock{}, err
	}
	b.ResetChanged()
	if dummy == nil {
		sector.InsertBlock(b)
	}
	// В версиях 0 и 1 освещение не хранилось
	return loadedBlock{block: b, lightingStale: rec.Version < 2}, nil
}

// generateBlock заполняет блок по таблице высот сектора.
func (m *ServerMap) generateBlock(sector *Sector, b *MapBlock) {
	rel := b.PosRelative()
	minSurface := int16(32767)
	for z := int16(0); z < BlockSize; z++ {
		for x := int16(0); x < BlockSize; x++ {
			h, _ := sector.GroundHeight(x, z)
			if h < minSurface {
				minSurface = h
			}
			for y := int16(0); y < BlockSize; y++ {
				b.data[index(vec.V3S16{X: x, Y: y, Z: z})] = generatedNode(rel.Y+y, h)
			}
		}
	}
	b.isUnderground = rel.Y+BlockSize-1 < minSurface
	b.changed = true
}

func generatedNode(y, surface int16) node.MapNode {
	switch {
	case y < surface-3:
		return node.New(node.Stone)
	case y < surface:
		return node.New(node.Mud)
	case y == surface:
		if surface >= 0 {
			return node.New(node.Grass)
		}
		return node.New(node.Mud)
	case y <= 0:
		return node.New(node.Water)
	}
	return node.AirNode()
}

// Save записывает изменённые блоки и метаданные секторов.
// Возвращает число записанных блоков.
func (m *ServerMap) Save(onlyChanged bool) (int, error) {
	var pending []*MapBlock
	for _, s := range m.sectors {
		if s.groundHeights != nil && (s.metaChanged || !onlyChanged) {
			meta := &storage.SectorMeta{Version: m.saveVersion, Pos: s.pos, GroundHeights: s.groundHeights}
			if err := m.store.SaveSectorMeta(meta); err != nil {
				return 0, fmt.Errorf("save sector %v: %w", s.pos, err)
			}
			s.metaChanged = false
		}
		for _, b := range s.blocks {
			if b.IsDummy() || (onlyChanged && !b.Changed()) {
				continue
			}
			pending = append(pending, b)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	out := make([]storage.BlockRecord, 0, len(pending))
	for _, b := range pending {
		data, err := b.Serialize(m.saveVersion)
		if err != nil {
			return 0, fmt.Errorf("save block %v: %w", b.Pos(), err)
		}
		out = append(out, storage.BlockRecord{Pos: b.Pos(), Version: m.saveVersion, Data: data})
	}
	if err := m.store.SaveBlocks(out); err != nil {
		return 0, err
	}
	for _, b := range pending {
		b.ResetChanged()
	}
	m.log.Debug("saved %d blocks", len(out))
	return len(out), nil
}

// SurfaceHeight возвращает высоту поверхности в колонке (x, z),
// создавая сектор при необходимости.
func (m *ServerMap) SurfaceHeight(x, z int16) (int16, error) {
	sp := vec.V2S16{X: floorDivBlock(x), Y: floorDivBlock(z)}
	s, err := m.EmergeSector(sp)
	if err != nil {
		return 0, err
	}
	h, _ := s.GroundHeight(x-sp.X*BlockSize, z-sp.Y*BlockSize)
	return h, nil
}

func floorDivBlock(c int16) int16 {
	return vec.NodeToBlock(vec.V3S16{X: c}).X
}
