package world

import (
	"fmt"
	"sort"

	"github.com/annel0/voxel-core/internal/vec"
)

// Sector - вертикальная колонка блоков с общей позицией (X, Z).
// Сектор принадлежит карте и удаляется только целиком.
type Sector struct {
	pos    vec.V2S16
	blocks map[int16]*MapBlock

	// usageTimer - секунды с последнего обращения к сектору.
	usageTimer float32

	// groundHeights - высота поверхности для каждой колонки (только сервер).
	groundHeights []int16
	metaChanged   bool
}

// NewSector создаёт пустой сектор.
func NewSector(pos vec.V2S16) *Sector {
	return &Sector{pos: pos, blocks: make(map[int16]*MapBlock)}
}

// Pos возвращает позицию сектора.
func (s *Sector) Pos() vec.V2S16 { return s.pos }

// GetBlockNoCreate возвращает блок по координате Y или ErrInvalidPosition.
func (s *Sector) GetBlockNoCreate(y int16) (*MapBlock, error) {
	b, ok := s.blocks[y]
	if !ok {
		return nil, fmt.Errorf("%w: block y=%d in sector %v", ErrInvalidPosition, y, s.pos)
	}
	return b, nil
}

// CreateBlankBlock создаёт заполненный воздухом блок.
// Повторное создание существующего блока считается ошибкой программиста.
func (s *Sector) CreateBlankBlock(y int16) *MapBlock {
	if _, ok := s.blocks[y]; ok {
		panic(fmt.Sprintf("sector %v: block y=%d already exists", s.pos, y))
	}
	b := NewMapBlock(vec.V3S16{X: s.pos.X, Y: y, Z: s.pos.Y}, false)
	s.blocks[y] = b
	return b
}

// InsertBlock добавляет готовый блок; позиция блока должна лежать в секторе.
func (s *Sector) InsertBlock(b *MapBlock) {
	p := b.Pos()
	if p.X != s.pos.X || p.Z != s.pos.Y {
		panic(fmt.Sprintf("sector %v: inserting foreign block %v", s.pos, p))
	}
	if _, ok := s.blocks[p.Y]; ok {
		panic(fmt.Sprintf("sector %v: block y=%d already exists", s.pos, p.Y))
	}
	s.blocks[p.Y] = b
}

// RemoveBlock удаляет блок из сектора.
func (s *Sector) RemoveBlock(y int16) {
	delete(s.blocks, y)
}

// Blocks возвращает блоки сектора, отсортированные по Y.
func (s *Sector) Blocks() []*MapBlock {
	ys := make([]int, 0, len(s.blocks))
	for y := range s.blocks {
		ys = append(ys, int(y))
	}
	sort.Ints(ys)
	out := make([]*MapBlock, 0, len(ys))
	for _, y := range ys {
		out = append(out, s.blocks[int16(y)])
	}
	return out
}

// BlockCount возвращает количество блоков в секторе.
func (s *Sector) BlockCount() int { return len(s.blocks) }

// GroundHeight возвращает высоту поверхности в колонке (x, z) сектора.
func (s *Sector) GroundHeight(x, z int16) (int16, bool) {
	if s.groundHeights == nil {
		return 0, false
	}
	return s.groundHeights[int(z)*BlockSize+int(x)], true
}

// SetGroundHeights устанавливает таблицу высот (BlockSize² значений).
func (s *Sector) SetGroundHeights(h []int16) {
	if len(h) != BlockSize*BlockSize {
		panic(fmt.Sprintf("sector %v: ground height table has %d entries", s.pos, len(h)))
	}
	s.groundHeights = h
	s.metaChanged = true
}

// GroundHeights возвращает таблицу высот или nil.
func (s *Sector) GroundHeights() []int16 { return s.groundHeights }
