// Package world содержит модель карты: блоки, секторы, карты сервера и клиента,
// а также расчёт освещения.
package world

import (
	"errors"

	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// BlockSize - длина ребра блока в узлах.
const BlockSize = vec.BlockSize

// NodeCount - количество узлов в блоке.
const NodeCount = BlockSize * BlockSize * BlockSize

// GenerationLimit - предел генерации мира в узлах по каждой оси.
const GenerationLimit = 31000

var (
	// ErrInvalidPosition - позиция вне загруженной области или блок не существует.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrDummyBlock - блок известен, но данных в нём нет.
	ErrDummyBlock = errors.New("dummy block")
)

// NodeContainer - источник узлов по абсолютным координатам.
// Блок обращается к соседям только через этот интерфейс.
type NodeContainer interface {
	IsValidPosition(p vec.V3S16) bool
	GetNode(p vec.V3S16) (node.MapNode, bool)
	SetNode(p vec.V3S16, n node.MapNode) bool
}

// BlockPosOverLimit сообщает, лежит ли позиция блока за пределом генерации.
func BlockPosOverLimit(p vec.V3S16) bool {
	const lim = GenerationLimit / BlockSize
	return p.X < -lim || p.X > lim ||
		p.Y < -lim || p.Y > lim ||
		p.Z < -lim || p.Z > lim
}

// BlockSet - множество позиций блоков.
type BlockSet map[vec.V3S16]struct{}

// Add добавляет позицию.
func (s BlockSet) Add(p vec.V3S16) { s[p] = struct{}{} }

// Merge добавляет все позиции из other.
func (s BlockSet) Merge(other BlockSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// Has проверяет наличие позиции.
func (s BlockSet) Has(p vec.V3S16) bool {
	_, ok := s[p]
	return ok
}

// NodeSet - множество абсолютных позиций узлов.
type NodeSet map[vec.V3S16]struct{}

func (s NodeSet) Add(p vec.V3S16) { s[p] = struct{}{} }
