package storage

import (
	"sync"

	"github.com/annel0/voxel-core/internal/vec"
)

// MemoryStore реализует BlockStore в памяти.
// Используется в тестах и для миров без сохранения.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu      sync.RWMutex
	blocks  map[vec.V3S16][]byte
	sectors map[vec.V2S16][]byte
	world   []byte
}

// NewMemoryStore создает пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:  make(map[vec.V3S16][]byte),
		sectors: make(map[vec.V2S16][]byte),
	}
}

func (s *MemoryStore) LoadBlock(p vec.V3S16) (*BlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.blocks[p]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeBlock(p, raw)
}

func (s *MemoryStore) SaveBlocks(records []BlockRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.blocks[r.Pos] = encodeBlock(r)
	}
	return nil
}

// BlockCount возвращает количество сохранённых блоков.
func (s *MemoryStore) BlockCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

func (s *MemoryStore) LoadSectorMeta(p vec.V2S16) (*SectorMeta, error) {
	s.mu.RLock()
	raw, ok := s.sectors[p]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var meta SectorMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *MemoryStore) SaveSectorMeta(meta *SectorMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sectors[meta.Pos] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadWorldMeta() (*WorldMeta, error) {
	s.mu.RLock()
	raw := s.world
	s.mu.RUnlock()
	if raw == nil {
		return nil, ErrNotFound
	}
	var meta WorldMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *MemoryStore) SaveWorldMeta(meta *WorldMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.world = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
