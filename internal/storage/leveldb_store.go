package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"

	"github.com/annel0/voxel-core/internal/vec"
)

// LevelDBStore - альтернативное хранилище карты на LevelDB.
// Ключи совпадают с BadgerStore.
type LevelDBStore struct {
	db      *leveldb.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewLevelDBStore открывает (или создаёт) базу в dataPath/db.
func NewLevelDBStore(dataPath string) (*LevelDBStore, error) {
	// Тела блоков уже сжаты, повторное сжатие только тратит CPU
	db, err := leveldb.OpenFile(filepath.Join(dataPath, "db"), &opt.Options{
		Compression: opt.NoCompression,
	})
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть LevelDB: %w", err)
	}
	return &LevelDBStore{db: db, isReady: true}, nil
}

// Close закрывает базу.
func (ls *LevelDBStore) Close() error {
	ls.mutex.Lock()
	defer ls.mutex.Unlock()
	if !ls.isReady {
		return nil
	}
	ls.isReady = false
	return ls.db.Close()
}

func (ls *LevelDBStore) get(key []byte) ([]byte, error) {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	if !ls.isReady {
		return nil, ErrClosed
	}
	data, err := ls.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("ошибка чтения из LevelDB: %w", err)
	}
	return data, nil
}

func (ls *LevelDBStore) put(key, value []byte) error {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	if !ls.isReady {
		return ErrClosed
	}
	if err := ls.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("ошибка сохранения в LevelDB: %w", err)
	}
	return nil
}

func (ls *LevelDBStore) LoadBlock(p vec.V3S16) (*BlockRecord, error) {
	raw, err := ls.get(blockKey(p))
	if err != nil {
		return nil, err
	}
	return decodeBlock(p, raw)
}

func (ls *LevelDBStore) SaveBlocks(records []BlockRecord) error {
	if len(records) == 0 {
		return nil
	}
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	if !ls.isReady {
		return ErrClosed
	}
	batch := new(leveldb.Batch)
	for _, r := range records {
		batch.Put(blockKey(r.Pos), encodeBlock(r))
	}
	if err := ls.db.Write(batch, nil); err != nil {
		return fmt.Errorf("ошибка сохранения в LevelDB: %w", err)
	}
	return nil
}

func (ls *LevelDBStore) LoadSectorMeta(p vec.V2S16) (*SectorMeta, error) {
	raw, err := ls.get(sectorKey(p))
	if err != nil {
		return nil, err
	}
	var meta SectorMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, fmt.Errorf("sector %v: %w", p, err)
	}
	return &meta, nil
}

func (ls *LevelDBStore) SaveSectorMeta(meta *SectorMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	return ls.put(sectorKey(meta.Pos), data)
}

func (ls *LevelDBStore) LoadWorldMeta() (*WorldMeta, error) {
	raw, err := ls.get([]byte(worldMetaKey))
	if err != nil {
		return nil, err
	}
	var meta WorldMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (ls *LevelDBStore) SaveWorldMeta(meta *WorldMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	return ls.put([]byte(worldMetaKey), data)
}
