package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxel-core/internal/vec"
)

// BadgerStore - хранилище карты на BadgerDB.
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) базу в dataPath/world.
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}

func (bs *BadgerStore) get(key []byte) ([]byte, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrClosed
	}

	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, nil
}

func (bs *BadgerStore) put(key, value []byte) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrClosed
	}

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadBlock читает блок по позиции.
func (bs *BadgerStore) LoadBlock(p vec.V3S16) (*BlockRecord, error) {
	raw, err := bs.get(blockKey(p))
	if err != nil {
		return nil, err
	}
	return decodeBlock(p, raw)
}

// SaveBlocks записывает блоки одной пачкой.
func (bs *BadgerStore) SaveBlocks(records []BlockRecord) error {
	if len(records) == 0 {
		return nil
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrClosed
	}

	wb := bs.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		if err := wb.Set(blockKey(r.Pos), encodeBlock(r)); err != nil {
			return fmt.Errorf("ошибка записи блока %v: %w", r.Pos, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadSectorMeta читает метаданные сектора.
func (bs *BadgerStore) LoadSectorMeta(p vec.V2S16) (*SectorMeta, error) {
	raw, err := bs.get(sectorKey(p))
	if err != nil {
		return nil, err
	}
	var meta SectorMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, fmt.Errorf("sector %v: %w", p, err)
	}
	return &meta, nil
}

// SaveSectorMeta записывает метаданные сектора.
func (bs *BadgerStore) SaveSectorMeta(meta *SectorMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	return bs.put(sectorKey(meta.Pos), data)
}

// LoadWorldMeta читает метаданные мира.
func (bs *BadgerStore) LoadWorldMeta() (*WorldMeta, error) {
	raw, err := bs.get([]byte(worldMetaKey))
	if err != nil {
		return nil, err
	}
	var meta WorldMeta
	if err := decodeMeta(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveWorldMeta записывает метаданные мира.
func (bs *BadgerStore) SaveWorldMeta(meta *WorldMeta) error {
	data, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	return bs.put([]byte(worldMetaKey), data)
}
