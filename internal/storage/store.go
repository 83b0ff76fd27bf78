// Package storage хранит блоки и метаданные секторов на диске.
//
// Хранилище ничего не знает о модели карты: блок приходит уже
// сериализованным вместе с версией формата.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/annel0/voxel-core/internal/vec"
)

var (
	// ErrNotFound - записи нет в хранилище.
	ErrNotFound = errors.New("storage: not found")
	// ErrCorrupt - запись не прошла проверку контрольной суммы или не разбирается.
	ErrCorrupt = errors.New("storage: corrupt record")
	// ErrClosed - хранилище уже закрыто.
	ErrClosed = errors.New("storage: closed")
)

// BlockRecord - сериализованный блок.
type BlockRecord struct {
	Pos     vec.V3S16
	Version uint8
	Data    []byte
}

// SectorMeta - метаданные сектора: таблица высот поверхности.
type SectorMeta struct {
	Version       uint8     `cbor:"1,keyasint"`
	Pos           vec.V2S16 `cbor:"2,keyasint"`
	GroundHeights []int16   `cbor:"3,keyasint"`
}

// WorldMeta - метаданные мира.
type WorldMeta struct {
	ID         uuid.UUID `cbor:"1,keyasint"`
	Seed       int64     `cbor:"2,keyasint"`
	CreatedAt  time.Time `cbor:"3,keyasint"`
	SerVersion uint8     `cbor:"4,keyasint"`
}

// NewWorldMeta создаёт метаданные нового мира.
func NewWorldMeta(seed int64, serVersion uint8) *WorldMeta {
	return &WorldMeta{
		ID:         uuid.New(),
		Seed:       seed,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		SerVersion: serVersion,
	}
}

// BlockStore - постоянное хранилище блоков и секторов.
// Реализации безопасны для конкурентного использования.
type BlockStore interface {
	LoadBlock(p vec.V3S16) (*BlockRecord, error)
	SaveBlocks(records []BlockRecord) error
	LoadSectorMeta(p vec.V2S16) (*SectorMeta, error)
	SaveSectorMeta(meta *SectorMeta) error
	LoadWorldMeta() (*WorldMeta, error)
	SaveWorldMeta(meta *WorldMeta) error
	Close() error
}

const worldMetaKey = "meta:world"

func blockKey(p vec.V3S16) []byte {
	return []byte(fmt.Sprintf("block:%d:%d:%d", p.X, p.Y, p.Z))
}

func sectorKey(p vec.V2S16) []byte {
	return []byte(fmt.Sprintf("sector:%d:%d", p.X, p.Y))
}

// blockHeaderSize: версия (1) и xxhash тела (8).
const blockHeaderSize = 1 + 8

// encodeBlock упаковывает запись как [u8 version][u64 xxhash][body].
func encodeBlock(r BlockRecord) []byte {
	buf := make([]byte, blockHeaderSize+len(r.Data))
	buf[0] = r.Version
	binary.BigEndian.PutUint64(buf[1:9], xxhash.Sum64(r.Data))
	copy(buf[blockHeaderSize:], r.Data)
	return buf
}

func decodeBlock(p vec.V3S16, raw []byte) (*BlockRecord, error) {
	if len(raw) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block %v: %d bytes", ErrCorrupt, p, len(raw))
	}
	body := raw[blockHeaderSize:]
	if sum := binary.BigEndian.Uint64(raw[1:9]); sum != xxhash.Sum64(body) {
		return nil, fmt.Errorf("%w: block %v: checksum mismatch", ErrCorrupt, p)
	}
	data := make([]byte, len(body))
	copy(data, body)
	return &BlockRecord{Pos: p, Version: raw[0], Data: data}, nil
}

func encodeMeta(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return data, nil
}

func decodeMeta(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// Open открывает хранилище выбранного типа в каталоге dir.
func Open(backend, dir string) (BlockStore, error) {
	switch backend {
	case "", "badger":
		return NewBadgerStore(dir)
	case "leveldb":
		return NewLevelDBStore(dir)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}
