package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/vec"
)

// rawPutter даёт тестам записать испорченную запись в обход encodeBlock.
type rawPutter interface {
	put(key, value []byte) error
}

func openStores(t *testing.T) map[string]BlockStore {
	t.Helper()
	badgerStore, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	levelStore, err := NewLevelDBStore(t.TempDir())
	require.NoError(t, err)

	stores := map[string]BlockStore{
		"badger":  badgerStore,
		"leveldb": levelStore,
		"memory":  NewMemoryStore(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestBlockRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			p := vec.V3S16{X: -3, Y: 2, Z: 7}
			_, err := store.LoadBlock(p)
			require.ErrorIs(t, err, ErrNotFound)

			body := []byte{1, 2, 3, 4, 5}
			require.NoError(t, store.SaveBlocks([]BlockRecord{
				{Pos: p, Version: 8, Data: body},
				{Pos: vec.V3S16{}, Version: 3, Data: []byte{9}},
			}))

			rec, err := store.LoadBlock(p)
			require.NoError(t, err)
			assert.Equal(t, p, rec.Pos)
			assert.Equal(t, uint8(8), rec.Version)
			assert.Equal(t, body, rec.Data)

			rec, err = store.LoadBlock(vec.V3S16{})
			require.NoError(t, err)
			assert.Equal(t, uint8(3), rec.Version)
		})
	}
}

func TestChecksumMismatch(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			p := vec.V3S16{X: 1, Y: 1, Z: 1}
			raw := encodeBlock(BlockRecord{Pos: p, Version: 8, Data: []byte("abcdef")})
			raw[len(raw)-1] ^= 0xff

			if ms, ok := store.(*MemoryStore); ok {
				ms.blocks[p] = raw
			} else {
				require.NoError(t, store.(rawPutter).put(blockKey(p), raw))
			}

			_, err := store.LoadBlock(p)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestSectorMetaRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			heights := make([]int16, 16*16)
			for i := range heights {
				heights[i] = int16(i%37) - 10
			}
			meta := &SectorMeta{Version: 8, Pos: vec.V2S16{X: -1, Y: 4}, GroundHeights: heights}
			require.NoError(t, store.SaveSectorMeta(meta))

			got, err := store.LoadSectorMeta(meta.Pos)
			require.NoError(t, err)
			assert.Equal(t, meta.Pos, got.Pos)
			assert.Equal(t, heights, got.GroundHeights)

			_, err = store.LoadSectorMeta(vec.V2S16{X: 100, Y: 100})
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestWorldMetaRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.LoadWorldMeta()
			require.ErrorIs(t, err, ErrNotFound)

			meta := NewWorldMeta(42, 8)
			require.NoError(t, store.SaveWorldMeta(meta))

			got, err := store.LoadWorldMeta()
			require.NoError(t, err)
			assert.Equal(t, meta.ID, got.ID)
			assert.Equal(t, int64(42), got.Seed)
			assert.True(t, meta.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestClosedStore(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.LoadBlock(vec.V3S16{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("sqlite", t.TempDir())
	assert.Error(t, err)
}
