package emerge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/vec"
)

func TestQueueFIFOAndMerge(t *testing.T) {
	q := NewQueue()
	a, b := vec.New3(0, 0, 0), vec.New3(1, 0, 0)

	q.AddBlock(2, a, FlagOptional)
	q.AddBlock(3, b, 0)
	q.AddBlock(3, a, 0)
	q.AddBlock(0, b, 0)
	require.Equal(t, 2, q.Len())

	assert.Equal(t, 2, q.PeerItemCount(3))
	assert.Equal(t, 1, q.PeerItemCount(2))
	assert.Zero(t, q.PeerItemCount(0))

	r := q.Pop()
	require.NotNil(t, r)
	assert.Equal(t, a, r.Pos)
	assert.Equal(t, map[uint16]uint8{2: FlagOptional, 3: 0}, r.Peers)
	assert.False(t, r.Optional())

	r = q.Pop()
	require.NotNil(t, r)
	assert.Equal(t, b, r.Pos)
	assert.Nil(t, q.Pop())
	assert.Zero(t, q.Len())
}

func TestRequestOptional(t *testing.T) {
	q := NewQueue()
	p := vec.New3(5, -1, 2)

	q.AddBlock(0, p, 0)
	q.AddBlock(4, p, FlagOptional)
	r := q.Pop()
	require.NotNil(t, r)
	assert.True(t, r.Optional())

	// Без клиентов запрос необязателен
	q.AddBlock(0, p, 0)
	assert.True(t, q.Pop().Optional())

	// Последний запрос клиента заменяет флаги
	q.AddBlock(4, p, 0)
	q.AddBlock(4, p, FlagOptional)
	assert.True(t, q.Pop().Optional())
}

func TestRemovePeer(t *testing.T) {
	q := NewQueue()
	q.AddBlock(2, vec.New3(0, 0, 0), 0)
	q.AddBlock(2, vec.New3(0, 1, 0), 0)
	q.RemovePeer(2)
	assert.Equal(t, 2, q.Len())
	assert.Zero(t, q.PeerItemCount(2))
}

func TestQueueConcurrent(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for peer := uint16(2); peer < 10; peer++ {
		wg.Add(1)
		go func(peer uint16) {
			defer wg.Done()
			for i := int16(0); i < 100; i++ {
				q.AddBlock(peer, vec.New3(i, 0, 0), 0)
			}
		}(peer)
	}
	wg.Wait()
	assert.Equal(t, 100, q.Len())
	for peer := uint16(2); peer < 10; peer++ {
		assert.Equal(t, 100, q.PeerItemCount(peer))
	}
}
