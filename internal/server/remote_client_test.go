package server

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/config"
	"github.com/annel0/voxel-core/internal/emerge"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world"
)

// fakeBlocks отдаёт загруженный блок для любой позиции из present
// или для любой позиции вообще, если all.
type fakeBlocks struct {
	all     bool
	present map[vec.V3S16]*world.MapBlock
}

func (f *fakeBlocks) GetBlockNoCreate(p vec.V3S16) (*world.MapBlock, error) {
	if b, ok := f.present[p]; ok {
		return b, nil
	}
	if !f.all {
		return nil, world.ErrInvalidPosition
	}
	if f.present == nil {
		f.present = make(map[vec.V3S16]*world.MapBlock)
	}
	b := world.NewMapBlock(p, false)
	f.present[p] = b
	return b, nil
}

type request struct {
	peer  uint16
	pos   vec.V3S16
	flags uint8
}

type fakeQueue struct {
	requests []request
}

func (q *fakeQueue) PeerItemCount(peerID uint16) int {
	n := 0
	for _, r := range q.requests {
		if r.peer == peerID {
			n++
		}
	}
	return n
}

func (q *fakeQueue) AddBlock(peerID uint16, pos vec.V3S16, flags uint8) {
	q.requests = append(q.requests, request{peerID, pos, flags})
}

func testSched() *config.SchedulingConfig {
	s := config.Default().Scheduling
	s.MaxBlockSendsPerClient = 4
	return &s
}

func TestGetNextBlocksQueuesOneEmerge(t *testing.T) {
	c := NewRemoteClient(2, testSched())
	q := &fakeQueue{}
	triggered := 0

	got := c.GetNextBlocks(0.1, vec.V3F{}, &fakeBlocks{}, q, func() { triggered++ })
	assert.Empty(t, got)
	require.Len(t, q.requests, 1)
	assert.Equal(t, request{2, vec.V3S16{}, 0}, q.requests[0])
	assert.Equal(t, 1, triggered)

	// Пока запрос в очереди, новых не добавляется
	c.GetNextBlocks(0.1, vec.V3F{}, &fakeBlocks{}, q, nil)
	assert.Len(t, q.requests, 1)
}

func TestGetNextBlocksRespectsCap(t *testing.T) {
	c := NewRemoteClient(2, testSched())
	blocks := &fakeBlocks{all: true}
	q := &fakeQueue{}

	first := c.GetNextBlocks(0.1, vec.V3F{}, blocks, q, nil)
	require.Len(t, first, 4)
	assert.Equal(t, vec.V3S16{}, first[0].Pos)
	assert.Equal(t, float32(0), first[0].Priority)
	assert.Empty(t, q.requests)

	seen := make(map[vec.V3S16]bool)
	for _, bt := range first {
		assert.False(t, seen[bt.Pos], "duplicate %v", bt.Pos)
		seen[bt.Pos] = true
		assert.True(t, c.SentBlock(bt.Pos))
	}
	assert.False(t, c.SentBlock(first[0].Pos))

	// Все слоты заняты
	assert.Empty(t, c.GetNextBlocks(0.1, vec.V3F{}, blocks, q, nil))

	for _, bt := range first {
		assert.True(t, c.GotBlock(bt.Pos))
	}
	assert.Equal(t, 4, c.SentCount())
	assert.Zero(t, c.SendingCount())

	second := c.GetNextBlocks(0.1, vec.V3F{}, blocks, q, nil)
	require.NotEmpty(t, second)
	for _, bt := range second {
		assert.False(t, seen[bt.Pos], "%v sent twice", bt.Pos)
		assert.Equal(t, float32(1), bt.Priority)
	}
}

func TestGetNextBlocksLimitedWhileBuilding(t *testing.T) {
	sched := testSched()
	sched.DisableLimitsMaxD = 0
	c := NewRemoteClient(2, sched)
	blocks := &fakeBlocks{all: true}

	// Курсор на d=1, где действует ограничение
	c.GotBlock(vec.V3S16{})
	c.ResetTimeFromBuilding()
	got := c.GetNextBlocks(0.1, vec.V3F{}, blocks, &fakeQueue{}, nil)
	assert.Len(t, got, sched.LimitedMaxBlockSends)
}

func TestGetNextBlocksOptionalBeyondGenerateDistance(t *testing.T) {
	sched := testSched()
	sched.MaxBlockGenerateDistance = 0
	c := NewRemoteClient(2, sched)
	q := &fakeQueue{}

	c.GotBlock(vec.V3S16{})
	c.GetNextBlocks(0.1, vec.V3F{}, &fakeBlocks{}, q, nil)
	require.Len(t, q.requests, 1)
	assert.Equal(t, emerge.FlagOptional, q.requests[0].flags)
}

func TestGetNextBlocksSkipsDummyOutsideGenerateDistance(t *testing.T) {
	sched := testSched()
	sched.MaxBlockGenerateDistance = 0
	sched.MaxBlockSendDistance = 1
	c := NewRemoteClient(2, sched)
	q := &fakeQueue{}

	blocks := &fakeBlocks{present: make(map[vec.V3S16]*world.MapBlock)}
	for _, p := range vec.FacePositions(1) {
		blocks.present[p] = world.NewMapBlock(p, true)
	}
	c.GotBlock(vec.V3S16{})
	assert.Empty(t, c.GetNextBlocks(0.1, vec.V3F{}, blocks, q, nil))
	assert.Empty(t, q.requests)
}

func TestSetBlocksNotSent(t *testing.T) {
	c := NewRemoteClient(2, testSched())
	blocks := &fakeBlocks{all: true}

	for _, bt := range c.GetNextBlocks(0.1, vec.V3F{}, blocks, &fakeQueue{}, nil) {
		c.SentBlock(bt.Pos)
		c.GotBlock(bt.Pos)
	}
	require.True(t, c.WasSent(vec.V3S16{}))
	c.GetNextBlocks(0.1, vec.V3F{}, blocks, &fakeQueue{}, nil)
	require.NotZero(t, c.NearestUnsentD())

	set := make(world.BlockSet)
	set.Add(vec.V3S16{})
	c.SetBlocksNotSent(set)
	assert.False(t, c.WasSent(vec.V3S16{}))
	assert.Zero(t, c.NearestUnsentD())

	got := c.GetNextBlocks(0.1, vec.V3F{}, blocks, &fakeQueue{}, nil)
	require.NotEmpty(t, got)
	assert.Equal(t, vec.V3S16{}, got[0].Pos)

	c.nearestUnsentD = 2
	c.SetBlocksNotSent(make(world.BlockSet))
	assert.Equal(t, int16(2), c.NearestUnsentD())

	var b bytes.Buffer
	c.PrintInfo(&b)
	assert.Contains(t, b.String(), "RemoteClient 2:")
}
