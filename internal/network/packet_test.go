package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-core/internal/serialize"
)

func TestPacketHelpers(t *testing.T) {
	const (
		protoID uint32 = 0x12345678
		peerID  uint16 = 123
		channel uint8  = 2
		seqnum  uint16 = 34352
	)
	data := []byte{100}
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10}

	p1 := makePacket(addr, data, protoID, peerID, channel)
	require.Len(t, p1.data, BaseHeaderSize+1)
	assert.Equal(t, protoID, serialize.ReadU32(p1.data[0:]))
	assert.Equal(t, peerID, serialize.ReadU16(p1.data[4:]))
	assert.Equal(t, channel, serialize.ReadU8(p1.data[6:]))
	assert.Equal(t, data[0], p1.data[7])
	assert.Same(t, addr, p1.address)

	p2 := makeReliablePacket(data, seqnum)
	require.Len(t, p2, 3+len(data))
	assert.Equal(t, TypeReliable, p2[0])
	assert.Equal(t, seqnum, serialize.ReadU16(p2[1:]))
	assert.Equal(t, data[0], p2[3])
}

func TestSeqnumHigher(t *testing.T) {
	assert.True(t, seqnumHigher(2, 1))
	assert.False(t, seqnumHigher(1, 2))
	assert.False(t, seqnumHigher(5, 5))
	// Переполнение
	assert.True(t, seqnumHigher(3, 65530))
	assert.False(t, seqnumHigher(65530, 3))
	assert.True(t, seqnumHigher(0x7fff, 0))
	assert.False(t, seqnumHigher(0x8000, 0))
}

func TestAutoSplitThreshold(t *testing.T) {
	chunkSizeMax := MaxPacketSize - BaseHeaderSize - ReliableHeaderSize
	threshold := chunkSizeMax - 1

	var splitSeqnum uint16
	for _, size := range []int{threshold - 1, threshold} {
		packets := makeAutoSplitPacket(make([]byte, size), chunkSizeMax, &splitSeqnum)
		require.Len(t, packets, 1, "size %d", size)
		assert.Equal(t, TypeOriginal, packets[0][0])
		assert.Len(t, packets[0], size+1)
	}
	assert.Zero(t, splitSeqnum)

	packets := makeAutoSplitPacket(make([]byte, threshold+1), chunkSizeMax, &splitSeqnum)
	require.Len(t, packets, 2)
	assert.Equal(t, uint16(1), splitSeqnum)
	for i, p := range packets {
		assert.Equal(t, TypeSplit, p[0])
		assert.Equal(t, uint16(0), serialize.ReadU16(p[1:]))
		assert.Equal(t, uint16(i), serialize.ReadU16(p[3:]))
		assert.Equal(t, uint16(2), serialize.ReadU16(p[5:]))
		assert.LessOrEqual(t, BaseHeaderSize+ReliableHeaderSize+len(p), MaxPacketSize)
	}
}

func TestSplitReassemblyOutOfOrder(t *testing.T) {
	data := make([]byte, 1100)
	for i := range data {
		data[i] = byte(i / 4)
	}
	chunks := makeSplitPacket(data, 200, 7)
	require.Len(t, chunks, 6)

	ch := newChannel()
	for i := len(chunks) - 1; i >= 0; i-- {
		c := chunks[i]
		out, err := ch.addSplitChunk(serialize.ReadU16(c[1:]), serialize.ReadU16(c[3:]), serialize.ReadU16(c[5:]), c[SplitHeaderSize:])
		require.NoError(t, err)
		if i > 0 {
			assert.Nil(t, out)
			// повтор не ломает сборку
			_, err = ch.addSplitChunk(7, uint16(i), 6, c[SplitHeaderSize:])
			require.NoError(t, err)
			continue
		}
		assert.Equal(t, data, out)
	}
	assert.Empty(t, ch.incomingSplits)
}

func TestSplitInvalidChunks(t *testing.T) {
	ch := newChannel()
	_, err := ch.addSplitChunk(1, 0, 0, []byte{1})
	assert.ErrorIs(t, err, ErrInvalidIncomingData)
	_, err = ch.addSplitChunk(1, 3, 3, []byte{1})
	assert.ErrorIs(t, err, ErrInvalidIncomingData)

	_, err = ch.addSplitChunk(2, 0, 3, []byte{1})
	require.NoError(t, err)
	_, err = ch.addSplitChunk(2, 1, 4, []byte{1})
	assert.ErrorIs(t, err, ErrInvalidIncomingData)
}

func TestSplitTimeout(t *testing.T) {
	ch := newChannel()
	_, err := ch.addSplitChunk(1, 0, 2, []byte{1})
	require.NoError(t, err)

	assert.Zero(t, ch.removeTimedOutSplits(10, 30))
	assert.Equal(t, 1, ch.removeTimedOutSplits(25, 30))
	assert.Empty(t, ch.incomingSplits)
}
