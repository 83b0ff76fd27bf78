package network

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testProtocolID uint32 = 0xad26846a

type testHandler struct {
	count       int
	lastID      uint16
	lastTimeout bool
}

func (h *testHandler) PeerAdded(peerID uint16) {
	h.lastID = peerID
	h.count++
}

func (h *testHandler) DeletingPeer(peerID uint16, timeout bool) {
	h.lastID = peerID
	h.lastTimeout = timeout
	h.count--
}

func (c *Connection) setNextOutgoingSeqnum(peerID uint16, channel uint8, seqnum uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[peerID].channels[channel].nextOutgoingSeqnum = seqnum
}

func (c *Connection) nextOutgoingSeqnum(peerID uint16, channel uint8) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[peerID].channels[channel].nextOutgoingSeqnum
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ProtocolID = testProtocolID
	opts.ReceiveTimeout = 20 * time.Millisecond
	return opts
}

// receiveWithin читает до первого сообщения, пропуская пустые чтения.
func receiveWithin(t *testing.T, c *Connection, timeout time.Duration) (uint16, []byte) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		peerID, data, err := c.Receive()
		if errors.Is(err, ErrNoIncomingData) {
			continue
		}
		require.NoError(t, err)
		return peerID, data
	}
	t.Fatalf("no data within %v", timeout)
	return 0, nil
}

// drain обрабатывает всё, что лежит в сокете, не ожидая сообщений.
func drain(c *Connection) {
	for {
		_, _, err := c.Receive()
		if errors.Is(err, ErrNoIncomingData) || errors.Is(err, ErrConnectionClosed) {
			return
		}
	}
}

type connectedPair struct {
	server, client         *Connection
	handServer, handClient *testHandler
}

func connectPair(t *testing.T) *connectedPair {
	t.Helper()
	p := &connectedPair{handServer: &testHandler{}, handClient: &testHandler{}}
	p.server = NewConnection(testOptions(), p.handServer)
	require.NoError(t, p.server.Serve(0))
	t.Cleanup(func() { _ = p.server.Close() })

	p.client = NewConnection(testOptions(), p.handClient)
	t.Cleanup(func() { _ = p.client.Close() })

	addr := fmt.Sprintf("127.0.0.1:%d", p.server.LocalAddr().Port)
	require.NoError(t, p.client.Connect(addr))

	deadline := time.Now().Add(2 * time.Second)
	for !p.client.Connected() {
		require.True(t, time.Now().Before(deadline), "client did not connect")
		drain(p.server)
		drain(p.client)
	}
	drain(p.server)
	return p
}

func TestConnection(t *testing.T) {
	defer goleak.VerifyNone(t)

	handServer := &testHandler{}
	handClient := &testHandler{}

	server := NewConnection(testOptions(), handServer)
	require.NoError(t, server.Serve(0))
	defer server.Close()
	client := NewConnection(testOptions(), handClient)
	defer client.Close()

	assert.Equal(t, 0, handServer.count)
	assert.Equal(t, 0, handClient.count)

	addr := fmt.Sprintf("127.0.0.1:%d", server.LocalAddr().Port)
	require.NoError(t, client.Connect(addr))

	// Клиент уже добавил сервер, сервер клиента ещё не видел
	assert.Equal(t, 1, handClient.count)
	assert.Equal(t, PeerIDServer, handClient.lastID)
	assert.Equal(t, 0, handServer.count)
	assert.False(t, client.Connected())

	time.Sleep(50 * time.Millisecond)
	_, _, err := server.Receive()
	assert.ErrorIs(t, err, ErrNoIncomingData)

	assert.Equal(t, 1, handClient.count)
	assert.Equal(t, PeerIDServer, handClient.lastID)
	assert.Equal(t, 1, handServer.count)
	assert.Equal(t, uint16(2), handServer.lastID)

	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() {
		require.True(t, time.Now().Before(deadline), "client did not connect")
		_, _, err := client.Receive()
		require.ErrorIs(t, err, ErrNoIncomingData)
	}
	assert.Equal(t, uint16(2), client.GetPeerID())
	drain(server)

	// Надёжная отправка клиент -> сервер
	hello := []byte("Hello World!")
	require.NoError(t, client.Send(PeerIDServer, 0, hello, true))
	peerID, data := receiveWithin(t, server, time.Second)
	assert.Equal(t, uint16(2), peerID)
	assert.Equal(t, hello, data)

	const peerIDClient uint16 = 2

	// Пакеты в неправильном порядке (2, 1, 2)
	data1 := []byte("hello1")
	data2 := []byte("Hello2")
	sn := server.nextOutgoingSeqnum(peerIDClient, 0)
	server.setNextOutgoingSeqnum(peerIDClient, 0, sn+1)
	require.NoError(t, server.Send(peerIDClient, 0, data2, true))
	server.setNextOutgoingSeqnum(peerIDClient, 0, sn)
	require.NoError(t, server.Send(peerIDClient, 0, data1, true))
	server.setNextOutgoingSeqnum(peerIDClient, 0, sn+1)
	require.NoError(t, server.Send(peerIDClient, 0, data2, true))

	time.Sleep(50 * time.Millisecond)

	peerID, data = receiveWithin(t, client, time.Second)
	assert.Equal(t, PeerIDServer, peerID)
	assert.Equal(t, data1, data)
	peerID, data = receiveWithin(t, client, time.Second)
	assert.Equal(t, PeerIDServer, peerID)
	assert.Equal(t, data2, data)
	_, _, err = client.Receive()
	assert.ErrorIs(t, err, ErrNoIncomingData)

	// Сообщение длиннее одного пакета
	big := make([]byte, 1100)
	for i := range big {
		big[i] = byte(i / 4)
	}
	require.NoError(t, server.Send(peerIDClient, 0, big, true))
	peerID, data = receiveWithin(t, client, time.Second)
	assert.Equal(t, PeerIDServer, peerID)
	assert.Equal(t, big, data)

	assert.Equal(t, 1, handClient.count)
	assert.Equal(t, PeerIDServer, handClient.lastID)
	assert.Equal(t, 1, handServer.count)
	assert.Equal(t, uint16(2), handServer.lastID)
}

func TestSplitThresholdRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	threshold := MaxPacketSize - BaseHeaderSize - ReliableHeaderSize - 1
	for _, size := range []int{threshold - 1, threshold, threshold + 1, 1100, 5000} {
		msg := make([]byte, size)
		for i := range msg {
			msg[i] = byte(i*7 + size)
		}
		for _, reliable := range []bool{true, false} {
			require.NoError(t, p.server.Send(2, 1, msg, reliable))
			_, data := receiveWithin(t, p.client, time.Second)
			assert.Equal(t, msg, data, "size=%d reliable=%v", size, reliable)
		}
	}
}

func TestEmptyMessageNotDelivered(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	require.NoError(t, p.client.Send(PeerIDServer, 2, nil, true))
	require.NoError(t, p.client.Send(PeerIDServer, 2, []byte{9}, true))
	_, data := receiveWithin(t, p.server, time.Second)
	assert.Equal(t, []byte{9}, data)
}

func TestAckClearsOutgoingBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	require.NoError(t, p.client.Send(PeerIDServer, 1, []byte("x"), true))
	n, err := p.client.OutgoingReliableCount(PeerIDServer, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	receiveWithin(t, p.server, time.Second)
	time.Sleep(20 * time.Millisecond)
	drain(p.client)

	n, err = p.client.OutgoingReliableCount(PeerIDServer, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResendAndPeerTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	server := NewConnection(testOptions(), nil)
	require.NoError(t, server.Serve(0))
	defer server.Close()

	hand := &testHandler{}
	client := NewConnection(testOptions(), hand)
	defer client.Close()
	require.NoError(t, client.Connect(fmt.Sprintf("127.0.0.1:%d", server.LocalAddr().Port)))

	// Сервер не читает, подтверждений нет
	client.RunTimeouts(0.3)
	assert.Zero(t, client.Stats().PacketsResent)
	client.RunTimeouts(0.3)
	assert.Equal(t, uint64(1), client.Stats().PacketsResent)
	// Следующая попытка не раньше чем через 1 с
	client.RunTimeouts(0.5)
	assert.Equal(t, uint64(1), client.Stats().PacketsResent)
	client.RunTimeouts(0.6)
	assert.Equal(t, uint64(2), client.Stats().PacketsResent)

	client.RunTimeouts(float32(DefaultPeerTimeout.Seconds()) + 1)
	assert.Equal(t, 0, hand.count)
	assert.Equal(t, PeerIDServer, hand.lastID)
	assert.True(t, hand.lastTimeout)
	assert.Empty(t, client.Peers())
}

func TestDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	p.client.Disconnect()
	time.Sleep(20 * time.Millisecond)
	drain(p.server)

	assert.Equal(t, 0, p.handServer.count)
	assert.Equal(t, uint16(2), p.handServer.lastID)
	assert.False(t, p.handServer.lastTimeout)

	err := p.server.Send(2, 0, []byte("x"), true)
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestDisconnectPeer(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	require.NoError(t, p.server.DisconnectPeer(2))
	assert.Equal(t, 0, p.handServer.count)
	time.Sleep(20 * time.Millisecond)
	drain(p.client)
	assert.Equal(t, 0, p.handClient.count)

	assert.ErrorIs(t, p.server.DeletePeer(2), ErrPeerNotFound)
}

func TestSecondClientGetsNextID(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	hand := &testHandler{}
	second := NewConnection(testOptions(), hand)
	defer second.Close()
	require.NoError(t, second.Connect(fmt.Sprintf("127.0.0.1:%d", p.server.LocalAddr().Port)))

	deadline := time.Now().Add(2 * time.Second)
	for !second.Connected() {
		require.True(t, time.Now().Before(deadline))
		drain(p.server)
		drain(second)
	}
	assert.Equal(t, uint16(3), second.GetPeerID())

	peers := p.server.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, uint16(2), peers[0].ID)
	assert.Equal(t, uint16(3), peers[1].ID)

	addr, err := p.server.GetPeerAddress(3)
	require.NoError(t, err)
	assert.Equal(t, second.LocalAddr().Port, addr.Port)
}

func TestInvalidAndForeignPackets(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	raw := p.client
	raw.mu.Lock()
	serverAddr := raw.peers[PeerIDServer].Address
	// обрезанный пакет
	_, err := raw.conn.WriteToUDP([]byte{1, 2, 3}, serverAddr)
	require.NoError(t, err)
	// чужой протокол молча отбрасывается
	foreign := makePacket(serverAddr, makeOriginalPacket([]byte("zzz")), 0xdeadbeef, 2, 0)
	_, err = raw.conn.WriteToUDP(foreign.data, serverAddr)
	require.NoError(t, err)
	raw.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	_, _, err = p.server.Receive()
	assert.ErrorIs(t, err, ErrInvalidIncomingData)
	_, _, err = p.server.Receive()
	assert.ErrorIs(t, err, ErrNoIncomingData)
}

func TestPacketFromUnknownPeer(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)
	m := NewMetrics(prometheus.NewRegistry())
	p.server.metrics = m

	raw := p.client
	raw.mu.Lock()
	serverAddr := raw.peers[PeerIDServer].Address
	stray := makePacket(serverAddr, makeOriginalPacket([]byte("zzz")), testProtocolID, 7, 0)
	_, err := raw.conn.WriteToUDP(stray.data, serverAddr)
	raw.mu.Unlock()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	peerID, _, err := p.server.Receive()
	assert.ErrorIs(t, err, ErrPeerNotFound)
	assert.Equal(t, uint16(7), peerID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.unknownPeer))
	assert.Zero(t, testutil.ToFloat64(m.invalid))
	assert.Len(t, p.server.Peers(), 1)
}

func TestReorderBufferIsBounded(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := connectPair(t)

	p.server.mu.Lock()
	ch := &p.server.peers[2].channels[1]
	next := ch.nextIncomingSeqnum
	for i := 1; i <= MaxIncomingReliables; i++ {
		ch.incomingReliables[next+uint16(i)] = []byte{TypeOriginal, 'x'}
	}
	p.server.mu.Unlock()

	p.client.setNextOutgoingSeqnum(PeerIDServer, 1, next+2000)
	require.NoError(t, p.client.Send(PeerIDServer, 1, []byte("late"), true))

	time.Sleep(20 * time.Millisecond)
	drain(p.server)
	time.Sleep(20 * time.Millisecond)
	drain(p.client)

	p.server.mu.Lock()
	_, stored := ch.incomingReliables[next+2000]
	size := len(ch.incomingReliables)
	p.server.mu.Unlock()
	assert.False(t, stored)
	assert.Equal(t, MaxIncomingReliables, size)

	// без ACK пакет остаётся у отправителя
	n, err := p.client.OutgoingReliableCount(PeerIDServer, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReceiveAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewConnection(testOptions(), nil)
	_, _, err := c.Receive()
	assert.ErrorIs(t, err, ErrConnectionClosed)

	require.NoError(t, c.Serve(0))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, _, err = c.Receive()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
