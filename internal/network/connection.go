package network

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/serialize"
)

var (
	// ErrNoIncomingData - за время ожидания не пришло ни одного сообщения.
	ErrNoIncomingData = errors.New("network: no incoming data")
	// ErrPeerNotFound - пира с таким id нет в таблице.
	ErrPeerNotFound = errors.New("network: peer not found")
	// ErrInvalidIncomingData - пакет обрезан или имеет неверный формат.
	ErrInvalidIncomingData = errors.New("network: invalid incoming data")
	// ErrConnectionClosed - сокет закрыт или ещё не открыт.
	ErrConnectionClosed = errors.New("network: connection closed")
)

// PeerHandler получает уведомления о появлении и удалении пиров.
// Методы вызываются синхронно изнутри Connect, Receive, RunTimeouts,
// DeletePeer и DisconnectPeer при захваченной блокировке соединения,
// поэтому обращаться из них к Connection нельзя.
type PeerHandler interface {
	PeerAdded(peerID uint16)
	DeletingPeer(peerID uint16, timeout bool)
}

// Options - параметры соединения.
type Options struct {
	ProtocolID       uint32
	MaxPacketSize    int
	PeerTimeout      time.Duration
	ResendTimeout    time.Duration
	MaxResendTimeout time.Duration
	PingInterval     time.Duration
	SplitTimeout     time.Duration
	// ReceiveTimeout - сколько Receive ждёт данных из сокета.
	ReceiveTimeout time.Duration
	Metrics        *Metrics
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		ProtocolID:       ProtocolID,
		MaxPacketSize:    MaxPacketSize,
		PeerTimeout:      DefaultPeerTimeout,
		ResendTimeout:    DefaultResendTimeout,
		MaxResendTimeout: DefaultMaxResendTimeout,
		PingInterval:     DefaultPingInterval,
		SplitTimeout:     DefaultSplitTimeout,
		ReceiveTimeout:   DefaultReceiveTimeout,
	}
}

// ConnectionStats - сводная статистика соединения.
type ConnectionStats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsResent   uint64
	BytesSent       uint64
	BytesReceived   uint64
	Peers           int
	LastActivity    time.Time
}

// Connection - надёжный транспорт поверх одного UDP-сокета.
// Сервер вызывает Serve, клиент вызывает Connect.
//
// Send, RunTimeouts и остальные методы безопасны для вызова из разных
// горутин. Receive рассчитан на одну читающую горутину.
type Connection struct {
	opts    Options
	handler PeerHandler
	log     *logging.Logger
	metrics *Metrics

	mu      sync.Mutex
	conn    *net.UDPConn
	serving bool
	peerID  uint16
	peers   map[uint16]*Peer

	recvMu  sync.Mutex
	recvBuf []byte

	closed atomic.Bool

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	packetsResent   atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	lastActivity    atomic.Int64
}

// NewConnection создаёт соединение. Сокет открывается в Serve или Connect.
func NewConnection(opts Options, handler PeerHandler) *Connection {
	def := DefaultOptions()
	if opts.ProtocolID == 0 {
		opts.ProtocolID = def.ProtocolID
	}
	if opts.MaxPacketSize <= BaseHeaderSize+ReliableHeaderSize+SplitHeaderSize {
		opts.MaxPacketSize = def.MaxPacketSize
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = def.PeerTimeout
	}
	if opts.ResendTimeout <= 0 {
		opts.ResendTimeout = def.ResendTimeout
	}
	if opts.MaxResendTimeout < opts.ResendTimeout {
		opts.MaxResendTimeout = opts.ResendTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.SplitTimeout <= 0 {
		opts.SplitTimeout = def.SplitTimeout
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = def.ReceiveTimeout
	}
	return &Connection{
		opts:    opts,
		handler: handler,
		log:     logging.GetNetworkLogger(),
		metrics: opts.Metrics,
		peerID:  PeerIDInexistent,
		peers:   make(map[uint16]*Peer),
		recvBuf: make([]byte, 64*1024),
	}
}

func secs(d time.Duration) float32 { return float32(d.Seconds()) }

// Serve открывает сокет на порту port и принимает новых пиров.
// Порт 0 выбирает свободный порт, см. LocalAddr.
func (c *Connection) Serve(port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("network: socket already open")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("listen udp port %d: %w", port, err)
	}
	c.conn = conn
	c.serving = true
	c.peerID = PeerIDServer
	c.log.Info("Serving: addr=%s", conn.LocalAddr())
	return nil
}

// Connect создаёт пира-сервер и отправляет ему пустой надёжный пакет.
// Соединение установлено, когда Connected вернёт true.
func (c *Connection) Connect(address string) error {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", address, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serving {
		return fmt.Errorf("network: Connect on a serving connection")
	}
	if len(c.peers) != 0 {
		return fmt.Errorf("network: already connected")
	}
	if c.conn == nil {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return fmt.Errorf("open udp socket: %w", err)
		}
		c.conn = conn
	}

	peer := newPeer(PeerIDServer, raddr)
	c.peers[peer.ID] = peer
	c.metrics.setPeers(len(c.peers))
	if c.handler != nil {
		c.handler.PeerAdded(peer.ID)
	}
	c.log.Info("Connecting: addr=%s", raddr)
	return c.sendLocked(peer, 0, nil, true)
}

// Connected сообщает, получил ли клиент свой id от сервера.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.serving && c.peerID != PeerIDInexistent && len(c.peers) == 1
}

// GetPeerID возвращает собственный id.
func (c *Connection) GetPeerID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// LocalAddr возвращает адрес сокета или nil, если он не открыт.
func (c *Connection) LocalAddr() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Send отправляет сообщение пиру peerID по каналу channel.
// Длинные сообщения режутся на фрагменты.
func (c *Connection) Send(peerID uint16, channel uint8, data []byte, reliable bool) error {
	if channel >= ChannelCount {
		return fmt.Errorf("network: invalid channel %d", channel)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.peers[peerID]
	if !ok {
		return fmt.Errorf("%w: id=%d", ErrPeerNotFound, peerID)
	}
	return c.sendLocked(peer, channel, data, reliable)
}

// SendToAll отправляет сообщение всем пирам.
func (c *Connection) SendToAll(channel uint8, data []byte, reliable bool) error {
	if channel >= ChannelCount {
		return fmt.Errorf("network: invalid channel %d", channel)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, id := range c.sortedPeerIDsLocked() {
		if err := c.sendLocked(c.peers[id], channel, data, reliable); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Connection) sendLocked(peer *Peer, channel uint8, data []byte, reliable bool) error {
	ch := &peer.channels[channel]
	chunkSizeMax := c.opts.MaxPacketSize - BaseHeaderSize - ReliableHeaderSize
	for _, p := range makeAutoSplitPacket(data, chunkSizeMax, &ch.nextOutgoingSplitSeqnum) {
		if err := c.sendAsPacketLocked(peer, channel, p, reliable); err != nil {
			return err
		}
	}
	peer.pingTimer = 0
	return nil
}

func (c *Connection) sendAsPacketLocked(peer *Peer, channel uint8, data []byte, reliable bool) error {
	if !reliable {
		return c.rawSendLocked(makePacket(peer.Address, data, c.opts.ProtocolID, c.peerID, channel))
	}
	ch := &peer.channels[channel]
	seqnum := ch.nextOutgoingSeqnum
	ch.nextOutgoingSeqnum++
	p := makePacket(peer.Address, makeReliablePacket(data, seqnum), c.opts.ProtocolID, c.peerID, channel)
	p.resendTimeout = secs(c.opts.ResendTimeout)
	ch.outgoingReliables[seqnum] = p
	return c.rawSendLocked(p)
}

func (c *Connection) rawSendLocked(p *bufferedPacket) error {
	if c.conn == nil {
		return ErrConnectionClosed
	}
	n, err := c.conn.WriteToUDP(p.data, p.address)
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.address, err)
	}
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
	c.metrics.sent(n)
	return nil
}

// Receive возвращает следующее сообщение приложения.
//
// Управляющие и пустые пакеты обрабатываются внутри. Если за
// ReceiveTimeout ничего не пришло, возвращается ErrNoIncomingData.
// Битый пакет даёт ErrInvalidIncomingData; вызывающий продолжает чтение.
func (c *Connection) Receive() (uint16, []byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	for {
		c.mu.Lock()
		conn := c.conn
		if conn == nil {
			c.mu.Unlock()
			return 0, nil, ErrConnectionClosed
		}
		peerID, data, err := c.drainIncomingLocked()
		c.mu.Unlock()
		if err != nil || data != nil {
			return peerID, data, err
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.opts.ReceiveTimeout)); err != nil {
			return 0, nil, c.readError(err)
		}
		n, from, err := conn.ReadFromUDP(c.recvBuf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return 0, nil, ErrNoIncomingData
			}
			return 0, nil, c.readError(err)
		}
		c.packetsReceived.Add(1)
		c.bytesReceived.Add(uint64(n))
		c.lastActivity.Store(time.Now().UnixNano())
		c.metrics.received(n)

		packet := make([]byte, n)
		copy(packet, c.recvBuf[:n])

		c.mu.Lock()
		peerID, data, err = c.processPacketLocked(from, packet)
		c.mu.Unlock()
		if err != nil {
			if errors.Is(err, ErrPeerNotFound) {
				c.metrics.unknownPeerPacket()
			} else {
				c.metrics.invalidPacket()
			}
			return peerID, nil, err
		}
		if data != nil {
			return peerID, data, nil
		}
	}
}

func (c *Connection) readError(err error) error {
	if c.closed.Load() || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("read udp: %w", err)
}

// drainIncomingLocked выдаёт надёжные пакеты, дождавшиеся своей очереди.
func (c *Connection) drainIncomingLocked() (uint16, []byte, error) {
	for _, id := range c.sortedPeerIDsLocked() {
		for chn := uint8(0); chn < ChannelCount; chn++ {
			for {
				peer, ok := c.peers[id]
				if !ok {
					break
				}
				ch := &peer.channels[chn]
				inner, ok := ch.incomingReliables[ch.nextIncomingSeqnum]
				if !ok {
					break
				}
				delete(ch.incomingReliables, ch.nextIncomingSeqnum)
				ch.nextIncomingSeqnum++
				data, err := c.processDataLocked(peer, chn, inner, true)
				if err != nil {
					return id, nil, err
				}
				if data != nil {
					return id, data, nil
				}
			}
		}
	}
	return 0, nil, nil
}

func (c *Connection) processPacketLocked(from *net.UDPAddr, packet []byte) (uint16, []byte, error) {
	if len(packet) < BaseHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d byte packet from %s", ErrInvalidIncomingData, len(packet), from)
	}
	if serialize.ReadU32(packet[0:]) != c.opts.ProtocolID {
		return 0, nil, nil
	}
	senderID := serialize.ReadU16(packet[4:])
	channel := serialize.ReadU8(packet[6:])
	if channel >= ChannelCount {
		return senderID, nil, fmt.Errorf("%w: channel %d from %s", ErrInvalidIncomingData, channel, from)
	}

	if senderID == PeerIDInexistent {
		if !c.serving {
			c.log.Debug("Packet without peer id on client side: addr=%s", from)
			return 0, nil, nil
		}
		senderID = c.peerForAddressLocked(from)
	}

	peer, ok := c.peers[senderID]
	if !ok {
		return senderID, nil, fmt.Errorf("%w: id=%d addr=%s", ErrPeerNotFound, senderID, from)
	}
	if !sameAddress(peer.Address, from) {
		return senderID, nil, fmt.Errorf("%w: peer %d sending from different address %s", ErrInvalidIncomingData, senderID, from)
	}
	peer.timeoutCounter = 0

	data, err := c.processDataLocked(peer, channel, packet[BaseHeaderSize:], false)
	return senderID, data, err
}

// peerForAddressLocked находит пира по адресу или заводит нового
// с наименьшим свободным id.
func (c *Connection) peerForAddressLocked(from *net.UDPAddr) uint16 {
	for id, p := range c.peers {
		if sameAddress(p.Address, from) {
			return id
		}
	}
	id := firstClientPeerID
	for {
		if _, used := c.peers[id]; !used {
			break
		}
		id++
		if id == PeerIDInexistent {
			panic("network: peer id space exhausted")
		}
	}
	peer := newPeer(id, from)
	c.peers[id] = peer
	c.metrics.setPeers(len(c.peers))
	c.log.Info("Peer added: id=%d addr=%s", id, from)
	if c.handler != nil {
		c.handler.PeerAdded(id)
	}

	var arg [2]byte
	serialize.WriteU16(arg[:], id)
	if err := c.sendAsPacketLocked(peer, 0, makeControlPacket(ControlSetPeerID, arg[:]), true); err != nil {
		c.log.Warn("Failed to send peer id: id=%d error=%v", id, err)
	}
	return id
}

func sameAddress(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// processDataLocked разбирает тело пакета. inReliable означает, что
// тело уже было извлечено из RELIABLE.
func (c *Connection) processDataLocked(peer *Peer, channel uint8, data []byte, inReliable bool) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty packet body from peer %d", ErrInvalidIncomingData, peer.ID)
	}
	ch := &peer.channels[channel]

	switch data[0] {
	case TypeControl:
		return nil, c.processControlLocked(peer, ch, data)

	case TypeOriginal:
		if len(data) == 1 {
			return nil, nil
		}
		out := make([]byte, len(data)-1)
		copy(out, data[1:])
		return out, nil

	case TypeSplit:
		if len(data) < SplitHeaderSize {
			return nil, fmt.Errorf("%w: short split header from peer %d", ErrInvalidIncomingData, peer.ID)
		}
		seqnum := serialize.ReadU16(data[1:])
		index := serialize.ReadU16(data[3:])
		count := serialize.ReadU16(data[5:])
		out, err := ch.addSplitChunk(seqnum, index, count, data[SplitHeaderSize:])
		if err != nil || out == nil {
			return nil, err
		}
		c.metrics.reassembled()
		return out, nil

	case TypeReliable:
		if inReliable {
			return nil, fmt.Errorf("%w: nested reliable packet from peer %d", ErrInvalidIncomingData, peer.ID)
		}
		if len(data) < ReliableHeaderSize+1 {
			return nil, fmt.Errorf("%w: short reliable packet from peer %d", ErrInvalidIncomingData, peer.ID)
		}
		seqnum := serialize.ReadU16(data[1:])
		inner := data[ReliableHeaderSize:]
		if seqnumHigher(seqnum, ch.nextIncomingSeqnum) {
			if _, dup := ch.incomingReliables[seqnum]; !dup {
				if len(ch.incomingReliables) >= MaxIncomingReliables {
					// Без ACK: отправитель повторит пакет позже.
					c.log.Debug("Reorder buffer full: peer=%d channel=%d seqnum=%d", peer.ID, channel, seqnum)
					return nil, nil
				}
				buf := make([]byte, len(inner))
				copy(buf, inner)
				ch.incomingReliables[seqnum] = buf
			}
		}
		if err := c.sendAsPacketLocked(peer, channel, makeAckPacket(seqnum), false); err != nil {
			c.log.Warn("Failed to send ack: peer=%d seqnum=%d error=%v", peer.ID, seqnum, err)
		}
		switch {
		case seqnum == ch.nextIncomingSeqnum:
			ch.nextIncomingSeqnum++
			return c.processDataLocked(peer, channel, inner, true)
		case !seqnumHigher(seqnum, ch.nextIncomingSeqnum):
			c.log.Trace("Duplicate reliable packet: peer=%d seqnum=%d", peer.ID, seqnum)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: packet type %d from peer %d", ErrInvalidIncomingData, data[0], peer.ID)
}

func (c *Connection) processControlLocked(peer *Peer, ch *Channel, data []byte) error {
	if len(data) < controlHeaderSize {
		return fmt.Errorf("%w: short control packet from peer %d", ErrInvalidIncomingData, peer.ID)
	}
	switch data[1] {
	case ControlAck:
		if len(data) < controlHeaderSize+2 {
			return fmt.Errorf("%w: short ack from peer %d", ErrInvalidIncomingData, peer.ID)
		}
		seqnum := serialize.ReadU16(data[2:])
		if p, ok := ch.outgoingReliables[seqnum]; ok {
			delete(ch.outgoingReliables, seqnum)
			peer.reportRTT(p.totalTime)
			c.metrics.acked(p.totalTime)
		}
	case ControlSetPeerID:
		if len(data) < controlHeaderSize+2 {
			return fmt.Errorf("%w: short set_peer_id from peer %d", ErrInvalidIncomingData, peer.ID)
		}
		id := serialize.ReadU16(data[2:])
		switch c.peerID {
		case PeerIDInexistent:
			c.peerID = id
			c.log.Info("Got peer id: id=%d", id)
		case id:
		default:
			c.log.Warn("Peer id already set: have=%d got=%d", c.peerID, id)
		}
	case ControlPing:
	case ControlDisco:
		c.log.Info("Peer disconnected: id=%d", peer.ID)
		return c.deletePeerLocked(peer.ID, false)
	default:
		return fmt.Errorf("%w: control type %d from peer %d", ErrInvalidIncomingData, data[1], peer.ID)
	}
	return nil
}

// RunTimeouts продвигает таймеры на dtime секунд: переотправляет
// неподтверждённые пакеты, шлёт пинги и удаляет замолчавших пиров.
func (c *Connection) RunTimeouts(dtime float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	peerTimeout := secs(c.opts.PeerTimeout)
	splitTimeout := secs(c.opts.SplitTimeout)
	maxResend := secs(c.opts.MaxResendTimeout)
	pingInterval := secs(c.opts.PingInterval)

	var timedOut []uint16
	for _, id := range c.sortedPeerIDsLocked() {
		peer := c.peers[id]
		peer.timeoutCounter += dtime
		if peer.timeoutCounter > peerTimeout {
			timedOut = append(timedOut, id)
			continue
		}

		for i := range peer.channels {
			ch := &peer.channels[i]
			if n := ch.removeTimedOutSplits(dtime, splitTimeout); n > 0 {
				c.log.Debug("Dropped incomplete split messages: peer=%d channel=%d count=%d", id, i, n)
			}
			for _, p := range ch.timedOutReliables(dtime) {
				if err := c.rawSendLocked(p); err != nil {
					c.log.Warn("Resend failed: peer=%d error=%v", id, err)
					continue
				}
				c.packetsResent.Add(1)
				c.metrics.resent()
				p.time = 0
				p.resendTimeout *= 2
				if p.resendTimeout > maxResend {
					p.resendTimeout = maxResend
				}
			}
		}

		peer.pingTimer += dtime
		if peer.pingTimer >= pingInterval {
			peer.pingTimer = 0
			if err := c.sendAsPacketLocked(peer, 0, makeControlPacket(ControlPing, nil), true); err != nil {
				c.log.Warn("Ping failed: peer=%d error=%v", id, err)
			}
		}
	}

	for _, id := range timedOut {
		c.log.Warn("Peer timed out: id=%d", id)
		_ = c.deletePeerLocked(id, true)
	}
}

func (c *Connection) deletePeerLocked(peerID uint16, timeout bool) error {
	if _, ok := c.peers[peerID]; !ok {
		return fmt.Errorf("%w: id=%d", ErrPeerNotFound, peerID)
	}
	if c.handler != nil {
		c.handler.DeletingPeer(peerID, timeout)
	}
	delete(c.peers, peerID)
	c.metrics.setPeers(len(c.peers))
	c.log.Info("Peer removed: id=%d timeout=%v", peerID, timeout)
	return nil
}

// DeletePeer удаляет пира без уведомления удалённой стороны.
func (c *Connection) DeletePeer(peerID uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletePeerLocked(peerID, false)
}

// DisconnectPeer отправляет пиру DISCO и удаляет его.
func (c *Connection) DisconnectPeer(peerID uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.peers[peerID]
	if !ok {
		return fmt.Errorf("%w: id=%d", ErrPeerNotFound, peerID)
	}
	if err := c.sendAsPacketLocked(peer, 0, makeControlPacket(ControlDisco, nil), false); err != nil {
		c.log.Warn("Failed to send disco: peer=%d error=%v", peerID, err)
	}
	return c.deletePeerLocked(peerID, false)
}

// Disconnect отправляет DISCO всем пирам. Пиры остаются в таблице.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.sortedPeerIDsLocked() {
		if err := c.sendAsPacketLocked(c.peers[id], 0, makeControlPacket(ControlDisco, nil), false); err != nil {
			c.log.Warn("Failed to send disco: peer=%d error=%v", id, err)
		}
	}
}

// GetPeerAddress возвращает адрес пира.
func (c *Connection) GetPeerAddress(peerID uint16) (*net.UDPAddr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.peers[peerID]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrPeerNotFound, peerID)
	}
	return peer.Address, nil
}

// Peers возвращает снимки всех пиров в порядке id.
func (c *Connection) Peers() []PeerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.sortedPeerIDsLocked()
	out := make([]PeerInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.peers[id].info())
	}
	return out
}

// OutgoingReliableCount возвращает число неподтверждённых надёжных
// пакетов пира в канале channel.
func (c *Connection) OutgoingReliableCount(peerID uint16, channel uint8) (int, error) {
	if channel >= ChannelCount {
		return 0, fmt.Errorf("network: invalid channel %d", channel)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	peer, ok := c.peers[peerID]
	if !ok {
		return 0, fmt.Errorf("%w: id=%d", ErrPeerNotFound, peerID)
	}
	return peer.channels[channel].OutgoingReliableCount(), nil
}

// Stats возвращает сводную статистику.
func (c *Connection) Stats() ConnectionStats {
	c.mu.Lock()
	peers := len(c.peers)
	c.mu.Unlock()
	st := ConnectionStats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		PacketsResent:   c.packetsResent.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		Peers:           peers,
	}
	if ts := c.lastActivity.Load(); ts != 0 {
		st.LastActivity = time.Unix(0, ts)
	}
	return st
}

// Close закрывает сокет. Заблокированный Receive возвращает ErrConnectionClosed.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.log.Debug("Connection closed")
	return err
}

func (c *Connection) sortedPeerIDsLocked() []uint16 {
	ids := make([]uint16, 0, len(c.peers))
	for id := range c.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
