package network

import (
	"fmt"
	"net"
	"sort"
)

// incomingSplit собирает фрагменты одного разрезанного сообщения.
type incomingSplit struct {
	count  uint16
	chunks map[uint16][]byte
	// time - секунд с последнего полученного фрагмента.
	time float32
}

func (s *incomingSplit) complete() bool {
	return len(s.chunks) == int(s.count)
}

func (s *incomingSplit) reassemble() []byte {
	size := 0
	for _, c := range s.chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for i := uint16(0); i < s.count; i++ {
		out = append(out, s.chunks[i]...)
	}
	return out
}

// Channel - независимый упорядоченный подпоток пира.
type Channel struct {
	nextOutgoingSeqnum      uint16
	nextIncomingSeqnum      uint16
	nextOutgoingSplitSeqnum uint16

	// Отправленные, но не подтверждённые надёжные пакеты.
	outgoingReliables map[uint16]*bufferedPacket
	// Надёжные пакеты, пришедшие раньше своей очереди (без заголовка RELIABLE).
	incomingReliables map[uint16][]byte
	incomingSplits    map[uint16]*incomingSplit
}

func newChannel() Channel {
	return Channel{
		nextOutgoingSeqnum: SeqnumInitial,
		nextIncomingSeqnum: SeqnumInitial,
		outgoingReliables:  make(map[uint16]*bufferedPacket),
		incomingReliables:  make(map[uint16][]byte),
		incomingSplits:     make(map[uint16]*incomingSplit),
	}
}

// OutgoingReliableCount возвращает число неподтверждённых надёжных пакетов.
func (ch *Channel) OutgoingReliableCount() int { return len(ch.outgoingReliables) }

// addSplitChunk кладёт фрагмент в буфер. Возвращает собранное
// сообщение, когда пришли все фрагменты.
func (ch *Channel) addSplitChunk(seqnum, index, count uint16, chunk []byte) ([]byte, error) {
	if count == 0 || index >= count {
		return nil, fmt.Errorf("%w: split chunk %d/%d", ErrInvalidIncomingData, index, count)
	}
	sp, ok := ch.incomingSplits[seqnum]
	if !ok {
		sp = &incomingSplit{count: count, chunks: make(map[uint16][]byte, count)}
		ch.incomingSplits[seqnum] = sp
	}
	if sp.count != count {
		return nil, fmt.Errorf("%w: split %d chunk count changed %d -> %d", ErrInvalidIncomingData, seqnum, sp.count, count)
	}
	sp.time = 0
	if _, dup := sp.chunks[index]; !dup {
		c := make([]byte, len(chunk))
		copy(c, chunk)
		sp.chunks[index] = c
	}
	if !sp.complete() {
		return nil, nil
	}
	delete(ch.incomingSplits, seqnum)
	return sp.reassemble(), nil
}

// removeTimedOutSplits удаляет недособранные сообщения старше timeout.
func (ch *Channel) removeTimedOutSplits(dtime, timeout float32) int {
	removed := 0
	for seq, sp := range ch.incomingSplits {
		sp.time += dtime
		if sp.time >= timeout {
			delete(ch.incomingSplits, seq)
			removed++
		}
	}
	return removed
}

// timedOutReliables увеличивает таймеры и возвращает пакеты для переотправки
// в порядке номеров.
func (ch *Channel) timedOutReliables(dtime float32) []*bufferedPacket {
	var out []*bufferedPacket
	for _, p := range ch.outgoingReliables {
		p.time += dtime
		p.totalTime += dtime
		if p.time >= p.resendTimeout {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return seqnumHigher(reliableSeqnum(out[j]), reliableSeqnum(out[i]))
	})
	return out
}

func reliableSeqnum(p *bufferedPacket) uint16 {
	return uint16(p.data[BaseHeaderSize+1])<<8 | uint16(p.data[BaseHeaderSize+2])
}

// Peer - удалённая сторона соединения.
type Peer struct {
	ID      uint16
	Address *net.UDPAddr

	channels [ChannelCount]Channel

	// timeoutCounter - секунд с последнего принятого пакета.
	timeoutCounter float32
	// pingTimer - секунд с последней отправки.
	pingTimer float32

	avgRTT float32
}

func newPeer(id uint16, addr *net.UDPAddr) *Peer {
	p := &Peer{ID: id, Address: addr, avgRTT: -1}
	for i := range p.channels {
		p.channels[i] = newChannel()
	}
	return p
}

func (p *Peer) reportRTT(rtt float32) {
	if rtt < 0 {
		return
	}
	if p.avgRTT < 0 {
		p.avgRTT = rtt
		return
	}
	p.avgRTT = p.avgRTT*0.9 + rtt*0.1
}

// PeerInfo - снимок состояния пира.
type PeerInfo struct {
	ID          uint16
	Address     string
	AvgRTT      float32
	IdleSeconds float32
	// Unacked - неподтверждённые надёжные пакеты по каналам.
	Unacked [ChannelCount]int
}

func (p *Peer) info() PeerInfo {
	pi := PeerInfo{ID: p.ID, AvgRTT: p.avgRTT, IdleSeconds: p.timeoutCounter}
	if p.Address != nil {
		pi.Address = p.Address.String()
	}
	for i := range p.channels {
		pi.Unacked[i] = p.channels[i].OutgoingReliableCount()
	}
	return pi
}
