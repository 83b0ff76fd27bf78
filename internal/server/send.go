package server

import (
	"sort"

	"github.com/annel0/voxel-core/internal/protocol"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/world"
)

// SendBlocks собирает кандидатов всех клиентов и рассылает ближайшие
// блоки в пределах общего лимита одновременных отправок.
func (s *Server) SendBlocks(dtime float32) {
	s.envMu.Lock()
	defer s.envMu.Unlock()
	s.conMu.Lock()
	defer s.conMu.Unlock()

	totalSending := 0
	for _, c := range s.clients {
		totalSending += c.SendingCount()
	}

	var queue []BlockTransfer
	for _, id := range s.clientIDsLocked() {
		c := s.clients[id]
		if c.SerializationVersion == serialize.VersionInvalid {
			continue
		}
		player := s.env.Player(id)
		if player == nil {
			continue
		}
		queue = append(queue, c.GetNextBlocks(dtime, player.Position(), s.smap, s.emergeQueue, s.TriggerEmerge)...)
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Priority < queue[j].Priority })

	for _, q := range queue {
		if totalSending >= s.cfg.Scheduling.MaxBlockSendsServerTotal {
			break
		}
		block, err := s.smap.GetBlockNoCreate(q.Pos)
		if err != nil || block.IsDummy() {
			continue
		}
		c, ok := s.clients[q.PeerID]
		if !ok {
			continue
		}
		if err := s.sendBlockLocked(q.PeerID, block, c.SerializationVersion); err != nil {
			s.log.Warn("send block %v to peer_id=%d: %v", q.Pos, q.PeerID, err)
			continue
		}
		c.SentBlock(q.Pos)
		totalSending++
	}
}

// sendBlockLocked требует conMu.
func (s *Server) sendBlockLocked(peerID uint16, block *world.MapBlock, version uint8) error {
	data, err := block.Serialize(version)
	if err != nil {
		return err
	}
	msg := (&protocol.BlockData{Pos: block.Pos(), Data: data}).Encode()
	if err := s.con.Send(peerID, protocol.ChannelBlocks, msg, true); err != nil {
		return err
	}
	s.metrics.blockSent()
	return nil
}

// SendObjectData рассылает положения всех игроков ненадёжно. Клиенты
// пропускают собственную запись.
func (s *Server) SendObjectData() {
	s.envMu.Lock()
	defer s.envMu.Unlock()
	s.conMu.Lock()
	defer s.conMu.Unlock()

	players := s.env.Players()
	od := &protocol.ObjectData{Players: make([]protocol.PlayerState, 0, len(players))}
	for _, p := range players {
		od.Players = append(od.Players, p.State())
	}
	msg := od.Encode()

	for id, c := range s.clients {
		if c.SerializationVersion == serialize.VersionInvalid {
			continue
		}
		if err := s.con.Send(id, protocol.ChannelDefault, msg, false); err != nil {
			s.log.Debug("send OBJECTDATA to peer_id=%d: %v", id, err)
		}
	}
}

// sendPlayerInfosLocked рассылает всем список игроков.
// Требует envMu и conMu.
func (s *Server) sendPlayerInfosLocked() {
	pi := &protocol.PlayerInfo{}
	for _, p := range s.env.Players() {
		if p.PeerID == 0 {
			continue
		}
		pi.Players = append(pi.Players, protocol.PlayerInfoEntry{PeerID: p.PeerID, Name: p.Name()})
	}
	if err := s.con.SendToAll(protocol.ChannelDefault, pi.Encode(), true); err != nil {
		s.log.Warn("send PLAYERINFO: %v", err)
	}
}

// sendInventoryLocked отправляет игроку его инвентарь.
// Требует envMu и conMu.
func (s *Server) sendInventoryLocked(peerID uint16) error {
	player := s.env.Player(peerID)
	if player == nil {
		return nil
	}
	msg := (&protocol.Inventory{Data: player.Inventory.Serialize()}).Encode()
	return s.con.Send(peerID, protocol.ChannelDefault, msg, true)
}

// clientIDsLocked возвращает id клиентов по возрастанию. Требует conMu.
func (s *Server) clientIDsLocked() []uint16 {
	ids := make([]uint16, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
