package server

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/environment"
	"github.com/annel0/voxel-core/internal/eventbus"
	"github.com/annel0/voxel-core/internal/inventory"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// signItem - табличка, которую получает каждый новый игрок.
const signItem = "Sign Example text"

// peerAdded создаёт клиента и игрока на поверхности в (0, 0).
// Требует envMu и conMu.
func (s *Server) peerAdded(peerID uint16) {
	if _, ok := s.clients[peerID]; ok {
		panic(fmt.Sprintf("server: peer %d added twice", peerID))
	}
	s.clients[peerID] = NewRemoteClient(peerID, &s.cfg.Scheduling)

	player := environment.NewRemotePlayer(peerID)
	gh, err := s.smap.SurfaceHeight(0, 0)
	if err != nil {
		s.log.Warn("spawn height: %v", err)
	}
	if gh < 0 {
		gh = 0
	}
	player.SetPosition(vec.IntToFloat(vec.New3(0, gh+1, 0)))
	giveStartItems(player.Inventory, s.cfg.Server.CreativeMode)
	s.env.AddPlayer(player)

	s.log.Info("👤 Peer connected: peer_id=%d spawn=%v", peerID, player.Position())
	s.queueEvent(eventbus.TypePeerJoined, eventbus.PriorityNormal, eventbus.PeerEvent{PeerID: peerID})
}

func giveStartItems(inv *inventory.Inventory, creative bool) {
	if creative {
		for m := node.Material(0); m < node.UsefulMaterialCount; m++ {
			inv.AddItem(inventory.NewMaterialItem(m, 1))
		}
		inv.AddItem(&inventory.ObjectItem{InventoryString: signItem})
		return
	}
	inv.AddItem(inventory.NewMaterialItem(node.Light, 999))
	for i := 0; i < 4; i++ {
		inv.AddItem(&inventory.ObjectItem{InventoryString: signItem})
	}
}

// deletingPeer удаляет игрока, клиента и его запросы emerge.
// Требует envMu и conMu.
func (s *Server) deletingPeer(peerID uint16, timeout bool) {
	name := ""
	if p := s.env.Player(peerID); p != nil {
		name = p.Name()
	}
	s.env.RemovePlayer(peerID)
	delete(s.clients, peerID)
	s.emergeQueue.RemovePeer(peerID)

	s.log.Info("👋 Peer disconnected: peer_id=%d name=%s timeout=%v", peerID, name, timeout)
	s.sendPlayerInfosLocked()
	s.queueEvent(eventbus.TypePeerLeft, eventbus.PriorityHigh, eventbus.PeerEvent{PeerID: peerID, Name: name})
}
