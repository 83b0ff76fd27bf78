package server

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/environment"
	"github.com/annel0/voxel-core/internal/eventbus"
	"github.com/annel0/voxel-core/internal/inventory"
	"github.com/annel0/voxel-core/internal/protocol"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// ProcessData обрабатывает одно сообщение клиента.
func (s *Server) ProcessData(data []byte, peerID uint16) error {
	s.envMu.Lock()
	defer s.envMu.Unlock()
	s.conMu.Lock()
	defer s.conMu.Unlock()

	cmd, err := protocol.ReadCommand(data)
	if err != nil {
		return err
	}
	c, ok := s.clients[peerID]
	if !ok {
		s.log.Warn("%s from unknown peer_id=%d", protocol.ToServerName(cmd), peerID)
		return nil
	}

	switch cmd {
	case protocol.ToServerInit:
		return s.handleInit(c, data)
	case protocol.ToServerInit2:
		c.SerializationVersion = c.PendingSerializationVersion
		s.sendPlayerInfosLocked()
		return s.sendInventoryLocked(peerID)
	}

	if c.SerializationVersion == serialize.VersionInvalid {
		s.log.Info("peer_id=%d: ignoring %s before INIT2", peerID, protocol.ToServerName(cmd))
		return nil
	}
	player := s.env.Player(peerID)
	if player == nil {
		s.log.Info("peer_id=%d: no player, ignoring %s", peerID, protocol.ToServerName(cmd))
		return nil
	}

	switch cmd {
	case protocol.ToServerPlayerPos:
		pp, err := protocol.DecodePlayerPos(data)
		if err != nil {
			return err
		}
		player.SetPosition(pp.Pos)
		player.SetSpeed(pp.Speed)
		player.SetPitch(vec.WrapDegrees(pp.Pitch))
		player.SetYaw(vec.WrapDegrees(pp.Yaw))
	case protocol.ToServerGotBlocks, protocol.ToServerDeletedBlocks:
		bl, err := protocol.DecodeBlockList(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		for _, p := range bl.Blocks {
			if cmd == protocol.ToServerGotBlocks {
				c.GotBlock(p)
			} else {
				c.SetBlockNotSent(p)
			}
		}
	case protocol.ToServerClickGround:
		cg, err := protocol.DecodeClickGround(data)
		if err != nil {
			return err
		}
		switch cg.Button {
		case protocol.ButtonDig:
			return s.dig(c, player, cg)
		case protocol.ButtonPlace:
			return s.place(c, player, cg)
		}
	case protocol.ToServerClickObject:
		co, err := protocol.DecodeClickObject(data)
		if err != nil {
			return err
		}
		s.log.Debug("peer_id=%d: CLICK_OBJECT block=%v id=%d ignored", peerID, co.Block, co.ObjectID)
	case protocol.ToServerSignText:
		st, err := protocol.DecodeSignText(data)
		if err != nil {
			return err
		}
		s.log.Debug("peer_id=%d: SIGNTEXT block=%v id=%d %q ignored", peerID, st.Block, st.ObjectID, st.Text)
	case protocol.ToServerRelease:
		s.log.Debug("peer_id=%d: RELEASE ignored", peerID)
	default:
		s.log.Warn("peer_id=%d: unknown command 0x%02x", peerID, uint16(cmd))
	}
	return nil
}

// handleInit согласует версию формата и отвечает TOCLIENT_INIT.
func (s *Server) handleInit(c *RemoteClient, data []byte) error {
	hello, err := protocol.DecodeHello(data)
	if err != nil {
		return err
	}
	deployed := hello.MaxVersion
	if deployed > serialize.VersionHighest {
		deployed = serialize.VersionHighest
	}
	if !serialize.VersionSupported(deployed) {
		c.PendingSerializationVersion = serialize.VersionInvalid
		s.log.Warn("peer_id=%d: unsupported serialization version %d", c.PeerID, hello.MaxVersion)
		return nil
	}
	c.PendingSerializationVersion = deployed

	player := s.env.Player(c.PeerID)
	if player == nil {
		return fmt.Errorf("%w: no player for peer_id=%d", ErrInvalidData, c.PeerID)
	}
	if hello.Name != "" {
		player.SetName(hello.Name)
	}

	spawn := vec.FloatToInt(player.Position().Add(vec.V3F{Y: vec.BS / 2}))
	msg := (&protocol.Init{Version: deployed, Spawn: spawn}).Encode()
	s.log.Info("peer_id=%d: INIT name=%s version=%d", c.PeerID, player.Name(), deployed)
	return s.con.Send(c.PeerID, protocol.ChannelDefault, msg, true)
}

// dig убирает узел под курсором и кладёт его в инвентарь.
func (s *Server) dig(c *RemoteClient, player *environment.Player, cg *protocol.ClickGround) error {
	n, ok := s.smap.GetNode(cg.Under)
	if !ok || n.Material == node.Air {
		return nil
	}
	c.ResetTimeFromBuilding()

	msg := (&protocol.RemoveNode{Pos: cg.Under}).Encode()
	if err := s.con.SendToAll(protocol.ChannelDefault, msg, true); err != nil {
		s.log.Warn("send REMOVENODE: %v", err)
	}

	if !s.cfg.Server.CreativeMode {
		player.Inventory.AddItem(inventory.NewMaterialItem(n.Material, 1))
		if err := s.sendInventoryLocked(c.PeerID); err != nil {
			s.log.Warn("send INVENTORY: %v", err)
		}
	}

	if _, err := s.smap.RemoveNodeAndUpdate(cg.Under); err != nil {
		return err
	}
	s.queueEvent(eventbus.TypeNodeRemoved, eventbus.PriorityNormal, nodeEvent(cg.Under, n.Material))
	return nil
}

// place ставит узел из выбранного слота инвентаря.
func (s *Server) place(c *RemoteClient, player *environment.Player, cg *protocol.ClickGround) error {
	item := player.Inventory.GetItem(int(cg.ItemIndex))
	if item == nil {
		return nil
	}
	mi, ok := item.(*inventory.MaterialItem)
	if !ok {
		s.log.Info("peer_id=%d: placing %s is not supported", c.PeerID, item.Name())
		return nil
	}
	if n, ok := s.smap.GetNode(cg.Over); !ok || n.Material != node.Air {
		return nil
	}
	c.ResetTimeFromBuilding()

	newNode := node.New(mi.Material)
	if !s.cfg.Server.CreativeMode {
		if mi.Count() == 1 {
			player.Inventory.DeleteItem(int(cg.ItemIndex))
		} else {
			mi.Remove(1)
		}
		if err := s.sendInventoryLocked(c.PeerID); err != nil {
			s.log.Warn("send INVENTORY: %v", err)
		}
	}

	// Узел сериализуется в версии каждого клиента
	for id, rc := range s.clients {
		if rc.SerializationVersion == serialize.VersionInvalid {
			continue
		}
		msg, err := (&protocol.AddNode{Pos: cg.Over, Node: newNode}).Encode(rc.SerializationVersion)
		if err != nil {
			s.log.Warn("encode ADDNODE for peer_id=%d: %v", id, err)
			continue
		}
		if err := s.con.Send(id, protocol.ChannelDefault, msg, true); err != nil {
			s.log.Warn("send ADDNODE to peer_id=%d: %v", id, err)
		}
	}

	if _, err := s.smap.AddNodeAndUpdate(cg.Over, newNode); err != nil {
		return err
	}
	s.queueEvent(eventbus.TypeNodeAdded, eventbus.PriorityNormal, nodeEvent(cg.Over, mi.Material))
	return nil
}

func nodeEvent(p vec.V3S16, m node.Material) eventbus.NodeEvent {
	return eventbus.NodeEvent{X: p.X, Y: p.Y, Z: p.Z, Material: uint8(m)}
}
