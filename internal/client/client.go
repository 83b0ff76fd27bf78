// Package client - безголовый игровой клиент: подключается к серверу,
// принимает блоки и положения игроков, шлёт своё положение и действия.
package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/voxel-core/internal/environment"
	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/network"
	"github.com/annel0/voxel-core/internal/protocol"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world"
	"github.com/annel0/voxel-core/internal/world/node"
)

// ErrServerLost - сервер перестал отвечать или отключил клиента.
var ErrServerLost = errors.New("client: server connection lost")

const (
	initResendInterval    = 2.0
	playerPosInterval     = 0.2
	rttLogInterval        = 10.0
	unloadCheckInterval   = 180.0
	maxStepDtime          = 2.0
	defaultUnusedSectorTO = 1200.0
)

// Options - параметры клиента.
type Options struct {
	Name    string
	Network network.Options
	// UnusedSectorTimeout - через сколько секунд без обращений сектор выгружается.
	UnusedSectorTimeout float32
}

// Client - подключение одного игрока. Методы безопасны для вызова из
// разных горутин, но Step рассчитан на один цикл.
type Client struct {
	opts Options
	log  *logging.Logger
	con  *network.Connection

	mu      sync.Mutex
	env     *environment.Environment
	cmap    *world.ClientMap
	player  *environment.Player
	version uint8
	// everConnected - сервер хоть раз выдал нам peer id.
	everConnected    bool
	inventoryUpdated bool

	initTimer      float32
	playerPosTimer float32
	rttTimer       float32
	unloadTimer    float32
}

// New создаёт клиента. Сокет открывается в Connect.
func New(opts Options) *Client {
	if opts.UnusedSectorTimeout <= 0 {
		opts.UnusedSectorTimeout = defaultUnusedSectorTO
	}
	cmap := world.NewClientMap()
	c := &Client{
		opts:    opts,
		log:     logging.GetClientLogger(),
		cmap:    cmap,
		env:     environment.New(cmap),
		player:  environment.NewLocalPlayer(opts.Name),
		version: serialize.VersionInvalid,
	}
	c.env.AddPlayer(c.player)
	c.con = network.NewConnection(opts.Network, nil)
	return c
}

// Connect начинает подключение к address ("host:port").
func (c *Client) Connect(address string) error {
	c.log.Info("🔌 Connecting to %s as %s", address, c.opts.Name)
	return c.con.Connect(address)
}

// Close закрывает сокет.
func (c *Client) Close() error { return c.con.Close() }

// Connected сообщает, выдал ли сервер peer id.
func (c *Client) Connected() bool { return c.con.Connected() }

// SerializationVersion возвращает согласованную версию формата или
// serialize.VersionInvalid до получения TOCLIENT_INIT.
func (c *Client) SerializationVersion() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Position возвращает положение локального игрока.
func (c *Client) Position() vec.V3F {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Position()
}

// SetControl задаёт управление локальным игроком.
func (c *Client) SetControl(ctrl environment.Control) {
	c.mu.Lock()
	c.player.Control = ctrl
	c.mu.Unlock()
}

// GetNode возвращает узел из кэша карты.
func (c *Client) GetNode(p vec.V3S16) (node.MapNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmap.GetNode(p)
}

// BlockCount возвращает число блоков в кэше.
func (c *Client) BlockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmap.BlockCount()
}

// PlayerNames возвращает имена удалённых игроков по peer id.
func (c *Client) PlayerNames() map[uint16]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint16]string)
	for _, p := range c.env.Players() {
		if !p.IsLocal() {
			out[p.PeerID] = p.Name()
		}
	}
	return out
}

// InventoryUpdated сообщает, пришёл ли новый инвентарь, и сбрасывает флаг.
func (c *Client) InventoryUpdated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.inventoryUpdated
	c.inventoryUpdated = false
	return u
}

// InventoryText возвращает сериализованный инвентарь игрока.
func (c *Client) InventoryText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.player.Inventory.Serialize())
}

// Step продвигает клиента на dtime секунд и обрабатывает всё, что
// пришло от сервера. Возвращает ErrServerLost, когда сервер пропал.
func (c *Client) Step(dtime float32) error {
	if dtime > maxStepDtime {
		dtime = maxStepDtime
	}

	c.con.RunTimeouts(dtime)
	connected := c.con.Connected()

	// После таймаута или DISCO пир сервера исчезает из таблицы
	if c.everConnected && len(c.con.Peers()) == 0 {
		return ErrServerLost
	}

	c.mu.Lock()
	if connected {
		c.everConnected = true
		if c.player.PeerID == 0 {
			c.player.PeerID = c.con.GetPeerID()
		}
	}

	c.unloadTimer += dtime
	if c.unloadTimer >= unloadCheckInterval {
		c.unloadTimer = 0
		c.deleteUnusedSectorsLocked()
	}

	if connected && c.version == serialize.VersionInvalid {
		c.initTimer -= dtime
		if c.initTimer <= 0 {
			c.initTimer = initResendInterval
			hello := (&protocol.Hello{MaxVersion: serialize.VersionHighest, Name: c.opts.Name}).Encode()
			if err := c.con.Send(network.PeerIDServer, protocol.ChannelDefault, hello, false); err != nil {
				c.log.Warn("send INIT: %v", err)
			}
		}
	}

	c.player.ApplyControl(dtime)
	c.env.Step(dtime)

	if connected && c.version != serialize.VersionInvalid {
		c.playerPosTimer += dtime
		if c.playerPosTimer >= playerPosInterval {
			c.playerPosTimer = 0
			c.sendPlayerPosLocked()
		}
	}
	c.mu.Unlock()

	c.rttTimer += dtime
	if c.rttTimer >= rttLogInterval {
		c.rttTimer = 0
		for _, p := range c.con.Peers() {
			c.log.Info("avg_rtt=%.3f peer_id=%d", p.AvgRTT, p.ID)
		}
	}

	return c.receiveAll()
}

func (c *Client) receiveAll() error {
	for {
		peerID, data, err := c.con.Receive()
		switch {
		case err == nil:
			if err := c.ProcessData(data, peerID); err != nil {
				c.log.LogProtocolError("server", err, data)
			}
		case errors.Is(err, network.ErrNoIncomingData):
			return nil
		case errors.Is(err, network.ErrInvalidIncomingData):
			c.log.Debug("invalid packet: %v", err)
		case errors.Is(err, network.ErrPeerNotFound):
			c.log.Debug("packet from unknown peer: %v", err)
		case errors.Is(err, network.ErrConnectionClosed):
			return ErrServerLost
		default:
			return err
		}
	}
}

// deleteUnusedSectorsLocked выгружает давно не используемые секторы и
// сообщает серверу о забытых блоках.
func (c *Client) deleteUnusedSectorsLocked() {
	own := vec.NodeToBlock(vec.FloatToInt(c.player.Position())).XZ()
	deleted := c.cmap.UnloadUnusedSectors(c.opts.UnusedSectorTimeout, func(s *world.Sector) bool {
		return s.Pos() == own
	})
	if len(deleted) == 0 {
		return
	}
	c.log.Info("🧹 Unloaded %d unused blocks", len(deleted))
	msgs := (&protocol.BlockList{Command: protocol.ToServerDeletedBlocks, Blocks: deleted}).Encode()
	for _, msg := range msgs {
		if err := c.con.Send(network.PeerIDServer, protocol.ChannelBlocks, msg, true); err != nil {
			c.log.Warn("send DELETEDBLOCKS: %v", err)
		}
	}
}

func (c *Client) sendPlayerPosLocked() {
	pp := &protocol.PlayerPos{
		Pos:   c.player.Position(),
		Speed: c.player.Speed(),
		Pitch: c.player.Pitch(),
		Yaw:   c.player.Yaw(),
	}
	if err := c.con.Send(network.PeerIDServer, protocol.ChannelDefault, pp.Encode(), false); err != nil {
		c.log.Debug("send PLAYERPOS: %v", err)
	}
}

// ClickGround копает (ButtonDig) или ставит (ButtonPlace) узел.
func (c *Client) ClickGround(button uint8, under, over vec.V3S16, itemIndex uint16) error {
	msg := (&protocol.ClickGround{Button: button, Under: under, Over: over, ItemIndex: itemIndex}).Encode()
	return c.con.Send(network.PeerIDServer, protocol.ChannelDefault, msg, true)
}

// ClickObject сообщает о клике по объекту блока.
func (c *Client) ClickObject(button uint8, block vec.V3S16, objectID int16, itemIndex uint16) error {
	msg := (&protocol.ClickObject{Button: button, Block: block, ObjectID: objectID, ItemIndex: itemIndex}).Encode()
	return c.con.Send(network.PeerIDServer, protocol.ChannelDefault, msg, true)
}

// SendSignText меняет текст таблички.
func (c *Client) SendSignText(block vec.V3S16, objectID int16, text string) error {
	msg := (&protocol.SignText{Block: block, ObjectID: objectID, Text: text}).Encode()
	return c.con.Send(network.PeerIDServer, protocol.ChannelDefault, msg, true)
}

// ProcessData обрабатывает одно сообщение сервера.
func (c *Client) ProcessData(data []byte, peerID uint16) error {
	if peerID != network.PeerIDServer {
		c.log.Warn("ignoring data from peer_id=%d", peerID)
		return nil
	}
	cmd, err := protocol.ReadCommand(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd == protocol.ToClientInit {
		return c.handleInit(data)
	}
	if c.version == serialize.VersionInvalid {
		c.log.Info("ignoring %s before INIT", protocol.ToClientName(cmd))
		return nil
	}

	switch cmd {
	case protocol.ToClientBlockData:
		bd, err := protocol.DecodeBlockData(data)
		if err != nil {
			return err
		}
		block, needLighting, err := c.cmap.ReceiveBlock(bd.Pos, bd.Data, c.version)
		if err != nil {
			return fmt.Errorf("block %v: %w", bd.Pos, err)
		}
		if needLighting {
			c.cmap.UpdateLighting(map[vec.V3S16]*world.MapBlock{bd.Pos: block})
		}
		got := (&protocol.BlockList{Command: protocol.ToServerGotBlocks, Blocks: []vec.V3S16{bd.Pos}}).Encode()
		return c.con.Send(network.PeerIDServer, protocol.ChannelBlocks, got[0], true)
	case protocol.ToClientAddNode:
		an, err := protocol.DecodeAddNode(data, c.version)
		if err != nil {
			return err
		}
		if _, err := c.cmap.AddNodeAndUpdate(an.Pos, an.Node); err != nil {
			c.log.Debug("ADDNODE %v: %v", an.Pos, err)
		}
	case protocol.ToClientRemoveNode:
		rn, err := protocol.DecodeRemoveNode(data)
		if err != nil {
			return err
		}
		if _, err := c.cmap.RemoveNodeAndUpdate(rn.Pos); err != nil {
			c.log.Debug("REMOVENODE %v: %v", rn.Pos, err)
		}
	case protocol.ToClientPlayerInfo:
		pi, err := protocol.DecodePlayerInfo(data)
		if err != nil {
			return err
		}
		c.updatePlayersLocked(pi)
	case protocol.ToClientInventory:
		inv, err := protocol.DecodeInventory(data)
		if err != nil {
			return err
		}
		if err := c.player.Inventory.Deserialize(inv.Data); err != nil {
			return err
		}
		c.inventoryUpdated = true
	case protocol.ToClientObjectData:
		od, err := protocol.DecodeObjectData(data)
		if err != nil {
			return err
		}
		for _, st := range od.Players {
			if st.PeerID == c.player.PeerID {
				continue
			}
			p := c.env.Player(st.PeerID)
			if p == nil {
				continue
			}
			p.SetPosition(st.Pos)
			p.SetSpeed(st.Speed)
			p.SetPitch(st.Pitch)
			p.SetYaw(st.Yaw)
		}
	case protocol.ToClientSectorMeta:
		sm, err := protocol.DecodeSectorMeta(data)
		if err != nil {
			return err
		}
		c.log.Debug("SECTORMETA with %d sectors ignored", len(sm.Sectors))
	default:
		c.log.Warn("unknown command 0x%02x", uint16(cmd))
	}
	return nil
}

// handleInit принимает версию формата и точку появления, отвечает INIT2.
func (c *Client) handleInit(data []byte) error {
	m, hasSpawn, err := protocol.DecodeInit(data)
	if err != nil {
		return err
	}
	// Сервер повторяет INIT, пока не дойдёт INIT2; INIT2 уже в надёжном канале.
	if c.version != serialize.VersionInvalid {
		c.log.Debug("repeated INIT ignored: version=%d", m.Version)
		return nil
	}
	if err := serialize.CheckVersion(m.Version); err != nil {
		return err
	}
	c.version = m.Version

	spawn := vec.New3(0, vec.BS*2+vec.BS*20, 0)
	if hasSpawn {
		spawn = m.Spawn
	}
	c.player.SetPosition(vec.IntToFloat(spawn).Sub(vec.V3F{Y: vec.BS / 2}))
	c.log.Info("✅ INIT received: version=%d spawn=%v", m.Version, spawn)

	return c.con.Send(network.PeerIDServer, protocol.ChannelBlocks, protocol.EncodeInit2(), true)
}

// updatePlayersLocked приводит список удалённых игроков к присланному.
func (c *Client) updatePlayersLocked(pi *protocol.PlayerInfo) {
	listed := make(map[uint16]bool, len(pi.Players))
	for _, e := range pi.Players {
		if e.PeerID == c.player.PeerID {
			continue
		}
		listed[e.PeerID] = true
		if p := c.env.Player(e.PeerID); p != nil {
			p.SetName(e.Name)
			continue
		}
		p := environment.NewRemotePlayer(e.PeerID)
		p.SetName(e.Name)
		c.env.AddPlayer(p)
	}
	for _, p := range c.env.Players() {
		if !p.IsLocal() && !listed[p.PeerID] {
			c.env.RemovePlayer(p.PeerID)
		}
	}
}
