package environment

import (
	"github.com/annel0/voxel-core/internal/inventory"
	"github.com/annel0/voxel-core/internal/physics"
	"github.com/annel0/voxel-core/internal/protocol"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// Константы управления
const (
	walkAcceleration = 4.0 * vec.BS
	walkSpeedMax     = 4.0 * vec.BS
	jumpSpeed        = 6.5 * vec.BS
	gravity          = 9.81 * vec.BS * 2
)

// Control - состояние управления локальным игроком.
type Control struct {
	Up, Down, Left, Right bool
	Jump                  bool
	Superspeed            bool
	Pitch, Yaw            float32
}

// Player - игрок в окружении. Локальный игрок на клиенте один и проходит
// через проверку столкновений; удалённые просто двигаются со своей скоростью.
type Player struct {
	PeerID    uint16
	Inventory *inventory.Inventory
	Control   Control

	name           string
	local          bool
	position       vec.V3F
	speed          vec.V3F
	pitch, yaw     float32
	touchingGround bool
}

// NewRemotePlayer создаёт игрока, которым управляет другая сторона.
func NewRemotePlayer(peerID uint16) *Player {
	return newPlayer(peerID, false)
}

// NewLocalPlayer создаёт игрока, которым управляет этот процесс.
func NewLocalPlayer(name string) *Player {
	p := newPlayer(0, true)
	p.SetName(name)
	return p
}

func newPlayer(peerID uint16, local bool) *Player {
	return &Player{
		PeerID:    peerID,
		Inventory: inventory.New(inventory.PlayerSize),
		name:      "<not set>",
		local:     local,
	}
}

func (p *Player) IsLocal() bool { return p.local }

// Name возвращает имя игрока.
func (p *Player) Name() string { return p.name }

// SetName задаёт имя, обрезая его до размера поля в протоколе.
func (p *Player) SetName(name string) {
	if len(name) > protocol.PlayerNameSize-1 {
		name = name[:protocol.PlayerNameSize-1]
	}
	p.name = name
}

func (p *Player) Position() vec.V3F       { return p.position }
func (p *Player) SetPosition(pos vec.V3F) { p.position = pos }
func (p *Player) Speed() vec.V3F          { return p.speed }
func (p *Player) SetSpeed(s vec.V3F)      { p.speed = s }
func (p *Player) Pitch() float32          { return p.pitch }
func (p *Player) SetPitch(a float32)      { p.pitch = a }
func (p *Player) Yaw() float32            { return p.yaw }
func (p *Player) SetYaw(a float32)        { p.yaw = a }
func (p *Player) TouchingGround() bool    { return p.touchingGround }

// State возвращает положение игрока для OBJECTDATA.
func (p *Player) State() protocol.PlayerState {
	return protocol.PlayerState{PeerID: p.PeerID, Pos: p.position, Speed: p.speed, Pitch: p.pitch, Yaw: p.yaw}
}

// Move сдвигает игрока на dtime секунд.
func (p *Player) Move(dtime float32, m Map) {
	oldpos := p.position
	pos := oldpos.Add(p.speed.Mul(dtime))
	if !p.local {
		p.position = pos
		return
	}
	solid := func(np vec.V3S16) bool {
		n, ok := m.GetNode(np)
		// Незагруженная область непроходима
		return !ok || n.Material != node.Air
	}
	p.position, p.speed, p.touchingGround = physics.Collide(oldpos, pos, p.speed, solid)
}

// accelerate приближает горизонтальную скорость к target не более чем на maxIncrease.
func (p *Player) accelerate(target vec.V3F, maxIncrease float32) {
	p.speed.X = approach(p.speed.X, target.X, maxIncrease)
	p.speed.Z = approach(p.speed.Z, target.Z, maxIncrease)
}

func approach(cur, target, step float32) float32 {
	switch {
	case cur < target-step:
		return cur + step
	case cur > target+step:
		return cur - step
	default:
		return target
	}
}

// ApplyControl переводит Control в скорость локального игрока.
func (p *Player) ApplyControl(dtime float32) {
	c := p.Control
	p.pitch = c.Pitch
	p.yaw = c.Yaw

	dir := vec.V3F{Z: 1}.RotateXZBy(p.yaw)
	var speed vec.V3F
	if c.Superspeed {
		speed = speed.Add(dir)
	}
	if c.Up {
		speed = speed.Add(dir)
	}
	if c.Down {
		speed = speed.Sub(dir)
	}
	if c.Left {
		speed = speed.Add(dir.Cross(vec.V3F{Y: 1}))
	}
	if c.Right {
		speed = speed.Add(dir.Cross(vec.V3F{Y: -1}))
	}
	if c.Jump && p.touchingGround {
		p.speed.Y = jumpSpeed
	}

	limit := float32(walkSpeedMax)
	if c.Superspeed {
		limit *= 5
	}
	speed = speed.Normalize().Mul(limit)
	p.accelerate(speed, walkAcceleration*vec.BS*dtime)
}
