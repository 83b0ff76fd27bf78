// Package environment - карта и игроки вместе, продвижение мира во времени.
package environment

import (
	"fmt"
	"math"
	"sort"

	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// Map - то, что окружению нужно от карты. ServerMap и ClientMap подходят.
type Map interface {
	GetNode(p vec.V3S16) (node.MapNode, bool)
	SetNode(p vec.V3S16, n node.MapNode) bool
	TimerUpdate(dtime float32)
}

// Environment хранит карту и игроков. Не синхронизирован: владелец
// держит мировую блокировку (envMu).
type Environment struct {
	m       Map
	players map[uint16]*Player
	local   *Player
}

// New создаёт окружение поверх карты.
func New(m Map) *Environment {
	return &Environment{m: m, players: make(map[uint16]*Player)}
}

// Map возвращает карту окружения.
func (e *Environment) Map() Map { return e.m }

// AddPlayer добавляет игрока. Повторный peer id или второй локальный
// игрок означают ошибку в программе.
func (e *Environment) AddPlayer(p *Player) {
	if p.IsLocal() {
		if e.local != nil {
			panic("environment: second local player")
		}
		e.local = p
		return
	}
	if _, ok := e.players[p.PeerID]; ok {
		panic(fmt.Sprintf("environment: player %d already exists", p.PeerID))
	}
	e.players[p.PeerID] = p
}

// RemovePlayer удаляет удалённого игрока.
func (e *Environment) RemovePlayer(peerID uint16) {
	delete(e.players, peerID)
}

// LocalPlayer возвращает локального игрока или nil.
func (e *Environment) LocalPlayer() *Player { return e.local }

// Player возвращает игрока по peer id, включая локального.
func (e *Environment) Player(peerID uint16) *Player {
	if e.local != nil && peerID != 0 && e.local.PeerID == peerID {
		return e.local
	}
	return e.players[peerID]
}

// Players возвращает всех игроков, упорядоченных по peer id.
// Локальный игрок идёт первым.
func (e *Environment) Players() []*Player {
	out := make([]*Player, 0, len(e.players)+1)
	if e.local != nil {
		out = append(out, e.local)
	}
	ids := make([]uint16, 0, len(e.players))
	for id := range e.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, e.players[id])
	}
	return out
}

// Step продвигает мир на dtime секунд: таймеры карты, гравитацию для
// локального игрока, движение игроков и следы на траве.
func (e *Environment) Step(dtime float32) {
	e.m.TimerUpdate(dtime)

	players := e.Players()
	maxSpeed := float32(0.001)
	for _, p := range players {
		if s := p.Speed().Length(); s > maxSpeed {
			maxSpeed = s
		}
	}
	// Не больше 0.1 узла за шаг и не больше 10 мс
	maxIncrement := float32(0.1*vec.BS) / maxSpeed
	if maxIncrement > 0.01 {
		maxIncrement = 0.01
	}
	if dtime > 0.5 {
		dtime = 0.5
	}

	for {
		part := float32(math.Min(float64(dtime), float64(maxIncrement)))
		dtime -= part
		for _, p := range players {
			if p.IsLocal() {
				s := p.Speed()
				s.Y -= gravity * part
				p.SetSpeed(s)
			}
			p.Move(part, e.m)
			e.stampFootsteps(p)
		}
		if dtime <= 0.001 {
			break
		}
	}
}

// stampFootsteps превращает траву под игроком в протоптанную.
func (e *Environment) stampFootsteps(p *Player) {
	bottom := vec.FloatToInt(p.Position().Add(vec.V3F{Y: -vec.BS / 4.0}))
	n, ok := e.m.GetNode(bottom)
	if !ok || n.Material != node.Grass {
		return
	}
	n.Material = node.GrassFootsteps
	e.m.SetNode(bottom, n)
}
