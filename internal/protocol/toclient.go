package protocol

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world/node"
)

// Init - ответ на TOSERVER_INIT: согласованная версия формата и точка появления.
type Init struct {
	Version uint8
	Spawn   vec.V3S16
}

func (m *Init) Encode() []byte {
	w := newMessage(ToClientInit)
	w.U8(m.Version)
	w.V3S16(m.Spawn)
	return w.Bytes()
}

// DecodeInit разбирает TOCLIENT_INIT. Старые серверы не присылали
// позицию, тогда HasSpawn = false.
func DecodeInit(data []byte) (m *Init, hasSpawn bool, err error) {
	r, err := body(data, ToClientInit)
	if err != nil {
		return nil, false, err
	}
	m = &Init{Version: r.U8()}
	if r.Remaining() >= 6 {
		m.Spawn = r.V3S16()
		hasSpawn = true
	}
	return m, hasSpawn, finish(r, "INIT")
}

// BlockData несёт сериализованный MapBlock.
type BlockData struct {
	Pos  vec.V3S16
	Data []byte
}

func (m *BlockData) Encode() []byte {
	w := newMessage(ToClientBlockData)
	w.V3S16(m.Pos)
	_, _ = w.Write(m.Data)
	return w.Bytes()
}

func DecodeBlockData(data []byte) (*BlockData, error) {
	r, err := body(data, ToClientBlockData)
	if err != nil {
		return nil, err
	}
	m := &BlockData{Pos: r.V3S16()}
	m.Data = append([]byte(nil), r.Rest()...)
	return m, finish(r, "BLOCKDATA")
}

// AddNode сообщает о поставленном узле.
type AddNode struct {
	Pos  vec.V3S16
	Node node.MapNode
}

// Encode сериализует узел в версии формата клиента.
func (m *AddNode) Encode(version uint8) ([]byte, error) {
	size, err := node.SerializedLength(version)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := m.Node.Serialize(buf, version); err != nil {
		return nil, err
	}
	w := newMessage(ToClientAddNode)
	w.V3S16(m.Pos)
	_, _ = w.Write(buf)
	return w.Bytes(), nil
}

func DecodeAddNode(data []byte, version uint8) (*AddNode, error) {
	r, err := body(data, ToClientAddNode)
	if err != nil {
		return nil, err
	}
	m := &AddNode{Pos: r.V3S16()}
	size, err := node.SerializedLength(version)
	if err != nil {
		return nil, err
	}
	raw := r.Bytes(size)
	if err := finish(r, "ADDNODE"); err != nil {
		return nil, err
	}
	if err := m.Node.Deserialize(raw, version); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveNode сообщает об удалённом узле.
type RemoveNode struct {
	Pos vec.V3S16
}

func (m *RemoveNode) Encode() []byte {
	w := newMessage(ToClientRemoveNode)
	w.V3S16(m.Pos)
	return w.Bytes()
}

func DecodeRemoveNode(data []byte) (*RemoveNode, error) {
	r, err := body(data, ToClientRemoveNode)
	if err != nil {
		return nil, err
	}
	m := &RemoveNode{Pos: r.V3S16()}
	return m, finish(r, "REMOVENODE")
}

// PlayerInfoEntry - id и имя одного игрока.
type PlayerInfoEntry struct {
	PeerID uint16
	Name   string
}

// PlayerInfo - полный список игроков на сервере.
type PlayerInfo struct {
	Players []PlayerInfoEntry
}

func (m *PlayerInfo) Encode() []byte {
	w := newMessage(ToClientPlayerInfo)
	for _, p := range m.Players {
		w.U16(p.PeerID)
		w.FixedString(p.Name, PlayerNameSize)
	}
	return w.Bytes()
}

func DecodePlayerInfo(data []byte) (*PlayerInfo, error) {
	r, err := body(data, ToClientPlayerInfo)
	if err != nil {
		return nil, err
	}
	const entrySize = 2 + PlayerNameSize
	if r.Remaining()%entrySize != 0 {
		return nil, fmt.Errorf("%w: PLAYERINFO body of %d bytes", ErrInvalidMessage, r.Remaining())
	}
	m := &PlayerInfo{}
	for r.Remaining() > 0 {
		e := PlayerInfoEntry{PeerID: r.U16()}
		e.Name = serialize.ReadFixedString(r.Bytes(PlayerNameSize))
		m.Players = append(m.Players, e)
	}
	return m, finish(r, "PLAYERINFO")
}

// Inventory несёт текстовую сериализацию инвентаря.
type Inventory struct {
	Data []byte
}

func (m *Inventory) Encode() []byte {
	w := newMessage(ToClientInventory)
	_, _ = w.Write(m.Data)
	return w.Bytes()
}

func DecodeInventory(data []byte) (*Inventory, error) {
	r, err := body(data, ToClientInventory)
	if err != nil {
		return nil, err
	}
	return &Inventory{Data: append([]byte(nil), r.Rest()...)}, finish(r, "INVENTORY")
}

// SectorMetaEntry - углы карты высот одного сектора.
// Углы идут в порядке (0,0), (1,0), (1,1), (0,1).
type SectorMetaEntry struct {
	Pos     vec.V2S16
	Version uint8
	Corners [4]int16
}

// SectorMeta - устаревшее сообщение, сервер его не шлёт,
// но клиент умеет разбирать.
type SectorMeta struct {
	Sectors []SectorMetaEntry
}

// Encode режет список на сообщения не более чем по 255 секторов.
func (m *SectorMeta) Encode() [][]byte {
	var out [][]byte
	for start := 0; start < len(m.Sectors); start += 255 {
		end := start + 255
		if end > len(m.Sectors) {
			end = len(m.Sectors)
		}
		w := newMessage(ToClientSectorMeta)
		w.U8(uint8(end - start))
		for _, s := range m.Sectors[start:end] {
			w.S16(s.Pos.X)
			w.S16(s.Pos.Y)
			w.U8(s.Version)
			for _, c := range s.Corners {
				w.S16(c)
			}
		}
		out = append(out, w.Bytes())
	}
	return out
}

func DecodeSectorMeta(data []byte) (*SectorMeta, error) {
	r, err := body(data, ToClientSectorMeta)
	if err != nil {
		return nil, err
	}
	count := int(r.U8())
	m := &SectorMeta{Sectors: make([]SectorMetaEntry, 0, count)}
	for i := 0; i < count; i++ {
		var s SectorMetaEntry
		s.Pos.X = r.S16()
		s.Pos.Y = r.S16()
		s.Version = r.U8()
		for j := range s.Corners {
			s.Corners[j] = r.S16()
		}
		m.Sectors = append(m.Sectors, s)
	}
	return m, finish(r, "SECTORMETA")
}

// PlayerState - положение игрока в OBJECTDATA.
type PlayerState struct {
	PeerID uint16
	Pos    vec.V3F
	Speed  vec.V3F
	Pitch  float32
	Yaw    float32
}

// ObjectData - положения игроков. Объекты блоков не передаются,
// счётчик блоков всегда 0.
type ObjectData struct {
	Players []PlayerState
}

func (m *ObjectData) Encode() []byte {
	w := newMessage(ToClientObjectData)
	w.U16(uint16(len(m.Players)))
	for _, p := range m.Players {
		w.U16(p.PeerID)
		w.V3F100(p.Pos)
		w.V3F100(p.Speed)
		w.F100(p.Pitch)
		w.F100(p.Yaw)
	}
	w.U16(0)
	return w.Bytes()
}

func DecodeObjectData(data []byte) (*ObjectData, error) {
	r, err := body(data, ToClientObjectData)
	if err != nil {
		return nil, err
	}
	count := int(r.U16())
	m := &ObjectData{Players: make([]PlayerState, 0, count)}
	for i := 0; i < count && r.Err() == nil; i++ {
		p := PlayerState{PeerID: r.U16()}
		p.Pos = r.V3F100()
		p.Speed = r.V3F100()
		p.Pitch = r.F100()
		p.Yaw = r.F100()
		m.Players = append(m.Players, p)
	}
	// Объекты блоков пропускаются
	_ = r.U16()
	return m, finish(r, "OBJECTDATA")
}
