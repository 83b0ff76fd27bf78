package protocol

import (
	"fmt"

	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
)

// Hello - TOSERVER_INIT: максимальная версия формата клиента и имя игрока.
type Hello struct {
	MaxVersion uint8
	Name       string
}

func (m *Hello) Encode() []byte {
	w := newMessage(ToServerInit)
	w.U8(m.MaxVersion)
	w.FixedString(m.Name, PlayerNameSize)
	return w.Bytes()
}

// DecodeHello разбирает TOSERVER_INIT. Имя необязательно.
func DecodeHello(data []byte) (*Hello, error) {
	r, err := body(data, ToServerInit)
	if err != nil {
		return nil, err
	}
	m := &Hello{MaxVersion: r.U8()}
	if r.Remaining() > 0 {
		n := r.Remaining()
		if n > PlayerNameSize {
			n = PlayerNameSize
		}
		m.Name = serialize.ReadFixedString(r.Bytes(n))
	}
	return m, finish(r, "INIT")
}

// EncodeInit2 собирает TOSERVER_INIT2, у которого нет полей.
func EncodeInit2() []byte {
	return newMessage(ToServerInit2).Bytes()
}

// PlayerPos - положение, скорость и углы камеры игрока.
type PlayerPos struct {
	Pos   vec.V3F
	Speed vec.V3F
	Pitch float32
	Yaw   float32
}

// PlayerPosSize - минимальный размер TOSERVER_PLAYERPOS.
const PlayerPosSize = 2 + 12 + 12 + 4 + 4

func (m *PlayerPos) encode(c Command) []byte {
	w := newMessage(c)
	w.V3F100(m.Pos)
	w.V3F100(m.Speed)
	w.F100(m.Pitch)
	w.F100(m.Yaw)
	return w.Bytes()
}

// Encode собирает TOSERVER_PLAYERPOS.
func (m *PlayerPos) Encode() []byte { return m.encode(ToServerPlayerPos) }

// EncodeToClient собирает TOCLIENT_PLAYERPOS с теми же полями.
func (m *PlayerPos) EncodeToClient() []byte { return m.encode(ToClientPlayerPos) }

func decodePlayerPos(data []byte, c Command) (*PlayerPos, error) {
	if len(data) < PlayerPosSize {
		return nil, fmt.Errorf("%w: PLAYERPOS of %d bytes", ErrInvalidMessage, len(data))
	}
	r, err := body(data, c)
	if err != nil {
		return nil, err
	}
	m := &PlayerPos{Pos: r.V3F100(), Speed: r.V3F100()}
	m.Pitch = r.F100()
	m.Yaw = r.F100()
	return m, finish(r, "PLAYERPOS")
}

func DecodePlayerPos(data []byte) (*PlayerPos, error) {
	return decodePlayerPos(data, ToServerPlayerPos)
}

func DecodeToClientPlayerPos(data []byte) (*PlayerPos, error) {
	return decodePlayerPos(data, ToClientPlayerPos)
}

// BlockList - GOTBLOCKS или DELETEDBLOCKS: список позиций блоков.
type BlockList struct {
	Command Command
	Blocks  []vec.V3S16
}

// MaxBlockListSize - сколько позиций помещается в одно сообщение.
const MaxBlockListSize = 255

// Encode режет список на сообщения по MaxBlockListSize позиций.
func (m *BlockList) Encode() [][]byte {
	var out [][]byte
	for start := 0; start < len(m.Blocks); start += MaxBlockListSize {
		end := start + MaxBlockListSize
		if end > len(m.Blocks) {
			end = len(m.Blocks)
		}
		w := newMessage(m.Command)
		w.U8(uint8(end - start))
		for _, p := range m.Blocks[start:end] {
			w.V3S16(p)
		}
		out = append(out, w.Bytes())
	}
	return out
}

// DecodeBlockList разбирает GOTBLOCKS или DELETEDBLOCKS. Если позиций
// меньше, чем заявлено, возвращается ошибка.
func DecodeBlockList(data []byte) (*BlockList, error) {
	c, err := ReadCommand(data)
	if err != nil {
		return nil, err
	}
	if c != ToServerGotBlocks && c != ToServerDeletedBlocks {
		return nil, fmt.Errorf("%w: command 0x%02x is not a block list", ErrInvalidMessage, uint16(c))
	}
	r := serialize.NewReader(data[2:])
	count := int(r.U8())
	if r.Remaining() < count*6 {
		return nil, fmt.Errorf("%w: %s announces %d blocks, has %d bytes",
			ErrInvalidMessage, ToServerName(c), count, r.Remaining())
	}
	m := &BlockList{Command: c, Blocks: make([]vec.V3S16, 0, count)}
	for i := 0; i < count; i++ {
		m.Blocks = append(m.Blocks, r.V3S16())
	}
	return m, finish(r, ToServerName(c))
}

// Кнопки мыши в CLICK_GROUND и CLICK_OBJECT
const (
	ButtonDig   uint8 = 0
	ButtonPlace uint8 = 1
)

// ClickGround - клик по узлу: копать (0) или ставить из слота (1).
type ClickGround struct {
	Button    uint8
	Under     vec.V3S16
	Over      vec.V3S16
	ItemIndex uint16
}

func (m *ClickGround) Encode() []byte {
	w := newMessage(ToServerClickGround)
	w.U8(m.Button)
	w.V3S16(m.Under)
	w.V3S16(m.Over)
	w.U16(m.ItemIndex)
	return w.Bytes()
}

func DecodeClickGround(data []byte) (*ClickGround, error) {
	r, err := body(data, ToServerClickGround)
	if err != nil {
		return nil, err
	}
	m := &ClickGround{Button: r.U8()}
	m.Under = r.V3S16()
	m.Over = r.V3S16()
	m.ItemIndex = r.U16()
	return m, finish(r, "CLICK_GROUND")
}

// ClickObject - клик по объекту блока.
type ClickObject struct {
	Button    uint8
	Block     vec.V3S16
	ObjectID  int16
	ItemIndex uint16
}

func (m *ClickObject) Encode() []byte {
	w := newMessage(ToServerClickObject)
	w.U8(m.Button)
	w.V3S16(m.Block)
	w.S16(m.ObjectID)
	w.U16(m.ItemIndex)
	return w.Bytes()
}

func DecodeClickObject(data []byte) (*ClickObject, error) {
	r, err := body(data, ToServerClickObject)
	if err != nil {
		return nil, err
	}
	m := &ClickObject{Button: r.U8()}
	m.Block = r.V3S16()
	m.ObjectID = r.S16()
	m.ItemIndex = r.U16()
	return m, finish(r, "CLICK_OBJECT")
}

// SignText - новый текст таблички в объекте блока.
type SignText struct {
	Block    vec.V3S16
	ObjectID int16
	Text     string
}

func (m *SignText) Encode() []byte {
	w := newMessage(ToServerSignText)
	w.V3S16(m.Block)
	w.S16(m.ObjectID)
	w.U16(uint16(len(m.Text)))
	_, _ = w.Write([]byte(m.Text))
	return w.Bytes()
}

func DecodeSignText(data []byte) (*SignText, error) {
	r, err := body(data, ToServerSignText)
	if err != nil {
		return nil, err
	}
	m := &SignText{Block: r.V3S16()}
	m.ObjectID = r.S16()
	n := int(r.U16())
	m.Text = string(r.Bytes(n))
	return m, finish(r, "SIGNTEXT")
}

// EncodeRelease собирает TOSERVER_RELEASE (отпускание кнопки).
func EncodeRelease(button uint8) []byte {
	w := newMessage(ToServerRelease)
	w.U8(button)
	return w.Bytes()
}
