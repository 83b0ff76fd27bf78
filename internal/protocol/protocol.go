// Package protocol кодирует прикладные сообщения клиента и сервера.
//
// Каждое сообщение начинается с u16 идентификатора команды, далее идут
// поля в big-endian. Позиции и скорости игроков передаются как int32*100.
package protocol

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-core/internal/serialize"
)

// Command - идентификатор прикладного сообщения.
type Command uint16

// Сервер -> клиент
const (
	ToClientInit       Command = 0x10
	ToClientBlockData  Command = 0x20
	ToClientAddNode    Command = 0x21
	ToClientRemoveNode Command = 0x22
	ToClientPlayerPos  Command = 0x23
	ToClientPlayerInfo Command = 0x24
	// 0x25 зарезервирован
	ToClientSectorMeta Command = 0x26
	ToClientInventory  Command = 0x27
	ToClientObjectData Command = 0x28
)

// Клиент -> сервер
const (
	ToServerInit                 Command = 0x10
	ToServerInit2                Command = 0x11
	ToServerGetBlock             Command = 0x20
	ToServerAddNode              Command = 0x21
	ToServerRemoveNode           Command = 0x22
	ToServerPlayerPos            Command = 0x23
	ToServerGotBlocks            Command = 0x24
	ToServerDeletedBlocks        Command = 0x25
	ToServerAddNodeFromInventory Command = 0x26
	ToServerClickObject          Command = 0x27
	ToServerClickGround          Command = 0x28
	ToServerRelease              Command = 0x29
	ToServerSignText             Command = 0x30
)

// GetBlockFlagOptional: блок нужен, только если он есть на диске.
const GetBlockFlagOptional uint8 = 0x01

// PlayerNameSize - длина имени игрока на проводе, включая завершающий ноль.
const PlayerNameSize = 20

// Channels
const (
	ChannelDefault uint8 = 0
	ChannelBlocks  uint8 = 1
)

// ErrInvalidMessage - сообщение обрезано или имеет неверный формат.
var ErrInvalidMessage = errors.New("protocol: invalid message")

var toServerNames = map[Command]string{
	ToServerInit:                 "INIT",
	ToServerInit2:                "INIT2",
	ToServerGetBlock:             "GETBLOCK",
	ToServerAddNode:              "ADDNODE",
	ToServerRemoveNode:           "REMOVENODE",
	ToServerPlayerPos:            "PLAYERPOS",
	ToServerGotBlocks:            "GOTBLOCKS",
	ToServerDeletedBlocks:        "DELETEDBLOCKS",
	ToServerAddNodeFromInventory: "ADDNODE_FROM_INVENTORY",
	ToServerClickObject:          "CLICK_OBJECT",
	ToServerClickGround:          "CLICK_GROUND",
	ToServerRelease:              "RELEASE",
	ToServerSignText:             "SIGNTEXT",
}

var toClientNames = map[Command]string{
	ToClientInit:       "INIT",
	ToClientBlockData:  "BLOCKDATA",
	ToClientAddNode:    "ADDNODE",
	ToClientRemoveNode: "REMOVENODE",
	ToClientPlayerPos:  "PLAYERPOS",
	ToClientPlayerInfo: "PLAYERINFO",
	ToClientSectorMeta: "SECTORMETA",
	ToClientInventory:  "INVENTORY",
	ToClientObjectData: "OBJECTDATA",
}

// ToServerName возвращает имя команды клиента для логов.
func ToServerName(c Command) string {
	if s, ok := toServerNames[c]; ok {
		return "TOSERVER_" + s
	}
	return fmt.Sprintf("TOSERVER_0x%02x", uint16(c))
}

// ToClientName возвращает имя команды сервера для логов.
func ToClientName(c Command) string {
	if s, ok := toClientNames[c]; ok {
		return "TOCLIENT_" + s
	}
	return fmt.Sprintf("TOCLIENT_0x%02x", uint16(c))
}

// ReadCommand возвращает идентификатор команды сообщения.
func ReadCommand(data []byte) (Command, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidMessage, len(data))
	}
	return Command(serialize.ReadU16(data)), nil
}

func newMessage(c Command) *serialize.Writer {
	w := &serialize.Writer{}
	w.U16(uint16(c))
	return w
}

// body возвращает Reader, стоящий сразу за идентификатором команды.
func body(data []byte, want Command) (*serialize.Reader, error) {
	c, err := ReadCommand(data)
	if err != nil {
		return nil, err
	}
	if c != want {
		return nil, fmt.Errorf("%w: command 0x%02x, want 0x%02x", ErrInvalidMessage, uint16(c), uint16(want))
	}
	return serialize.NewReader(data[2:]), nil
}

func finish(r *serialize.Reader, what string) error {
	if err := r.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, what, err)
	}
	return nil
}
