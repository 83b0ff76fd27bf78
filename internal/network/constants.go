// Package network реализует надёжный транспорт поверх UDP.
//
// Каждый пакет начинается с заголовка
//
//	[0] u32 protocol_id
//	[4] u16 sender_peer_id
//	[6] u8  channel
//
// за которым идёт тело одного из типов: CONTROL, ORIGINAL, SPLIT или
// RELIABLE. RELIABLE оборачивает ORIGINAL, SPLIT или CONTROL и несёт
// 16-битный номер, по которому получатель подтверждает доставку.
package network

import "time"

// ProtocolID по умолчанию.
const ProtocolID uint32 = 0x4f457403

const (
	// PeerIDInexistent - id ещё не назначен.
	PeerIDInexistent uint16 = 0
	// PeerIDServer - id сервера на стороне клиента.
	PeerIDServer uint16 = 1
	// firstClientPeerID - первый id, выдаваемый клиенту.
	firstClientPeerID uint16 = 2
)

const (
	// ChannelCount - число независимых каналов у каждого пира.
	ChannelCount = 3
	// SeqnumInitial - первый номер надёжного пакета (близко к переполнению).
	SeqnumInitial uint16 = 65500
	// MaxPacketSize по умолчанию.
	MaxPacketSize = 512
	// MaxIncomingReliables - сколько надёжных пакетов, пришедших раньше
	// очереди, канал держит в буфере.
	MaxIncomingReliables = 1024
)

const (
	BaseHeaderSize     = 7
	ReliableHeaderSize = 3
	SplitHeaderSize    = 7
	controlHeaderSize  = 2
)

// Типы пакетов.
const (
	TypeControl  uint8 = 0
	TypeOriginal uint8 = 1
	TypeSplit    uint8 = 2
	TypeReliable uint8 = 3
)

// Подтипы CONTROL.
const (
	ControlAck       uint8 = 0
	ControlSetPeerID uint8 = 1
	ControlPing      uint8 = 2
	ControlDisco     uint8 = 3
)

// Таймеры по умолчанию.
const (
	DefaultPeerTimeout      = 30 * time.Second
	DefaultResendTimeout    = 500 * time.Millisecond
	DefaultMaxResendTimeout = 3 * time.Second
	DefaultPingInterval     = 5 * time.Second
	DefaultSplitTimeout     = 30 * time.Second
	DefaultReceiveTimeout   = 100 * time.Millisecond
)
