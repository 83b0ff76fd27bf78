package network

import (
	"net"

	"github.com/annel0/voxel-core/internal/serialize"
)

// bufferedPacket - готовый к отправке пакет вместе с адресом и таймерами.
type bufferedPacket struct {
	address *net.UDPAddr
	data    []byte

	// time - секунд с последней отправки, totalTime - с первой.
	time      float32
	totalTime float32
	// resendTimeout растёт вдвое после каждой переотправки.
	resendTimeout float32
}

// makePacket добавляет к data внешний заголовок.
func makePacket(address *net.UDPAddr, data []byte, protocolID uint32, senderPeerID uint16, channel uint8) *bufferedPacket {
	buf := make([]byte, BaseHeaderSize+len(data))
	serialize.WriteU32(buf[0:], protocolID)
	serialize.WriteU16(buf[4:], senderPeerID)
	serialize.WriteU8(buf[6:], channel)
	copy(buf[BaseHeaderSize:], data)
	return &bufferedPacket{address: address, data: buf}
}

func makeOriginalPacket(data []byte) []byte {
	buf := make([]byte, 1+len(data))
	buf[0] = TypeOriginal
	copy(buf[1:], data)
	return buf
}

// makeSplitPacket режет data на фрагменты не длиннее chunkSizeMax
// вместе с заголовком SPLIT.
func makeSplitPacket(data []byte, chunkSizeMax int, seqnum uint16) [][]byte {
	payload := chunkSizeMax - SplitHeaderSize
	count := (len(data) + payload - 1) / payload
	chunks := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start := i * payload
		end := start + payload
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, SplitHeaderSize+end-start)
		chunk[0] = TypeSplit
		serialize.WriteU16(chunk[1:], seqnum)
		serialize.WriteU16(chunk[3:], uint16(i))
		serialize.WriteU16(chunk[5:], uint16(count))
		copy(chunk[SplitHeaderSize:], data[start:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}

// makeAutoSplitPacket возвращает один ORIGINAL или набор SPLIT-фрагментов.
// splitSeqnum увеличивается только если сообщение пришлось резать.
func makeAutoSplitPacket(data []byte, chunkSizeMax int, splitSeqnum *uint16) [][]byte {
	if len(data)+1 <= chunkSizeMax {
		return [][]byte{makeOriginalPacket(data)}
	}
	chunks := makeSplitPacket(data, chunkSizeMax, *splitSeqnum)
	*splitSeqnum++
	return chunks
}

// makeReliablePacket оборачивает data в RELIABLE с номером seqnum.
func makeReliablePacket(data []byte, seqnum uint16) []byte {
	buf := make([]byte, ReliableHeaderSize+len(data))
	buf[0] = TypeReliable
	serialize.WriteU16(buf[1:], seqnum)
	copy(buf[ReliableHeaderSize:], data)
	return buf
}

func makeControlPacket(controlType uint8, arg []byte) []byte {
	buf := make([]byte, controlHeaderSize+len(arg))
	buf[0] = TypeControl
	buf[1] = controlType
	copy(buf[controlHeaderSize:], arg)
	return buf
}

func makeAckPacket(seqnum uint16) []byte {
	var b [2]byte
	serialize.WriteU16(b[:], seqnum)
	return makeControlPacket(ControlAck, b[:])
}

// seqnumHigher сообщает, идёт ли a после b с учётом переполнения.
func seqnumHigher(a, b uint16) bool {
	d := a - b
	return d > 0 && d < 0x8000
}
