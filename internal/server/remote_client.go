package server

import (
	"fmt"
	"io"
	"sync"

	"github.com/annel0/voxel-core/internal/config"
	"github.com/annel0/voxel-core/internal/emerge"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/vec"
	"github.com/annel0/voxel-core/internal/world"
)

// BlockTransfer - кандидат на отправку блока. Меньший Priority важнее.
type BlockTransfer struct {
	Priority float32
	Pos      vec.V3S16
	PeerID   uint16
}

// BlockLookup - доступ к загруженным блокам карты.
type BlockLookup interface {
	GetBlockNoCreate(p vec.V3S16) (*world.MapBlock, error)
}

// EmergeRequester принимает запросы на загрузку или генерацию блока.
type EmergeRequester interface {
	PeerItemCount(peerID uint16) int
	AddBlock(peerID uint16, pos vec.V3S16, flags uint8)
}

// RemoteClient - состояние рассылки блоков одному клиенту.
//
// Экземпляр принадлежит таблице клиентов сервера и доступен только под
// conMu; sentMu и sendingMu берутся уже внутри conMu, всегда в порядке
// sendingMu, затем sentMu.
type RemoteClient struct {
	PeerID uint16
	// SerializationVersion - версия формата для этого клиента.
	// VersionInvalid до получения INIT2.
	SerializationVersion uint8
	// PendingSerializationVersion хранит версию между INIT и INIT2.
	PendingSerializationVersion uint8

	sched *config.SchedulingConfig

	sentMu             sync.Mutex
	blocksSent         map[vec.V3S16]struct{}
	nearestUnsentD     int16
	lastCenter         vec.V3S16
	nearestUnsentTimer float32

	sendingMu     sync.Mutex
	blocksSending map[vec.V3S16]float32

	buildingMu       sync.Mutex
	timeFromBuilding float32
}

// NewRemoteClient создаёт клиента с неизвестной версией формата.
func NewRemoteClient(peerID uint16, sched *config.SchedulingConfig) *RemoteClient {
	return &RemoteClient{
		PeerID:                      peerID,
		SerializationVersion:        serialize.VersionInvalid,
		PendingSerializationVersion: serialize.VersionInvalid,
		sched:                       sched,
		blocksSent:                  make(map[vec.V3S16]struct{}),
		blocksSending:               make(map[vec.V3S16]float32),
	}
}

// GetNextBlocks выбирает блоки для отправки клиенту, стоящему в playerPos.
//
// Обход идёт по оболочкам расстояния d от сохранённого курсора до
// max_block_send_distance. Отсутствующие блоки ставятся в очередь emerge
// (не больше одного запроса на клиента), найденные возвращаются как
// кандидаты. Кандидаты вместе с блоками в пути не превышают лимит
// одновременных отправок.
func (c *RemoteClient) GetNextBlocks(dtime float32, playerPos vec.V3F, blocks BlockLookup,
	queue EmergeRequester, trigger func()) []BlockTransfer {
	sending := c.SendingCount()
	limitSetting := c.sched.MaxBlockSendsPerClient
	if sending >= limitSetting {
		return nil
	}

	center := vec.NodeToBlock(vec.FloatToInt(playerPos))

	c.sentMu.Lock()
	if c.lastCenter != center {
		c.nearestUnsentD = 0
		c.lastCenter = center
	}
	c.nearestUnsentTimer += dtime
	if c.nearestUnsentTimer > float32(c.sched.NearestUnsentResetInterval) {
		c.nearestUnsentTimer = 0
		c.nearestUnsentD = 0
	}
	lastNearestUnsentD := c.nearestUnsentD
	dStart := c.nearestUnsentD
	c.sentMu.Unlock()

	// Пока игрок строит, отправляем меньше
	limit := limitSetting
	c.buildingMu.Lock()
	c.timeFromBuilding += dtime
	if c.timeFromBuilding < float32(c.sched.FullSendMinTimeFromBuilding) {
		limit = c.sched.LimitedMaxBlockSends
	}
	c.buildingMu.Unlock()

	dMax := int16(c.sched.MaxBlockSendDistance)
	dMaxGen := int16(c.sched.MaxBlockGenerateDistance)

	var dest []BlockTransfer
	for d := dStart; d <= dMax; d++ {
		c.sentMu.Lock()
		// SetBlockNotSent из потока emerge мог сбросить курсор: он важнее
		if c.nearestUnsentD != lastNearestUnsentD {
			d = c.nearestUnsentD
		} else {
			c.nearestUnsentD = d
		}
		lastNearestUnsentD = c.nearestUnsentD
		c.sentMu.Unlock()

		limitNow := limit
		if int(d) <= c.sched.DisableLimitsMaxD {
			limitNow = limitSetting
		}

		for _, rel := range vec.FacePositions(d) {
			p := rel.Add(center)

			c.sendingMu.Lock()
			inFlight := len(c.blocksSending)
			_, isSending := c.blocksSending[p]
			c.sendingMu.Unlock()

			if inFlight+len(dest) >= limitNow {
				return dest
			}
			if isSending {
				continue
			}
			if world.BlockPosOverLimit(p) {
				continue
			}

			generate := d <= dMaxGen
			// По вертикали генерируем вдвое ближе
			if abs16(p.Y-center.Y) > dMaxGen/2 {
				generate = false
			}

			c.sentMu.Lock()
			_, sent := c.blocksSent[p]
			c.sentMu.Unlock()
			if sent {
				continue
			}

			block, _ := blocks.GetBlockNoCreate(p)
			surelyNotOnDisk := block != nil && block.IsDummy()

			if !generate && surelyNotOnDisk {
				continue
			}

			if block == nil || surelyNotOnDisk {
				if queue.PeerItemCount(c.PeerID) < 1 {
					var flags uint8
					if !generate {
						flags |= emerge.FlagOptional
					}
					queue.AddBlock(c.PeerID, p, flags)
					if trigger != nil {
						trigger()
					}
				}
				continue
			}

			dest = append(dest, BlockTransfer{Priority: float32(d), Pos: p, PeerID: c.PeerID})
		}
	}
	return dest
}

// GotBlock отмечает блок как полученный клиентом.
func (c *RemoteClient) GotBlock(p vec.V3S16) bool {
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	c.sentMu.Lock()
	defer c.sentMu.Unlock()

	_, wasSending := c.blocksSending[p]
	delete(c.blocksSending, p)
	c.blocksSent[p] = struct{}{}
	return wasSending
}

// SentBlock отмечает блок как отправленный и ещё не подтверждённый.
// Возвращает false, если блок уже был в пути.
func (c *RemoteClient) SentBlock(p vec.V3S16) bool {
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	if _, ok := c.blocksSending[p]; ok {
		return false
	}
	c.blocksSending[p] = 0
	return true
}

// SetBlockNotSent забывает, что блок был отправлен, и сбрасывает курсор.
func (c *RemoteClient) SetBlockNotSent(p vec.V3S16) {
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	c.sentMu.Lock()
	defer c.sentMu.Unlock()

	c.nearestUnsentD = 0
	delete(c.blocksSending, p)
	delete(c.blocksSent, p)
}

// SetBlocksNotSent - SetBlockNotSent для набора блоков.
func (c *RemoteClient) SetBlocksNotSent(blocks world.BlockSet) {
	if len(blocks) == 0 {
		return
	}
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	c.sentMu.Lock()
	defer c.sentMu.Unlock()

	c.nearestUnsentD = 0
	for p := range blocks {
		delete(c.blocksSending, p)
		delete(c.blocksSent, p)
	}
}

// SendingCount возвращает число блоков в пути.
func (c *RemoteClient) SendingCount() int {
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	return len(c.blocksSending)
}

// SentCount возвращает число блоков, подтверждённых клиентом.
func (c *RemoteClient) SentCount() int {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	return len(c.blocksSent)
}

// WasSent сообщает, есть ли блок у клиента.
func (c *RemoteClient) WasSent(p vec.V3S16) bool {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	_, ok := c.blocksSent[p]
	return ok
}

// NearestUnsentD возвращает текущий курсор обхода.
func (c *RemoteClient) NearestUnsentD() int16 {
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	return c.nearestUnsentD
}

// ResetTimeFromBuilding вызывается, когда игрок ставит или убирает узел.
func (c *RemoteClient) ResetTimeFromBuilding() {
	c.buildingMu.Lock()
	c.timeFromBuilding = 0
	c.buildingMu.Unlock()
}

// PrintInfo пишет однострочную сводку о клиенте.
func (c *RemoteClient) PrintInfo(w io.Writer) {
	c.sendingMu.Lock()
	defer c.sendingMu.Unlock()
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	fmt.Fprintf(w, "RemoteClient %d: blocks_sent=%d blocks_sending=%d nearest_unsent_d=%d\n",
		c.PeerID, len(c.blocksSent), len(c.blocksSending), c.nearestUnsentD)
}

func abs16(a int16) int16 {
	if a < 0 {
		return -a
	}
	return a
}
