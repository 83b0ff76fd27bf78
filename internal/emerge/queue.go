// Package emerge содержит очередь блоков, ожидающих загрузки или генерации.
package emerge

import (
	"sync"

	"github.com/annel0/voxel-core/internal/vec"
)

// FlagOptional: блок нужен запросившему, только если он уже есть на диске.
const FlagOptional uint8 = 0x01

// Request - одна позиция в очереди и флаги каждого запросившего клиента.
type Request struct {
	Pos vec.V3S16
	// Peers - peer id -> флаги. Запросы с peer id 0 (серверные) сюда не попадают.
	Peers map[uint16]uint8
}

// Optional сообщает, можно ли ограничиться диском: все запросившие
// согласны на отсутствие блока. Запрос без клиентов тоже необязателен.
func (r *Request) Optional() bool {
	for _, flags := range r.Peers {
		if flags&FlagOptional == 0 {
			return false
		}
	}
	return true
}

// Queue - FIFO позиций без дубликатов. Потокобезопасна: клиенты
// добавляют блоки под conMu, поток загрузки забирает их без блокировок мира.
type Queue struct {
	mu    sync.Mutex
	order []*Request
	byPos map[vec.V3S16]*Request
}

// NewQueue создаёт пустую очередь.
func NewQueue() *Queue {
	return &Queue{byPos: make(map[vec.V3S16]*Request)}
}

// AddBlock ставит позицию в очередь. Если позиция уже ждёт загрузки,
// к ней добавляется запросивший клиент. Повторный запрос того же клиента
// заменяет его флаги.
func (q *Queue) AddBlock(peerID uint16, pos vec.V3S16, flags uint8) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.byPos[pos]
	if !ok {
		r = &Request{Pos: pos, Peers: make(map[uint16]uint8)}
		q.byPos[pos] = r
		q.order = append(q.order, r)
	}
	if peerID == 0 {
		return
	}
	r.Peers[peerID] = flags
}

// Pop извлекает самый старый запрос или nil, если очередь пуста.
func (q *Queue) Pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.order) == 0 {
		return nil
	}
	r := q.order[0]
	q.order[0] = nil
	q.order = q.order[1:]
	delete(q.byPos, r.Pos)
	return r
}

// Len возвращает количество позиций в очереди.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// PeerItemCount возвращает количество позиций, запрошенных клиентом.
func (q *Queue) PeerItemCount(peerID uint16) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, r := range q.order {
		if _, ok := r.Peers[peerID]; ok {
			n++
		}
	}
	return n
}

// RemovePeer забывает клиента во всех запросах. Сами позиции остаются
// в очереди и будут загружены для остальных.
func (q *Queue) RemovePeer(peerID uint16) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, r := range q.order {
		delete(r.Peers, peerID)
	}
}
