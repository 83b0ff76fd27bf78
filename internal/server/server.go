// Package server - авторитетный сервер мира: принимает клиентов по
// надёжному UDP, обрабатывает их команды, загружает и генерирует блоки
// в отдельном потоке и рассылает их клиентам по расписанию.
//
// Блокировки: envMu (карта и игроки) всегда берётся раньше conMu
// (таблица клиентов и отправка). Поток emerge берёт их по очереди,
// никогда не держа обе сразу.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-core/internal/config"
	"github.com/annel0/voxel-core/internal/emerge"
	"github.com/annel0/voxel-core/internal/environment"
	"github.com/annel0/voxel-core/internal/eventbus"
	"github.com/annel0/voxel-core/internal/logging"
	"github.com/annel0/voxel-core/internal/network"
	"github.com/annel0/voxel-core/internal/serialize"
	"github.com/annel0/voxel-core/internal/storage"
	"github.com/annel0/voxel-core/internal/world"
)

// ErrInvalidData - клиент прислал сообщение, которое нельзя обработать.
var ErrInvalidData = errors.New("server: invalid data from client")

// StepInterval - период вызова Step из Run.
const StepInterval = 30 * time.Millisecond

// maxStepDtime ограничивает один шаг после долгой паузы.
const maxStepDtime = 2.0

type peerEvent struct {
	peerID  uint16
	added   bool
	timeout bool
}

// peerEvents копит уведомления соединения. Соединение вызывает их под
// своей блокировкой, поэтому здесь только очередь; обработка идёт в
// потоке сервера под envMu и conMu.
type peerEvents struct {
	mu     sync.Mutex
	events []peerEvent
}

func (q *peerEvents) PeerAdded(peerID uint16) {
	q.mu.Lock()
	q.events = append(q.events, peerEvent{peerID: peerID, added: true})
	q.mu.Unlock()
}

func (q *peerEvents) DeletingPeer(peerID uint16, timeout bool) {
	q.mu.Lock()
	q.events = append(q.events, peerEvent{peerID: peerID, timeout: timeout})
	q.mu.Unlock()
}

func (q *peerEvents) take() []peerEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev := q.events
	q.events = nil
	return ev
}

// Server - игровой сервер.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	bus     eventbus.EventBus
	metrics *Metrics
	meta    *storage.WorldMeta

	envMu sync.Mutex
	env   *environment.Environment
	smap  *world.ServerMap

	conMu   sync.Mutex
	con     *network.Connection
	clients map[uint16]*RemoteClient
	// outbox - события, накопленные под conMu; публикуются после разблокировки.
	outbox []*eventbus.Envelope

	peerEvents    *peerEvents
	emergeQueue   *emerge.Queue
	emergeTrigger chan struct{}

	stepMu    sync.Mutex
	stepDtime float32

	// Таймеры AsyncRunStep, трогает только поток сервера
	infoTimer       float32
	objectDataTimer float32
	emergeTimer     float32
	saveTimer       float32

	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New создаёт сервер поверх хранилища. Если gen равен nil, используется
// генератор рельефа с зерном мира. bus и reg могут быть nil.
func New(cfg *config.Config, store storage.BlockStore, gen world.Generator,
	bus eventbus.EventBus, reg prometheus.Registerer) (*Server, error) {
	meta, err := loadWorldMeta(store, cfg.World.Seed)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		gen = world.NewHeightmapGenerator(meta.Seed)
	}

	smap := world.NewServerMap(store, gen)
	s := &Server{
		cfg:           cfg,
		log:           logging.GetServerLogger(),
		bus:           bus,
		metrics:       NewMetrics(reg),
		meta:          meta,
		env:           environment.New(smap),
		smap:          smap,
		clients:       make(map[uint16]*RemoteClient),
		peerEvents:    &peerEvents{},
		emergeQueue:   emerge.NewQueue(),
		emergeTrigger: make(chan struct{}, 1),
	}

	opts := cfg.Network.Options()
	if reg != nil {
		opts.Metrics = network.NewMetrics(reg)
	}
	s.con = network.NewConnection(opts, s.peerEvents)
	return s, nil
}

func loadWorldMeta(store storage.BlockStore, seed int64) (*storage.WorldMeta, error) {
	meta, err := store.LoadWorldMeta()
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load world meta: %w", err)
	}
	meta = storage.NewWorldMeta(seed, serialize.VersionHighest)
	if err := store.SaveWorldMeta(meta); err != nil {
		return nil, fmt.Errorf("save world meta: %w", err)
	}
	return meta, nil
}

// WorldMeta возвращает метаданные мира.
func (s *Server) WorldMeta() *storage.WorldMeta { return s.meta }

// Start открывает UDP-порт и запускает поток сервера и поток emerge.
// Порт 0 выбирает свободный порт. Шаги мира подаёт Step или Run.
func (s *Server) Start(ctx context.Context, port int) error {
	if err := s.con.Serve(port); err != nil {
		return err
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.startedAt = time.Now()

	s.wg.Add(2)
	go s.serverThread(ctx)
	go s.emergeThread(ctx)

	s.log.Info("🚀 Server started: udp=%s world=%s seed=%d", s.con.LocalAddr(), s.meta.ID, s.meta.Seed)
	return nil
}

// Stop останавливает потоки, закрывает сокет и сохраняет изменённые блоки.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	closeErr := s.con.Close()
	s.wg.Wait()

	s.envMu.Lock()
	n, err := s.smap.Save(true)
	s.envMu.Unlock()
	s.metrics.saved(n)
	s.log.Info("🛑 Server stopped, saved %d blocks", n)
	return errors.Join(closeErr, err)
}

// LocalAddr возвращает адрес UDP-сокета.
func (s *Server) LocalAddr() *net.UDPAddr { return s.con.LocalAddr() }

// Step накапливает dtime для следующего AsyncRunStep.
func (s *Server) Step(dtime float32) {
	if dtime > maxStepDtime {
		dtime = maxStepDtime
	}
	s.stepMu.Lock()
	s.stepDtime += dtime
	s.stepMu.Unlock()
}

// TriggerEmerge будит поток emerge. Не блокирует.
func (s *Server) TriggerEmerge() {
	select {
	case s.emergeTrigger <- struct{}{}:
	default:
	}
}

// Run вызывает Step каждые StepInterval, пока ctx не отменён.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(StepInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(float32(now.Sub(last).Seconds()))
			last = now
		}
	}
}

func (s *Server) serverThread(ctx context.Context) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		s.AsyncRunStep()

		peerID, data, err := s.con.Receive()
		s.handlePeerEvents()
		switch {
		case err == nil:
			if err := s.ProcessData(data, peerID); err != nil {
				s.log.LogProtocolError(fmt.Sprintf("peer_id=%d", peerID), err, data)
			}
			s.flushEvents()
		case errors.Is(err, network.ErrNoIncomingData):
		case errors.Is(err, network.ErrInvalidIncomingData):
			s.log.Debug("invalid packet from peer_id=%d: %v", peerID, err)
		case errors.Is(err, network.ErrPeerNotFound):
			s.log.Debug("packet from unknown peer: %v", err)
		case errors.Is(err, network.ErrConnectionClosed):
			return
		default:
			s.log.Error("receive: %v", err)
		}
	}
}

// AsyncRunStep выполняет накопленную работу: шаг мира, таймауты сети,
// рассылку положений и блоков, запуск emerge и сохранение.
func (s *Server) AsyncRunStep() {
	s.stepMu.Lock()
	dtime := s.stepDtime
	if dtime < 0.001 {
		s.stepMu.Unlock()
		return
	}
	s.stepDtime -= dtime
	s.stepMu.Unlock()

	start := time.Now()
	defer func() { s.metrics.tick(time.Since(start).Seconds()) }()

	sched := &s.cfg.Scheduling

	s.infoTimer += dtime
	if s.infoTimer >= float32(sched.ClientInfoInterval) {
		s.infoTimer = 0
		s.printInfo()
	}

	s.envMu.Lock()
	s.env.Step(dtime)
	s.envMu.Unlock()

	s.envMu.Lock()
	s.conMu.Lock()
	s.con.RunTimeouts(dtime)
	s.handlePeerEventsLocked()
	s.conMu.Unlock()
	s.envMu.Unlock()
	s.flushEvents()

	s.objectDataTimer += dtime
	if s.objectDataTimer >= float32(sched.ObjectDataInterval) {
		s.objectDataTimer = 0
		s.SendObjectData()
	}

	s.SendBlocks(dtime)

	s.emergeTimer += dtime
	if s.emergeTimer >= float32(sched.EmergeTriggerInterval) {
		s.emergeTimer = 0
		s.TriggerEmerge()
	}

	s.saveTimer += dtime
	if s.saveTimer >= float32(s.cfg.Server.SaveInterval) {
		s.saveTimer = 0
		s.envMu.Lock()
		n, err := s.smap.Save(true)
		s.envMu.Unlock()
		if err != nil {
			s.log.Error("save failed: %v", err)
		} else if n > 0 {
			s.log.Info("💾 Saved %d blocks", n)
		}
		s.metrics.saved(n)
	}

	s.conMu.Lock()
	s.metrics.setClients(len(s.clients))
	s.conMu.Unlock()
	s.metrics.setEmergeQueue(s.emergeQueue.Len())
}

func (s *Server) handlePeerEvents() {
	s.envMu.Lock()
	s.conMu.Lock()
	s.handlePeerEventsLocked()
	s.conMu.Unlock()
	s.envMu.Unlock()
	s.flushEvents()
}

// handlePeerEventsLocked требует envMu и conMu.
func (s *Server) handlePeerEventsLocked() {
	for _, ev := range s.peerEvents.take() {
		if ev.added {
			s.peerAdded(ev.peerID)
		} else {
			s.deletingPeer(ev.peerID, ev.timeout)
		}
	}
}

// queueEvent требует conMu.
func (s *Server) queueEvent(typ string, priority int, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("server", typ, priority, payload)
	if err != nil {
		s.log.Warn("event %s: %v", typ, err)
		return
	}
	s.outbox = append(s.outbox, ev)
}

func (s *Server) flushEvents() {
	s.conMu.Lock()
	out := s.outbox
	s.outbox = nil
	s.conMu.Unlock()
	for _, ev := range out {
		s.publish(ev)
	}
}

func (s *Server) publish(ev *eventbus.Envelope) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), ev); err != nil && !errors.Is(err, eventbus.ErrClosed) {
		s.log.Warn("publish %s: %v", ev.EventType, err)
	}
}
