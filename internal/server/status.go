package server

import (
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/voxel-core/internal/network"
	"github.com/annel0/voxel-core/internal/vec"
)

// Status - сводка состояния сервера для admin API.
type Status struct {
	WorldID     string                  `json:"world_id"`
	Seed        int64                   `json:"seed"`
	Uptime      time.Duration           `json:"-"`
	Clients     int                     `json:"clients"`
	Sectors     int                     `json:"loaded_sectors"`
	Blocks      int                     `json:"loaded_blocks"`
	EmergeQueue int                     `json:"emerge_queue"`
	Network     network.ConnectionStats `json:"network"`
}

// PlayerStatus - состояние одного подключённого игрока.
type PlayerStatus struct {
	PeerID        uint16  `json:"peer_id"`
	Name          string  `json:"name"`
	Position      vec.V3F `json:"pos"`
	Version       uint8   `json:"serialization_version"`
	BlocksSent    int     `json:"blocks_sent"`
	BlocksSending int     `json:"blocks_sending"`
	Address       string  `json:"address,omitempty"`
	AvgRTT        float32 `json:"avg_rtt"`
}

// Status возвращает сводку состояния.
func (s *Server) Status() Status {
	st := Status{
		WorldID:     s.meta.ID.String(),
		Seed:        s.meta.Seed,
		EmergeQueue: s.emergeQueue.Len(),
		Network:     s.con.Stats(),
	}
	if !s.startedAt.IsZero() {
		st.Uptime = time.Since(s.startedAt)
	}

	s.envMu.Lock()
	st.Sectors = s.smap.SectorCount()
	st.Blocks = s.smap.BlockCount()
	s.envMu.Unlock()

	s.conMu.Lock()
	st.Clients = len(s.clients)
	s.conMu.Unlock()
	return st
}

// Players возвращает подключённых игроков по возрастанию peer id.
func (s *Server) Players() []PlayerStatus {
	peers := make(map[uint16]network.PeerInfo)
	for _, p := range s.con.Peers() {
		peers[p.ID] = p
	}

	s.envMu.Lock()
	defer s.envMu.Unlock()
	s.conMu.Lock()
	defer s.conMu.Unlock()

	out := make([]PlayerStatus, 0, len(s.clients))
	for _, id := range s.clientIDsLocked() {
		c := s.clients[id]
		ps := PlayerStatus{
			PeerID:        id,
			Version:       c.SerializationVersion,
			BlocksSent:    c.SentCount(),
			BlocksSending: c.SendingCount(),
		}
		if p := s.env.Player(id); p != nil {
			ps.Name = p.Name()
			ps.Position = p.Position()
		}
		if info, ok := peers[id]; ok {
			ps.Address = info.Address
			ps.AvgRTT = info.AvgRTT
		}
		out = append(out, ps)
	}
	return out
}

// Save записывает все изменённые блоки. Возвращает их число.
func (s *Server) Save() (int, error) {
	s.envMu.Lock()
	n, err := s.smap.Save(true)
	s.envMu.Unlock()
	s.metrics.saved(n)
	return n, err
}

// Kick отключает клиента. Игрок удаляется потоком сервера.
func (s *Server) Kick(peerID uint16) error {
	return s.con.DisconnectPeer(peerID)
}

// ProcessUsage возвращает загрузку CPU процессом в процентах и RSS в мегабайтах.
func ProcessUsage() (cpuPercent, rssMB float64, err error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return cpuPercent, 0, err
	}
	return cpuPercent, float64(mem.RSS) / 1024 / 1024, nil
}

// printInfo пишет в лог загрузку процесса и строку о каждом клиенте.
func (s *Server) printInfo() {
	if cpu, rss, err := ProcessUsage(); err == nil {
		s.log.Info("process: cpu=%.1f%% rss=%.1fMB", cpu, rss)
	}

	s.conMu.Lock()
	defer s.conMu.Unlock()
	for _, id := range s.clientIDsLocked() {
		var b strings.Builder
		s.clients[id].PrintInfo(&b)
		s.log.Info("%s", strings.TrimSpace(b.String()))
	}
}
