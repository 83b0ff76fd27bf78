package server

import (
	"context"
	"errors"

	"github.com/annel0/voxel-core/internal/emerge"
	"github.com/annel0/voxel-core/internal/eventbus"
	"github.com/annel0/voxel-core/internal/world"
)

// emergeThread разбирает очередь emerge, пока её будят TriggerEmerge.
func (s *Server) emergeThread(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.emergeTrigger:
		}
		for ctx.Err() == nil {
			req := s.emergeQueue.Pop()
			if req == nil {
				break
			}
			s.emergeOne(req)
		}
	}
}

// emergeOne загружает или генерирует один блок и сбрасывает статус
// отправки затронутых блоков у всех клиентов.
func (s *Server) emergeOne(req *emerge.Request) {
	optional := req.Optional()
	modified := make(world.BlockSet)

	s.envMu.Lock()
	block, changed, lightingInvalidated, err := s.smap.EmergeBlock(req.Pos, optional)
	got := err == nil && block != nil && !block.IsDummy()
	if got {
		modified.Merge(s.smap.UpdateLighting(lightingInvalidated))
		modified.Merge(changed)
	}
	s.envMu.Unlock()

	switch {
	case errors.Is(err, world.ErrInvalidPosition):
		s.log.Debug("emerge %v: %v", req.Pos, err)
		s.metrics.emergeResult("missing")
	case err != nil:
		s.log.Warn("emerge %v failed: %v", req.Pos, err)
		s.metrics.emergeResult("missing")
	case !got:
		s.metrics.emergeResult("missing")
	case len(changed) > 0:
		s.metrics.emergeResult("generated")
	default:
		s.metrics.emergeResult("loaded")
	}

	if got {
		modified.Add(req.Pos)
	}
	// Пустой набор не трогает клиентов: промах не сбрасывает курсор.
	if len(modified) > 0 {
		s.conMu.Lock()
		for _, c := range s.clients {
			c.SetBlocksNotSent(modified)
		}
		s.conMu.Unlock()
	}

	if got {
		pos := req.Pos
		s.queueEmerged(eventbus.BlockEvent{X: pos.X, Y: pos.Y, Z: pos.Z, Generated: len(changed) > 0})
	}
}

func (s *Server) queueEmerged(payload eventbus.BlockEvent) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("server", eventbus.TypeBlockEmerged, eventbus.PriorityLow, payload)
	if err != nil {
		s.log.Warn("event %s: %v", eventbus.TypeBlockEmerged, err)
		return
	}
	s.publish(ev)
}
