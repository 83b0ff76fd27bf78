package eventbus

import (
	"context"

	"github.com/annel0/voxel-core/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог
// компонента eventbus. Функция неблокирующая.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	log := logging.GetComponentLogger("eventbus")
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		log.Debug("Event: id=%s type=%s src=%s prio=%d payload=%s", ev.ID, ev.EventType, ev.Source, ev.Priority, ev.Payload)
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 Logging listener subscribed to all events")
	return sub, nil
}
