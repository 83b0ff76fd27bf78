package eventbus

import (
	"context"
	"errors"
)

// multiBus публикует в основную шину и во все дополнительные.
// Подписка и метрики берутся только у основной.
type multiBus struct {
	primary EventBus
	sinks   []EventBus
}

// NewMultiBus объединяет шины: например, in-memory для подписчиков
// внутри процесса и JetStream для внешних потребителей.
func NewMultiBus(primary EventBus, sinks ...EventBus) EventBus {
	return &multiBus{primary: primary, sinks: sinks}
}

func (m *multiBus) Publish(ctx context.Context, ev *Envelope) error {
	errs := []error{m.primary.Publish(ctx, ev)}
	for _, s := range m.sinks {
		errs = append(errs, s.Publish(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m *multiBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	return m.primary.Subscribe(ctx, f, h)
}

func (m *multiBus) Metrics() Stats { return m.primary.Metrics() }

func (m *multiBus) Close() error {
	errs := []error{m.primary.Close()}
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
