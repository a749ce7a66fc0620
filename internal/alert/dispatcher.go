package alert

import (
	"context"

	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

// Channel — один способ доставки дайджеста людям.
// Ненастроенный канал возвращает Delivery{Sent: false, Reason: "not configured"} без ошибки.
type Channel interface {
	Kind() domain.ChannelKind
	Provider() string
	Send(ctx context.Context, subject, body string) (domain.Delivery, error)
}

// Report — итог доставки по каждому каналу
type Report map[domain.ChannelKind]domain.Delivery

// For возвращает доставку канала; отсутствующий канал считается ненастроенным
func (r Report) For(kind domain.ChannelKind) domain.Delivery {
	if d, ok := r[kind]; ok {
		return d
	}
	return domain.Delivery{Sent: false, Provider: string(kind), Reason: domain.ReasonNotConfigured}
}

type Dispatcher struct {
	channels  []Channel
	limit     int
	descLimit int
	logger    *zap.Logger
}

func NewDispatcher(logger *zap.Logger, limit, descLimit int, channels ...Channel) *Dispatcher {
	if limit <= 0 {
		limit = DefaultTopN
	}
	if descLimit <= 0 {
		descLimit = DefaultDescriptionLimit
	}
	return &Dispatcher{
		channels:  channels,
		limit:     limit,
		descLimit: descLimit,
		logger:    logger.Named("alert"),
	}
}

// Notify рассылает дайджест во все каналы независимо.
// Ошибка одного канала фиксируется в его Delivery и не мешает остальным.
func (d *Dispatcher) Notify(ctx context.Context, items []domain.Arising, findingCount int, dryRun bool) Report {
	report := make(Report, len(d.channels))

	// 1. Подавление: dry-run и пустой прогон
	var reason string
	switch {
	case dryRun:
		reason = domain.ReasonDryRun
	case len(items) == 0:
		reason = domain.ReasonNothingNew
	}
	if reason != "" {
		for _, ch := range d.channels {
			report[ch.Kind()] = domain.Delivery{Sent: false, Provider: ch.Provider(), Reason: reason}
		}
		return report
	}

	// 2. Один дайджест на все каналы
	digest := Render(findingCount, items, d.limit, d.descLimit)

	for _, ch := range d.channels {
		delivery, err := ch.Send(ctx, digest.Subject, digest.Body)
		if err != nil {
			d.logger.Warn("notification failed",
				zap.String("channel", string(ch.Kind())),
				zap.String("provider", ch.Provider()),
				zap.Error(err))
			delivery = domain.Delivery{Sent: false, Provider: ch.Provider(), Reason: err.Error()}
		}
		report[ch.Kind()] = delivery
	}
	return report
}
