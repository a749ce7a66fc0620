package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"go.uber.org/zap"
)

// triggerMessage — payload канала RedisChanScanTrigger.
// Пустое сообщение означает плановый прогон по всем хозяйствам.
type triggerMessage struct {
	TenantID string `json:"tenant_id"`
	DryRun   bool   `json:"dry_run"`
}

func parseTrigger(payload string) (ScanRequest, error) {
	req := ScanRequest{TriggerSource: domain.TriggerScheduled}
	if payload == "" {
		return req, nil
	}
	var msg triggerMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return req, fmt.Errorf("invalid trigger payload: %w", err)
	}
	req.TenantID, req.DryRun = msg.TenantID, msg.DryRun
	return req, nil
}

// StartScanTriggers запускает ListenScanTriggers в фоне. Канал done закрывается,
// когда слушатель вышел и последний начатый прогон доработал: до этого нельзя
// закрывать пул и Redis.
func StartScanTriggers(ctx context.Context, rdb *redis.Client, logger *zap.Logger, onTrigger func(ctx context.Context, req ScanRequest)) (done <-chan struct{}) {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ListenScanTriggers(ctx, rdb, logger, onTrigger)
	}()
	return ch
}

// ListenScanTriggers — живучая подписка на плановые запуски (cron публикует в Redis).
// Переподключается после обрыва, прогоны выполняет синхронно по одному.
func ListenScanTriggers(ctx context.Context, rdb *redis.Client, logger *zap.Logger, onTrigger func(ctx context.Context, req ScanRequest)) {
	log := logger.With(zap.String("chan", infra.RedisChanScanTrigger))
	for {
		pubsub := rdb.Subscribe(ctx, infra.RedisChanScanTrigger)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to subscribe", zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}
		log.Info("scan trigger listener subscribed")

		stopped := consumeTriggers(ctx, pubsub.Channel(), log, onTrigger)
		_ = pubsub.Close()
		if stopped || !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// consumeTriggers разбирает сообщения до отмены ctx (true) или закрытия канала (false).
// Прогон выполняется в этой же горутине, так что возврат значит: прогонов в полете нет.
func consumeTriggers(ctx context.Context, ch <-chan *redis.Message, log *zap.Logger, onTrigger func(ctx context.Context, req ScanRequest)) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-ch:
			if !ok {
				return false // Канал закрыт, идем на переподключение
			}

			req, err := parseTrigger(msg.Payload)
			if err != nil {
				log.Error("scan trigger rejected", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			onTrigger(ctx, req)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
