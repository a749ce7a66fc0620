package engine

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

func TestParseTrigger(t *testing.T) {
	req, err := parseTrigger("")
	require.NoError(t, err)
	assert.Equal(t, ScanRequest{TriggerSource: domain.TriggerScheduled}, req)

	req, err = parseTrigger(`{"tenant_id":"t1","dry_run":true}`)
	require.NoError(t, err)
	assert.Equal(t, ScanRequest{TriggerSource: domain.TriggerScheduled, TenantID: "t1", DryRun: true}, req)

	_, err = parseTrigger("t1:true")
	assert.Error(t, err)
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}

func TestConsumeTriggers_ReturnsAfterInflightRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan *redis.Message, 2)
	ch <- &redis.Message{Payload: "garbage"}
	ch <- &redis.Message{Payload: `{"tenant_id":"t1"}`}

	started, finish := make(chan struct{}), make(chan struct{})
	var got []ScanRequest
	returned := make(chan bool, 1)
	go func() {
		returned <- consumeTriggers(ctx, ch, zap.NewNop(), func(ctx context.Context, req ScanRequest) {
			got = append(got, req)
			close(started)
			<-finish
		})
	}()

	<-started
	cancel()
	select {
	case <-returned:
		t.Fatal("consumer returned while a scan was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	select {
	case stopped := <-returned:
		assert.True(t, stopped)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TenantID)
}

func TestConsumeTriggers_ClosedChannel(t *testing.T) {
	ch := make(chan *redis.Message)
	close(ch)
	assert.False(t, consumeTriggers(context.Background(), ch, zap.NewNop(), func(context.Context, ScanRequest) {
		t.Fatal("no scan expected")
	}))
}

func TestStartScanTriggers_DoneAfterCancel(t *testing.T) {
	// Redis недоступен: слушатель висит в ретраях подписки, пока не отменят ctx
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := StartScanTriggers(ctx, rdb, zap.NewNop(), func(context.Context, ScanRequest) {})

	select {
	case <-done:
		t.Fatal("listener exited before cancel")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after cancel")
	}
}
