package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"go.uber.org/zap"
)

func TestChannels_OnePerKind(t *testing.T) {
	a := &App{
		Config:  &infra.Config{Engine: infra.EngineConfig{NotifyRate: 1, NotifyAttempts: 2, SendTimeout: time.Second}},
		Logger:  zap.NewNop(),
		Metrics: engine.NewMetrics(nil),
	}

	chs := a.channels()

	require.Len(t, chs, 2)
	assert.Equal(t, domain.ChannelEmail, chs[0].Kind())
	assert.Equal(t, domain.ChannelWhatsApp, chs[1].Kind())

	// Без настроек каналы честно отвечают "не настроен", сеть не трогают
	for _, ch := range chs {
		d, err := ch.Send(context.Background(), "s", "b")
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonNotConfigured, d.Reason)
	}
}

func TestDiscardRecorders(t *testing.T) {
	var runs discardRuns
	assert.NoError(t, runs.StartRun(context.Background(), &domain.AgentRun{ID: "r"}))
	assert.NoError(t, runs.FinishRun(context.Background(), "r", domain.RunSuccess, nil, "", time.Now()))
	assert.NoError(t, discardJournal{}.Record(context.Background(), []domain.AgentFinding{{ID: "f"}}))
}

func TestClose_NilResources(t *testing.T) {
	a := &App{Logger: zap.NewNop()}
	assert.NotPanics(t, a.Close)
}
