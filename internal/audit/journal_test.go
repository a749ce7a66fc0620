package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"go.uber.org/zap"
)

type recordingWriter struct {
	batches [][]domain.AgentFinding
	failAt  int // Номер вызова (с 1), на котором вернуть err
	err     error
}

func (w *recordingWriter) WriteBatch(ctx context.Context, rows []domain.AgentFinding) error {
	cp := make([]domain.AgentFinding, len(rows))
	copy(cp, rows)
	w.batches = append(w.batches, cp)
	if w.err != nil && len(w.batches) >= w.failAt {
		return w.err
	}
	return nil
}

func (w *recordingWriter) total() int {
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func rows(n int) []domain.AgentFinding {
	out := make([]domain.AgentFinding, n)
	for i := range out {
		out[i] = domain.AgentFinding{
			ID:        fmt.Sprintf("f-%d", i),
			RunID:     "run-1",
			TenantID:  "t1",
			Rule:      domain.RuleNegativeInventory,
			EntityKey: fmt.Sprintf("store:item-%d", i),
			Severity:  domain.SeverityMedium,
		}
	}
	return out
}

func TestJournal_WritesEveryRowInBatches(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 100, nil, zap.NewNop())

	require.NoError(t, j.Record(context.Background(), rows(3000)))

	assert.Equal(t, 3000, w.total())
	assert.Len(t, w.batches, 30)
	for _, b := range w.batches {
		assert.LessOrEqual(t, len(b), 100)
	}
}

func TestJournal_StampsObservedAt(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 0, nil, zap.NewNop())

	require.NoError(t, j.Record(context.Background(), rows(1)))

	require.Len(t, w.batches, 1)
	assert.False(t, w.batches[0][0].ObservedAt.IsZero())
}

func TestJournal_EmptyIsNoop(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, 10, nil, zap.NewNop())

	require.NoError(t, j.Record(context.Background(), nil))
	assert.Empty(t, w.batches)
}

func TestJournal_WriteErrorIsReturned(t *testing.T) {
	cause := errors.New("connection reset")
	w := &recordingWriter{err: cause, failAt: 2}
	j := NewJournal(w, 10, nil, zap.NewNop())

	err := j.Record(context.Background(), rows(35))

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "10-20 of 35")
	assert.Len(t, w.batches, 2, "no writes after the first failure")
}
