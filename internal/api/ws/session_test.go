package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
)

func TestTrySendDropsWhenOutboxFull(t *testing.T) {
	metrics := monitoring.NewMetrics()
	s := &session{
		out:     make(chan outbound, 1),
		done:    make(chan struct{}),
		logger:  zap.NewNop(),
		metrics: metrics,
	}

	s.trySend(FrameDiagnostic, DiagnosticFrame{Type: FrameDiagnostic, Message: "first"})

	sent := make(chan struct{})
	go func() {
		s.trySend(FrameDiagnostic, DiagnosticFrame{Type: FrameDiagnostic, Message: "second"})
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("trySend blocked on a full outbox")
	}

	assert.Len(t, s.out, 1)
	assert.Contains(t, string((<-s.out).data), "first")
	assert.Equal(t, float64(1), wsCount(t, metrics, "dropped"))
}

func wsCount(t *testing.T, metrics *monitoring.Metrics, direction string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != "grpcbridge_ws_messages_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "direction" && label.GetValue() == direction {
					total += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}
