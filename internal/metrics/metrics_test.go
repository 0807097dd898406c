package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skoll/internal/engine"
)

type fixedStats engine.Stats

func (s fixedStats) Stats() engine.Stats { return engine.Stats(s) }

type fixedGateway struct{ sessions, pending int }

func (g fixedGateway) Sessions() int { return g.sessions }
func (g fixedGateway) Pending() int { return g.pending }

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[family.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := fixedStats{Requests: 10, Trades: 4, Rejected: 2, QueueFull: 1, QueueDepth: 3}
	require.NoError(t, Register(reg, stats, fixedGateway{sessions: 5, pending: 2}))

	assert.Equal(t, map[string]float64{
		"skoll_engine_requests_total":    10,
		"skoll_engine_trades_total":      4,
		"skoll_engine_rejected_total":    2,
		"skoll_engine_queue_full_total":  1,
		"skoll_engine_queue_depth":       3,
		"skoll_gateway_sessions":         5,
		"skoll_gateway_pending_sessions": 2,
	}, gather(t, reg))

	// Registering twice is refused.
	assert.Error(t, Register(reg, stats, nil))
}

func TestRegister_WithoutGateway(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, fixedStats{}, nil))
	assert.NotContains(t, gather(t, reg), "skoll_gateway_sessions")
}
