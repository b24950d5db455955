package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/timeframe"
)

func pairsWithBase(label string) []domain.SymbolTimeframeConfig {
	return []domain.SymbolTimeframeConfig{{Symbol: "KRW-BTC", Base: timeframe.MustParse(label)}}
}

// Seed scenario 6 from spec.md §8.
func TestDeriveCron(t *testing.T) {
	expr, err := deriveCron(pairsWithBase("15m"))
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", expr)

	expr, err = deriveCron(pairsWithBase("60m"))
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", expr)

	expr, err = deriveCron(pairsWithBase("240m"))
	require.NoError(t, err)
	assert.Equal(t, "0 */4 * * *", expr)

	_, err = deriveCron(pairsWithBase("1d"))
	assert.Error(t, err)
}

func TestDeriveCron_PicksMinimumAcrossPairs(t *testing.T) {
	pairs := []domain.SymbolTimeframeConfig{
		{Symbol: "KRW-BTC", Base: timeframe.MustParse("60m")},
		{Symbol: "KRW-ETH", Base: timeframe.MustParse("15m")},
	}
	expr, err := deriveCron(pairs)
	require.NoError(t, err)
	assert.Equal(t, "*/15 * * * *", expr)
}

func TestRequireReady_ClosedUntilInitialCycle(t *testing.T) {
	s := New(noopRunner{}, pairsWithBase("15m"), 0)
	assert.Error(t, s.RequireReady())
	s.ready.Store(true)
	assert.NoError(t, s.RequireReady())
}

type noopRunner struct{}

func (noopRunner) RunCycle(ctx context.Context, cfg domain.SymbolTimeframeConfig) error {
	return nil
}
