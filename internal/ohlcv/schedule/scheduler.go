// Package schedule derives a cron expression from the smallest base
// timeframe across configured symbols and drives the recurring
// ingestion cycle, gating external requests behind an ingest-ready flag
// until the first cycle completes.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"upbit_ingestor/internal/ohlcv/domain"
	"upbit_ingestor/internal/ohlcv/timeframe"
	"upbit_ingestor/pkg/apperrors"
	"upbit_ingestor/pkg/log"
)

// defaultOffsetSeconds is how long the scheduler waits after each
// boundary fire before running a cycle, to let the exchange settle the
// just-closed bucket.
const defaultOffsetSeconds = 3

// CycleRunner runs one ingestion cycle per configured symbol.
type CycleRunner interface {
	RunCycle(ctx context.Context, cfg domain.SymbolTimeframeConfig) error
}

// Scheduler fires one collection cycle on the boundary of the smallest
// configured base timeframe, plus a settle offset, and runs one
// synchronous cycle at startup.
type Scheduler struct {
	runner  CycleRunner
	pairs   []domain.SymbolTimeframeConfig
	offset  time.Duration
	cron    *cron.Cron
	ready   atomic.Bool
}

// New builds a Scheduler over the configured pairs. offsetSeconds <= 0
// uses the design default of 3.
func New(runner CycleRunner, pairs []domain.SymbolTimeframeConfig, offsetSeconds int) *Scheduler {
	if offsetSeconds <= 0 {
		offsetSeconds = defaultOffsetSeconds
	}
	return &Scheduler{
		runner: runner,
		pairs:  pairs,
		offset: time.Duration(offsetSeconds) * time.Second,
		cron:   cron.New(),
	}
}

// Ready reports whether the initial synchronous cycle has completed;
// the consumer surface rejects requests with ServiceUnavailableError
// while this is false.
func (s *Scheduler) Ready() bool { return s.ready.Load() }

// RequireReady returns ServiceUnavailableError iff the gate is closed.
func (s *Scheduler) RequireReady() error {
	if !s.ready.Load() {
		return apperrors.NewServiceUnavailableError("ingestion has not completed its initial cycle")
	}
	return nil
}

// Start derives the cron schedule from the smallest configured base
// timeframe, runs one synchronous cycle immediately, then begins the
// recurring schedule. It returns a ConfigurationError if the derived
// base timeframe has no supported cron form.
func (s *Scheduler) Start(ctx context.Context) error {
	expr, err := deriveCron(s.pairs)
	if err != nil {
		return err
	}

	s.runInitialCycle(ctx)

	if _, err := s.cron.AddFunc(expr, func() {
		time.Sleep(s.offset)
		s.runAllPairs(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register cron schedule %q: %w", expr, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the recurring schedule, waiting for any in-flight cycle.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runInitialCycle(ctx context.Context) {
	s.runAllPairs(ctx)
	s.ready.Store(true)
}

func (s *Scheduler) runAllPairs(ctx context.Context) {
	for _, pair := range s.pairs {
		if err := s.runner.RunCycle(ctx, pair); err != nil {
			log.IngestError("cycle_failed", pair.Symbol, pair.Base.Raw, err, nil)
		}
	}
}

// deriveCron picks the minimum base timeframe across pairs and converts
// it to a cron expression per the design's fixed rule table.
func deriveCron(pairs []domain.SymbolTimeframeConfig) (string, error) {
	if len(pairs) == 0 {
		return "", apperrors.NewConfigurationError("no configured symbols to derive a schedule from", nil)
	}

	min := pairs[0].Base
	for _, p := range pairs[1:] {
		if timeframe.Less(p.Base, min) {
			min = p.Base
		}
	}

	if min.Unit != timeframe.Minute {
		return "", apperrors.NewConfigurationError(
			fmt.Sprintf("base timeframe %q is not minute-unit; day/week/month/year bases are not supported by this scheduler", min.Raw), nil)
	}

	n := min.Value
	switch {
	case n < 60 && 60%n == 0:
		return fmt.Sprintf("*/%d * * * *", n), nil
	case n == 60:
		return "0 * * * *", nil
	case n > 60 && n%60 == 0:
		return fmt.Sprintf("0 */%d * * *", n/60), nil
	default:
		return "", apperrors.NewConfigurationError(fmt.Sprintf("base timeframe %q has no supported cron derivation", min.Raw), nil)
	}
}
