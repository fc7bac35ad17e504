package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
	"github.com/iho/creditledger/internal/usecase"
)

// schedulerSubject stamps events emitted by the accrual sweep.
const schedulerSubject = "scheduler"

// AccrualScheduler runs the periodic interest accrual sweep: it records every
// due accrual period, concludes fully accrued cycles, and opens the next cycle
// until maturity truncates the schedule.
type AccrualScheduler struct {
	facilityUC *usecase.CreditFacilityUseCase
	clock      usecase.Clock
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	cron       *cron.Cron
	spec       string
}

// NewAccrualScheduler creates a new AccrualScheduler. spec is a standard cron
// expression.
func NewAccrualScheduler(
	facilityUC *usecase.CreditFacilityUseCase,
	clock usecase.Clock,
	logger zerolog.Logger,
	m *metrics.Metrics,
	spec string,
) *AccrualScheduler {
	return &AccrualScheduler{
		facilityUC: facilityUC,
		clock:      clock,
		logger:     logger,
		metrics:    m,
		cron:       cron.New(),
		spec:       spec,
	}
}

// Start registers the sweep and starts the cron scheduler.
func (s *AccrualScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("accrual sweep failed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Msg("accrual scheduler started")
	return nil
}

// Stop gracefully stops the cron scheduler. The returned context is done when
// any in-flight sweep has finished.
func (s *AccrualScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Sweep processes every facility once. Per-facility errors are logged and
// counted but do not stop the sweep.
func (s *AccrualScheduler) Sweep(ctx context.Context) error {
	start := time.Now()
	s.metrics.SchedulerRuns.Inc()
	defer func() {
		s.metrics.SchedulerDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.facilityUC.ListFacilityIDs(ctx)
	if err != nil {
		s.metrics.SchedulerErrors.Inc()
		return err
	}

	for _, id := range ids {
		if err := s.sweepFacility(ctx, id); err != nil {
			s.metrics.SchedulerErrors.Inc()
			s.logger.Error().Err(err).Str("facility_id", id).Msg("facility accrual sweep failed")
		}
	}

	s.logger.Info().Int("facilities", len(ids)).Msg("accrual sweep completed")
	return nil
}

// sweepFacility brings one facility's accrual schedule current: every period
// whose end has passed gets recorded, and each cycle that becomes fully
// accrued is concluded before the next one opens.
func (s *AccrualScheduler) sweepFacility(ctx context.Context, facilityID string) error {
	f, err := s.facilityUC.GetFacility(ctx, facilityID)
	if err != nil {
		return err
	}
	if !f.IsActivated() || f.IsCompleted() {
		return nil
	}

	now := s.clock.Now()

	if inProgressCycle(f) == nil {
		if f, err = s.facilityUC.StartInterestAccrualCycle(ctx, facilityID, schedulerSubject); err != nil {
			return err
		}
	}

	for {
		cycle := inProgressCycle(f)
		if cycle == nil {
			// Past maturity, no further cycles fit.
			return nil
		}

		if next := cycle.NextAccrualPeriod(); next != nil {
			if next.End.After(now) {
				return nil
			}
			if f, err = s.facilityUC.RecordInterestAccrual(ctx, facilityID, schedulerSubject); err != nil {
				return err
			}
			s.metrics.AccrualsRecorded.Inc()
			continue
		}

		if f, err = s.facilityUC.RecordInterestAccrualCycle(ctx, facilityID, schedulerSubject); err != nil {
			return err
		}
		s.metrics.AccrualCyclesConcluded.Inc()

		if f, err = s.facilityUC.StartInterestAccrualCycle(ctx, facilityID, schedulerSubject); err != nil {
			return err
		}
	}
}

func inProgressCycle(f *domain.CreditFacility) *domain.InterestAccrualCycle {
	for _, c := range f.AccrualCycles() {
		if !c.Concluded() {
			return c
		}
	}
	return nil
}
