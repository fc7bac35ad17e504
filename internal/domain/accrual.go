package domain

import "time"

// InterestAccrualCycle schedules successive interest periods inside one
// facility cycle and accumulates the interest they produce. It concludes
// exactly once, yielding a single postable interest obligation.
type InterestAccrualCycle struct {
	ID         string
	FacilityID string
	Idx        int
	Terms      TermValues
	Period     Period // full cycle window, already truncated at maturity

	accruedThrough *time.Time
	accrued        UsdCents
	concluded      bool
}

// NextAccrualPeriod returns the next sub-period to accrue, clipped at the
// cycle end. Nil means every period in the cycle has been accrued.
func (c *InterestAccrualCycle) NextAccrualPeriod() *Period {
	var next Period
	if c.accruedThrough == nil {
		next = c.Terms.AccrualInterval.PeriodFrom(c.Period.Start)
	} else {
		next = c.Terms.AccrualInterval.PeriodFrom(c.accruedThrough.Add(time.Second))
	}
	return next.Truncate(c.Period.End)
}

// FullyAccrued reports whether the cycle has covered its whole window and can
// be concluded.
func (c *InterestAccrualCycle) FullyAccrued() bool {
	return c.NextAccrualPeriod() == nil
}

// Accrued is the interest accumulated so far in this cycle.
func (c *InterestAccrualCycle) Accrued() UsdCents { return c.accrued }

// Concluded reports whether the cycle's interest has been posted.
func (c *InterestAccrualCycle) Concluded() bool { return c.concluded }

func (c *InterestAccrualCycle) recordAccrual(amount UsdCents, period Period) {
	c.accrued = c.accrued.Add(amount)
	end := period.End
	c.accruedThrough = &end
}

func (c *InterestAccrualCycle) conclude() {
	c.concluded = true
}
