package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Facility lifecycle metrics
	FacilitiesCreated   prometheus.Counter
	FacilitiesActivated prometheus.Counter
	FacilitiesCompleted prometheus.Counter
	FacilityErrors      *prometheus.CounterVec

	// Money movement metrics
	DisbursalsSettled prometheus.Counter
	DisbursalAmount   prometheus.Histogram
	PaymentsRecorded  prometheus.Counter
	PaymentAmount     prometheus.Histogram

	// Collateral metrics
	CollateralUpdates        prometheus.Counter
	CollateralizationChanges *prometheus.CounterVec

	// Accrual scheduler metrics
	AccrualsRecorded       prometheus.Counter
	AccrualCyclesConcluded prometheus.Counter
	SchedulerRuns          prometheus.Counter
	SchedulerErrors        prometheus.Counter
	SchedulerDuration      prometheus.Histogram

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Ledger metrics
	LedgerPostings *prometheus.CounterVec
	LedgerErrors   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		FacilitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_facilities_created_total",
			Help: "Total number of credit facilities created",
		}),
		FacilitiesActivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_facilities_activated_total",
			Help: "Total number of credit facilities activated",
		}),
		FacilitiesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_facilities_completed_total",
			Help: "Total number of credit facilities completed",
		}),
		FacilityErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditledger_facility_errors_total",
				Help: "Total facility command errors by type",
			},
			[]string{"error_type"},
		),

		DisbursalsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_disbursals_settled_total",
			Help: "Total number of disbursals settled",
		}),
		DisbursalAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditledger_disbursal_amount_cents",
			Help:    "Settled disbursal amounts in cents",
			Buckets: []float64{1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000},
		}),
		PaymentsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_payments_recorded_total",
			Help: "Total number of repayments recorded",
		}),
		PaymentAmount: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditledger_payment_amount_cents",
			Help:    "Repayment amounts in cents",
			Buckets: []float64{1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000},
		}),

		CollateralUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_collateral_updates_total",
			Help: "Total number of collateral updates",
		}),
		CollateralizationChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditledger_collateralization_changes_total",
				Help: "Total collateralization state changes by new state",
			},
			[]string{"state"},
		),

		AccrualsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_interest_accruals_recorded_total",
			Help: "Total number of interest accrual periods recorded",
		}),
		AccrualCyclesConcluded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_interest_accrual_cycles_concluded_total",
			Help: "Total number of interest accrual cycles concluded",
		}),
		SchedulerRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_scheduler_runs_total",
			Help: "Total number of accrual scheduler sweeps",
		}),
		SchedulerErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "creditledger_scheduler_errors_total",
			Help: "Total number of accrual scheduler errors",
		}),
		SchedulerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "creditledger_scheduler_duration_seconds",
			Help:    "Duration of accrual scheduler sweeps",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditledger_http_requests_total",
				Help: "Total HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditledger_http_request_duration_seconds",
				Help:    "HTTP request duration by method and path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LedgerPostings: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditledger_ledger_postings_total",
				Help: "Total ledger transactions posted by kind",
			},
			[]string{"kind"},
		),
		LedgerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditledger_ledger_errors_total",
				Help: "Total ledger posting errors by kind",
			},
			[]string{"kind"},
		),
	}
}
