package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/creditledger/internal/adapter/http/dto"
	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
	"github.com/iho/creditledger/internal/usecase"
)

// FacilityHandler handles credit facility HTTP requests.
type FacilityHandler struct {
	facilityUC *usecase.CreditFacilityUseCase
	metrics    *metrics.Metrics
}

// NewFacilityHandler creates a new FacilityHandler.
func NewFacilityHandler(facilityUC *usecase.CreditFacilityUseCase, m *metrics.Metrics) *FacilityHandler {
	return &FacilityHandler{facilityUC: facilityUC, metrics: m}
}

// Create opens a new facility.
func (h *FacilityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateFacilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(subjectID(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	facility, err := h.facilityUC.CreateFacility(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to create facility", err.Error())
		return
	}

	h.metrics.FacilitiesCreated.Inc()
	writeJSON(w, http.StatusCreated, dto.FacilityFromDomain(facility, time.Now().UTC()))
}

// Get retrieves a facility by ID.
func (h *FacilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing facility ID", "")
		return
	}

	facility, err := h.facilityUC.GetFacility(r.Context(), id)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get facility", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromDomain(facility, time.Now().UTC()))
}

// List lists known facility ids.
func (h *FacilityHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.facilityUC.ListFacilityIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list facilities", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityListResponse{FacilityIDs: ids})
}

// ConcludeApproval records the approval process outcome.
func (h *FacilityHandler) ConcludeApproval(w http.ResponseWriter, r *http.Request) {
	var req dto.ConcludeApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		return h.facilityUC.ConcludeApproval(r.Context(), id, req.Approved, subject)
	})
}

// Activate activates an approved, collateralized facility.
func (h *FacilityHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.Activate(r.Context(), id, subject)
		if err == nil {
			h.metrics.FacilitiesActivated.Inc()
		}
		return facility, err
	})
}

// UpdateCollateral sets the facility's collateral balance.
func (h *FacilityHandler) UpdateCollateral(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	collateral, err := domain.NewSatoshis(req.Collateral)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid collateral", err.Error())
		return
	}

	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.UpdateCollateral(r.Context(), id, collateral, subject)
		if err == nil {
			h.metrics.CollateralUpdates.Inc()
		}
		return facility, err
	})
}

// InitiateDisbursal opens a drawdown request.
func (h *FacilityHandler) InitiateDisbursal(w http.ResponseWriter, r *http.Request) {
	var req dto.InitiateDisbursalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := domain.NewUsdCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		return h.facilityUC.InitiateDisbursal(r.Context(), id, amount, subject)
	})
}

// ConcludeDisbursal settles or cancels a disbursal by index.
func (h *FacilityHandler) ConcludeDisbursal(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid disbursal index", err.Error())
		return
	}

	var req dto.ConcludeDisbursalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.ConcludeDisbursal(r.Context(), id, idx, req.Settled, subject)
		if err == nil && req.Settled {
			h.metrics.DisbursalsSettled.Inc()
			for _, d := range facility.Disbursals() {
				if d.Idx == idx {
					h.metrics.DisbursalAmount.Observe(float64(d.Amount))
				}
			}
		}
		return facility, err
	})
}

// RecordAccrual records the next due accrual period of the in-progress cycle.
// The scheduler normally drives this; the endpoint exists for manual catch-up.
func (h *FacilityHandler) RecordAccrual(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.RecordInterestAccrual(r.Context(), id, subject)
		if err == nil {
			h.metrics.AccrualsRecorded.Inc()
		}
		return facility, err
	})
}

// RecordRepayment allocates a payment interest-first.
func (h *FacilityHandler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordRepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := domain.NewUsdCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.RecordRepayment(r.Context(), id, amount, subject)
		if err == nil {
			h.metrics.PaymentsRecorded.Inc()
			h.metrics.PaymentAmount.Observe(float64(amount))
		}
		return facility, err
	})
}

// Complete closes a fully repaid facility.
func (h *FacilityHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id, subject string) (*domain.CreditFacility, error) {
		facility, err := h.facilityUC.Complete(r.Context(), id, subject)
		if err == nil {
			h.metrics.FacilitiesCompleted.Inc()
		}
		return facility, err
	})
}

// GetBalance returns the event-derived balance summary.
func (h *FacilityHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	facility, err := h.facilityUC.GetFacility(r.Context(), id)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get facility", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromDomain(facility, time.Now().UTC()).Balance)
}

func (h *FacilityHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(id, subject string) (*domain.CreditFacility, error)) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing facility ID", "")
		return
	}

	facility, err := fn(id, subjectID(r))
	if err != nil {
		h.metrics.FacilityErrors.WithLabelValues(errLabel(err)).Inc()
		writeError(w, mapDomainError(err), "facility command failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.FacilityFromDomain(facility, time.Now().UTC()))
}

// errLabel keeps the error-type metric label low-cardinality.
func errLabel(err error) string {
	switch mapDomainError(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
