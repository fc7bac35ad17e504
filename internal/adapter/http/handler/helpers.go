package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iho/creditledger/internal/adapter/http/dto"
	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// mapDomainError maps domain and usecase errors to HTTP status codes.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, usecase.ErrFacilityNotFound),
		errors.Is(err, domain.ErrDisbursalNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrFacilityCompleted),
		errors.Is(err, domain.ErrApprovalInProgress),
		errors.Is(err, domain.ErrApprovalDenied),
		errors.Is(err, domain.ErrNoCollateral),
		errors.Is(err, domain.ErrBelowMarginLimit),
		errors.Is(err, domain.ErrNotActivatedYet),
		errors.Is(err, domain.ErrOutstandingAmount),
		errors.Is(err, domain.ErrDisbursalPastMaturityDate),
		errors.Is(err, domain.ErrDisbursalExceedsFacility),
		errors.Is(err, domain.ErrAccrualCycleAlreadyInProgress),
		errors.Is(err, domain.ErrNoAccrualCycleInProgress),
		errors.Is(err, domain.ErrInterestAccrualNotCompletedYet),
		errors.Is(err, domain.ErrInterestAccrualPeriodNotEndedYet),
		errors.Is(err, domain.ErrAccrualCycleFutureStartDate),
		errors.Is(err, domain.ErrNothingToRepay),
		errors.Is(err, domain.ErrPaymentExceedsOutstanding):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNegativeAmount),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInvalidCVLOrdering),
		errors.Is(err, domain.ErrInvalidAnnualRate),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrCollateralNotUpdated):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// subjectID identifies the caller for event audit stamps. Falls back to a
// generic API subject when the gateway does not forward one.
func subjectID(r *http.Request) string {
	if s := r.Header.Get("X-Subject-ID"); s != "" {
		return s
	}
	return "api"
}
