package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"otp/internal/authz"
	"otp/internal/domain"
	"otp/internal/dto"
	"otp/internal/service"
)

type handlers struct {
	otp  service.OTPService
	diag service.DiagnosticsService
}

func callerID(r *http.Request) (domain.UserID, bool) {
	sub, ok := authz.SubjectFrom(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *handlers) requestOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	var req dto.RequestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.otp.RequestOTP(r.Context(), userID, domain.Channel(req.Channel), req.Contact)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	var req dto.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.otp.VerifyOTP(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getDiagnostics(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	channel := domain.Channel(r.URL.Query().Get("channel"))
	contact := r.URL.Query().Get("contact")

	res, err := h.diag.GetDiagnostics(r.Context(), userID, channel, contact)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) testConnectivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	var req dto.ConnectivityTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.diag.TestConnectivity(r.Context(), userID, domain.Channel(req.Channel), req.Contact)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) submitReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	var req dto.DiagnosticReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	res, err := h.diag.SubmitReport(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handlers) deliveryTroubleshooting(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(r)
	if !ok {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid delivery id", http.StatusBadRequest)
		return
	}
	res, err := h.diag.DeliveryTroubleshooting(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error            string                   `json:"error"`
	Code             string                   `json:"code"`
	RetryAfter       int                      `json:"retryAfterSeconds,omitempty"`
	Channel          string                   `json:"channel,omitempty"`
	SuggestedChannel string                   `json:"suggestedChannel,omitempty"`
	Failures         []domain.ProviderFailure `json:"failures,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	var apf *domain.AllProvidersFailedError

	switch {
	case errors.As(err, &rle):
		secs := int(rle.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: err.Error(), Code: "rate_limited", RetryAfter: secs})
	case errors.As(err, &apf):
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:            err.Error(),
			Code:             "all_providers_failed",
			Channel:          string(apf.Channel),
			SuggestedChannel: string(apf.Channel.Alternate()),
			Failures:         apf.Failures,
		})
	case errors.Is(err, domain.ErrInvalidContact),
		errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, domain.ErrContactMismatch):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "contact_mismatch"})
	case errors.Is(err, domain.ErrChallengeNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrOTPExpired):
		writeJSON(w, http.StatusGone, errorBody{Error: err.Error(), Code: "otp_expired"})
	case errors.Is(err, domain.ErrOTPInvalid):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "otp_invalid"})
	case errors.Is(err, domain.ErrMaxAttemptsExceeded):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "otp_max_attempts"})
	case errors.Is(err, domain.ErrNoProvidersForChannel):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Code: "no_providers"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
