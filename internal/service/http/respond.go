package http

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

// respondDomainError отображает закрытую таксономию ошибок на HTTP-статусы.
// Новые ошибки добавляются в domain и сюда; строкового матчинга нет.
func respondDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		respondError(w, http.StatusConflict, "idempotency_mismatch", err.Error())
	case domain.IsConflictError(err):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		respondError(w, http.StatusPaymentRequired, "payment_verification_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidWebhookSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, domain.ErrPaymentProviderUnavailable):
		respondError(w, http.StatusBadGateway, "provider_unavailable", err.Error())
	case errors.Is(err, domain.ErrPaymentNotConfigured):
		respondError(w, http.StatusInternalServerError, "payment_not_configured", err.Error())
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrUserRequired),
		errors.Is(err, domain.ErrItemsRequired),
		errors.Is(err, domain.ErrAmountNegative),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		if logger != nil {
			logger.WithError(err).Error("unhandled error")
		}
		respondError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
