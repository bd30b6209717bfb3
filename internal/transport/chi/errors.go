package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

type errorCode string

const (
	codeBadRequest    errorCode = "bad_request"
	codeValidation    errorCode = "validation_failed"
	codeUnauthorized  errorCode = "unauthorized"
	codeNotFound      errorCode = "not_found"
	codeRateLimited   errorCode = "rate_limited"
	codeQuotaExceeded errorCode = "quota_exceeded"
	codeProvider      errorCode = "provider_error"
	codeInternal      errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type sentinelMapping struct {
	err    error
	status int
	code   errorCode
}

// sentinels maps domain errors to responses; the first match wins.
var sentinels = []sentinelMapping{
	{domain.ErrNotFound, http.StatusNotFound, codeNotFound},
	{domain.ErrInvalidInput, http.StatusBadRequest, codeValidation},
	{domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
	{domain.ErrQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded},
	{domain.ErrProviderError, http.StatusBadGateway, codeProvider},
	{domain.ErrResponseInvalid, http.StatusBadGateway, codeProvider},
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, m := range sentinels {
		if errors.Is(err, m.err) {
			s.logger.Warn("domain error", zap.Error(err))
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
