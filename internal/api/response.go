package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/comp-pricer/internal/pricing"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind pricing.Kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: string(kind), Message: message}})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) (int, pricing.Kind) {
	kind := pricing.KindOf(err)
	switch kind {
	case pricing.KindInvalidRequest:
		return http.StatusBadRequest, kind
	case pricing.KindNotFound:
		return http.StatusNotFound, kind
	case pricing.KindBusy:
		return http.StatusConflict, kind
	case pricing.KindInsufficientData:
		return http.StatusUnprocessableEntity, kind
	case pricing.KindSourceUnavailable:
		return http.StatusBadGateway, kind
	case pricing.KindStoreError:
		return http.StatusInternalServerError, kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "Timeout"
	}
	return http.StatusInternalServerError, "Internal"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	writeError(w, status, kind, err.Error())
}
