package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/omicsx/pkg/model"
)

// kindInternal marks errors outside the model taxonomy.
const kindInternal model.ErrorKind = "INTERNAL_ERROR"

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

// respondError writes err with the status its kind maps to.
func respondError(w http.ResponseWriter, reqID string, err error) {
	var apiErr *model.Error
	if !errors.As(err, &apiErr) {
		apiErr = &model.Error{Kind: kindInternal, Message: err.Error()}
	}
	respondJSON(w, statusFor(apiErr.Kind), reqID, nil, apiErr)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindExecutionNotFound:
		return http.StatusNotFound
	case model.KindUnknownResourceType, model.KindStoragePricingUnavailable:
		return http.StatusUnprocessableEntity
	case model.KindPricingUnavailable, model.KindBackend, model.KindPaginationOverflow:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *model.Error) {
	resp := model.Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
