package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/predict"
	"github.com/MJE43/lotto-desk/internal/reveal"
	"github.com/MJE43/lotto-desk/internal/session"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e APIError) Error() string { return e.Message }

const (
	ErrTypeValidation    = "validation_error"
	ErrTypeUnknownMatrix = "unknown_matrix"
	ErrTypeInvalidMatrix = "invalid_matrix"
	ErrTypeNotFound      = "not_found"
	ErrTypeBusy          = "busy"
	ErrTypePrediction    = "prediction_failed"
	ErrTypeInvalidResult = "prediction_invalid"
	ErrTypeTimeout       = "timeout"
	ErrTypeCorrupt       = "corrupt_history"
	ErrTypeUnavailable   = "service_unavailable"
	ErrTypeInternal      = "internal_error"
)

// ErrorBuilder assembles an APIError.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{errType: errType, message: message, context: map[string]any{}}
}

func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

func (eb *ErrorBuilder) WithRequestID(id string) *ErrorBuilder {
	eb.requestID = id
	return eb
}

// WithCause records err's message under "cause".
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

func (eb *ErrorBuilder) Build() APIError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return APIError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps domain errors to a status and error type.
func classify(err error) (int, string) {
	var apiErr APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.Type {
		case ErrTypeNotFound:
			return http.StatusNotFound, apiErr.Type
		case ErrTypeUnavailable:
			return http.StatusServiceUnavailable, apiErr.Type
		}
		return http.StatusBadRequest, apiErr.Type
	case errors.Is(err, matrix.ErrUnknownMatrix):
		return http.StatusBadRequest, ErrTypeUnknownMatrix
	case errors.Is(err, matrix.ErrInvalidConfig):
		return http.StatusUnprocessableEntity, ErrTypeInvalidMatrix
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, reveal.ErrBusy):
		return http.StatusConflict, ErrTypeBusy
	case errors.Is(err, history.ErrCorrupt):
		return http.StatusUnprocessableEntity, ErrTypeCorrupt
	case errors.Is(err, predict.ErrTimeout):
		return http.StatusGatewayTimeout, ErrTypeTimeout
	case errors.Is(err, predict.ErrInvalidResult):
		return http.StatusBadGateway, ErrTypeInvalidResult
	}
	var pe *predict.Error
	if errors.As(err, &pe) {
		return http.StatusBadGateway, ErrTypePrediction
	}
	return http.StatusInternalServerError, ErrTypeInternal
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, errType := classify(err)
	reqID := middleware.GetReqID(r.Context())
	var body APIError
	if errors.As(err, &body) {
		body.RequestID = reqID
	} else {
		eb := NewError(errType, err.Error()).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			WithRequestID(reqID)
		var pe *predict.Error
		if errors.As(err, &pe) {
			eb.WithContext("predictor", pe.Predictor).WithCause(pe.Err)
		}
		body = eb.Build()
	}

	level := s.logger.Warn
	if status >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("request failed", "type", body.Type, "status", status, "path", r.URL.Path, "request_id", body.RequestID, "error", err)

	w.Header().Set("X-Error-Type", body.Type)
	writeJSON(w, status, body)
}

func validationError(field, message string) APIError {
	return NewError(ErrTypeValidation, message).WithContext("field", field).Build()
}
