package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/payment"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, logger zerolog.Logger) {
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("code", code).Int("status", status).Str("path", r.URL.Path).Msg(message)

	writeJSON(w, status, model.ErrorResponse{
		Error:         code,
		Message:       message,
		CorrelationID: middleware.RequestIDFrom(r.Context()),
	})
}

// writeDomainError maps a service or checkout error to its HTTP response.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, logger zerolog.Logger) {
	correlationID := middleware.RequestIDFrom(r.Context())

	var validationErr *model.ValidationError
	if errors.As(err, &validationErr) {
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("validation failed")
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
			Error:         model.ErrCodeValidation,
			Message:       "Some fields are invalid",
			CorrelationID: correlationID,
			Fields:        validationErr.Fields,
		})
		return
	}

	var transitionErr *model.TransitionError
	if errors.As(err, &transitionErr) {
		code, message := model.ErrCodeInvalidTransition, model.ErrInvalidTransition.Message
		if transitionErr.Stale {
			code, message = model.ErrCodeStaleStatus, model.ErrStaleStatus.Message
		}
		logger.Warn().Err(err).Str("current_status", transitionErr.Current.String()).Msg("order transition rejected")
		writeJSON(w, http.StatusConflict, model.ErrorResponse{
			Error:         code,
			Message:       message,
			CorrelationID: correlationID,
			CurrentStatus: transitionErr.Current,
		})
		return
	}

	if payment.IsGatewayFailure(err) {
		writeError(w, r, http.StatusBadGateway, model.ErrCodeServiceUnavailable, "Payment could not be started. Please try again.", logger)
		return
	}

	var domainErr *model.DomainError
	if errors.As(err, &domainErr) {
		writeError(w, r, statusForCode(domainErr.Code), domainErr.Code, domainErr.Message, logger)
		return
	}

	logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
	writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
		Error:         model.ErrCodeInternalError,
		Message:       "internal server error",
		CorrelationID: correlationID,
	})
}

func statusForCode(code string) int {
	switch code {
	case model.ErrCodeProductNotFound, model.ErrCodeVariantNotFound,
		model.ErrCodeOrderNotFound, model.ErrCodeSessionNotFound:
		return http.StatusNotFound
	case model.ErrCodeInsufficientStock, model.ErrCodeInvalidStep,
		model.ErrCodePaymentInProgress, model.ErrCodeStaleStatus, model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case model.ErrCodePaymentFailed:
		return http.StatusPaymentRequired
	case model.ErrCodePaymentPending:
		return http.StatusAccepted
	case model.ErrCodeUnauthorised:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidQuantity, model.ErrCodeNoBasePrice, model.ErrCodeInvalidTiers,
		model.ErrCodeInvalidStatus, model.ErrCodeCartEmpty, model.ErrCodeInvalidJSON,
		model.ErrCodeMissingField, model.ErrCodeValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into dst and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// param returns a named path parameter set by httprouter.
func param(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}

// uuidParam parses a path parameter as a UUID.
func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param(r, name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// pageParams parses limit and offset query parameters. Missing values are
// zero and left to the service's defaults.
func pageParams(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			return 0, 0, errors.New("invalid limit parameter")
		}
	}
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil {
			return 0, 0, errors.New("invalid offset parameter")
		}
	}
	return limit, offset, nil
}
