// Package handler maps application errors onto the HTTP surface shared by
// the admin and storefront APIs.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pelicanworks/trove/internal/domain"
)

// ErrorCodeToHTTPStatus maps an application error code to an HTTP status.
// Unknown codes map to 500.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.EFORBIDDEN:
		return http.StatusForbidden
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorHandler returns the central echo error handler. Validation errors
// render per-field messages; internal errors log the cause and show a
// generic message.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := errorBody{Error: errorDetail{
			Code:    domain.EINTERNAL,
			Message: domain.ErrorMessage(err),
		}}

		switch {
		case domain.IsValidationError(err):
			status = http.StatusBadRequest
			body.Error.Code = domain.EINVALID
			body.Error.Message = "validation failed"
			body.Error.Fields = domain.GetValidationFields(err)

		default:
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
				body.Error.Code = domain.EINVALID
				if status >= 500 {
					body.Error.Code = domain.EINTERNAL
				}
				body.Error.Message = http.StatusText(status)
				break
			}

			code := domain.ErrorCode(err)
			status = ErrorCodeToHTTPStatus(code)
			body.Error.Code = code
		}

		if status >= 500 {
			log.Error().Err(err).Str("op", domain.ErrorOp(err)).Msg("request failed")
		}

		if writeErr := c.JSON(status, body); writeErr != nil {
			log.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
