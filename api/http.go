package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/flanksource/commons/logger"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"
)

type HTTPError struct {
	Err     string `json:"error"`
	Message string `json:"message,omitempty"`

	// Data for machine-machine communication.
	// usually contains a JSON data.
	Data string `json:"data,omitempty"`
}

// Error implements the error interface. Not used by the application otherwise.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("error=%s message=%s data=%s ", e.Err, e.Message, e.Data)
}

// WriteError writes err as an HTTPError with the status of its code.
func WriteError(c echo.Context, err error) error {
	var appErr *Error
	if !errors.As(err, &appErr) {
		var oopsErr oops.OopsError
		if errors.As(err, &oopsErr) {
			code := oopsErr.Code()
			logger.WithValues("code", code).Errorf("%+v", oopsErr)
			return c.JSON(ErrorStatusCode(code), &HTTPError{Err: ErrorMessage(err)})
		}
	}

	code, message, data := ErrorCode(err), ErrorMessage(err), ErrorData(err)

	if debugInfo := ErrorDebugInfo(err); debugInfo != "" {
		logger.WithValues("code", code, "error", message).Errorf(debugInfo)
	}

	return c.JSON(ErrorStatusCode(code), &HTTPError{Err: code, Message: message, Data: data})
}

// ErrorStatusCode returns the associated HTTP status code for an application error code.
func ErrorStatusCode(code string) int {
	// lookup of application error codes to HTTP status codes.
	var codes = map[string]int{
		ECONFLICT:          http.StatusConflict,
		EINVALID:           http.StatusBadRequest,
		EINVALIDTRANSITION: http.StatusBadRequest,
		ENOTFOUND:          http.StatusNotFound,
		EFORBIDDEN:         http.StatusForbidden,
		ENOTIMPLEMENTED:    http.StatusNotImplemented,
		EUNAUTHORIZED:      http.StatusUnauthorized,
		EINTERNAL:          http.StatusInternalServerError,
	}

	if v, ok := codes[code]; ok {
		return v
	}

	return http.StatusInternalServerError
}
