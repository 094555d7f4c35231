package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

const (
	labelValidation = "validation_error"
	labelNotFound   = "not_found"
	labelInternal   = "internal_server_error"
)

var errHttpNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")

// httpError is the body of every error response.
type httpError struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// statusLabel turns a status code into a snake_case label, e.g. 413 -> "request_entity_too_large".
func statusLabel(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return labelInternal
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// fieldName drops the top-level struct name from a validator namespace:
// "NewCalendar.stages[0].end_date" -> "stages[0].end_date".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var body httpError

		var procErr *calendar.ProcessingError
		var valErr *core.ValidationError

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			body.Error = statusLabel(code)
			body.Message = fmt.Sprint(origErr.Message)
			if code == http.StatusNotFound {
				body.Error = labelNotFound
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[fieldName(vErr)] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			body = httpError{Error: labelValidation, Message: "invalid input", Detail: fldErrs}
		default:
			switch {
			case errors.As(err, &valErr):
				code = http.StatusBadRequest
				body = httpError{Error: labelValidation, Message: valErr.Error()}
				if len(valErr.Fields) > 0 {
					body.Detail = valErr.FieldsMap()
				}
			case errors.As(err, &procErr):
				code = http.StatusUnprocessableEntity
				body = httpError{Error: procErr.Label, Message: procErr.Detail, Detail: procErr.Detail}
			case errors.Is(err, calendar.ErrNotFound):
				code = http.StatusNotFound
				body = httpError{Error: labelNotFound, Message: calendar.ErrNotFound.Error()}
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				body = httpError{Error: labelInternal, Message: msg}

				logger.Error(msg, errors.Wrap(err, msg), map[string]interface{}{
					"path":   ctx.Request().URL.Path,
					"method": ctx.Request().Method,
				})

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}

				if ctx.Echo().Debug {
					body.Message = err.Error()
				}
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
