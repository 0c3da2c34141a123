package fhir

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HTTPErrorHandler renders errors that reach echo, such as unknown routes or
// recovered panics, as OperationOutcome bodies.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		outcome := InternalErrorOutcome()

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if code < http.StatusInternalServerError {
				msg, ok := he.Message.(string)
				if !ok {
					msg = http.StatusText(code)
				}
				switch code {
				case http.StatusNotFound:
					outcome = NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, msg)
				case http.StatusMethodNotAllowed:
					outcome = NewOperationOutcome(IssueSeverityError, IssueTypeNotSupported, msg)
				default:
					outcome = InvalidOutcome(msg)
				}
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, outcome)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}
