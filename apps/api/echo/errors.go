package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/assessment"
	"github.com/elimuhq/elimu/core/attendance"
	"github.com/elimuhq/elimu/core/event"
	"github.com/elimuhq/elimu/core/finance"
	"github.com/elimuhq/elimu/core/material"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")

	// domain errors with a fixed HTTP rendering
	errStatusCodes = map[error]int{
		session.ErrSessionNotFound: http.StatusUnauthorized,
		session.ErrInvalidToken:    http.StatusUnauthorized,
		session.ErrDeactivated:     http.StatusForbidden,

		user.ErrNotFound:                 http.StatusNotFound,
		user.ErrGroupNotFound:            http.StatusNotFound,
		user.ErrAccommodationNotFound:    http.StatusNotFound,
		event.ErrNotFound:                http.StatusNotFound,
		material.ErrNotFound:             http.StatusNotFound,
		finance.ErrPayableNotFound:       http.StatusNotFound,
		assessment.ErrAssignmentNotFound: http.StatusNotFound,
		assessment.ErrResultNotFound:     http.StatusNotFound,
		attendance.ErrSessionNotFound:    http.StatusNotFound,
		attendance.ErrRecordNotFound:     http.StatusNotFound,

		assessment.ErrInvalidID:         http.StatusBadRequest,
		assessment.ErrAlreadyCompleted:  http.StatusBadRequest,
		assessment.ErrAttemptInProgress: http.StatusBadRequest,
		assessment.ErrInvalidTransition: http.StatusBadRequest,
		assessment.ErrTimeExpired:       http.StatusBadRequest,
		assessment.ErrVersionConflict:   http.StatusConflict,
		attendance.ErrInvalidToken:      http.StatusBadRequest,
		attendance.ErrSessionExpired:    http.StatusBadRequest,
		attendance.ErrAlreadyScanned:    http.StatusBadRequest,
		finance.ErrAlreadyPaid:          http.StatusBadRequest,
		finance.ErrOverpayment:          http.StatusBadRequest,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if mapped, ok := errStatusCodes[cause]; ok {
			code = mapped
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if sess, sErr := contextSession(ctx); sErr == nil {
					usr.ID = sess.UserID
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
