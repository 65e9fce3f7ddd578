package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
)

var (
	errHttpNotFound    = core.NewError(core.KindNotFound, "not found")
	errHttpRateLimited = core.NewError(core.KindRateLimited, "too many requests")
)

var kindStatus = map[core.Kind]int{
	core.KindValidation:         http.StatusBadRequest,
	core.KindUnauthenticated:    http.StatusUnauthorized,
	core.KindForbidden:          http.StatusForbidden,
	core.KindNotFound:           http.StatusNotFound,
	core.KindConflict:           http.StatusConflict,
	core.KindRateLimited:        http.StatusTooManyRequests,
	core.KindStorageUnavailable: http.StatusInternalServerError,
	core.KindInternal:           http.StatusInternalServerError,
}

func statusKind(code int) core.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return core.KindValidation
	case http.StatusUnauthorized:
		return core.KindUnauthenticated
	case http.StatusForbidden:
		return core.KindForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return core.KindNotFound
	case http.StatusConflict:
		return core.KindConflict
	case http.StatusTooManyRequests:
		return core.KindRateLimited
	default:
		return core.KindInternal
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Kind    core.Kind         `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		resp := ErrorResponse{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			resp.Kind = statusKind(code)
			if msg, ok := origErr.Message.(string); ok {
				resp.Message = msg
			} else {
				resp.Message = http.StatusText(code)
			}
		case validator.ValidationErrors:
			resp.Fields = make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				resp.Fields[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp.Kind = core.KindValidation
			resp.Message = "invalid input"
		case *core.ValidationError:
			if len(origErr.Fields) > 0 {
				resp.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Fields[fErr.Field] = fErr.Error
				}
				resp.Message = "invalid input"
			} else {
				resp.Message = origErr.Error()
			}
			code = http.StatusBadRequest
			resp.Kind = core.KindValidation
		case *core.Error:
			resp.Kind = origErr.Kind
			resp.Message = origErr.Message
			code = kindStatus[origErr.Kind]
			if code == 0 {
				code = http.StatusInternalServerError
			}
		default: // any other error is a server error
			resp.Kind = core.KindOf(err)
			code = http.StatusInternalServerError
			resp.Message = http.StatusText(code)
		}

		if code >= http.StatusInternalServerError {
			args := []interface{}{errors.Wrap(err, resp.Message)}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				args = append(args, claims)
			}
			logger.Error(resp.Message, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				resp.Message = err.Error()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
