package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/ardanlabs/sealedger/business/web/errs"
	v1 "github.com/ardanlabs/sealedger/business/web/v1"
	"github.com/ardanlabs/sealedger/foundation/web"
	"go.uber.org/zap"
)

// Errors is the terminal middleware that renders any error a handler
// returns into the standard errs.Response JSON body and the matching HTTP
// status, without ever leaking raw internal error text to the client.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if err := handler(ctx, w, r); err != nil {
				v, verr := web.GetValues(ctx)
				traceID := "unknown"
				if verr == nil {
					traceID = v.TraceID
				}

				log.Errorw("handler error", "traceid", traceID, "ERROR", err)

				if web.IsShutdown(err) {
					return err
				}

				resp := toResponse(err)
				if werr := web.Respond(ctx, w, resp, statusFor(err)); werr != nil {
					return werr
				}

				if web.IsShutdown(err) {
					return err
				}
			}

			return nil
		}

		return h
	}

	return m
}

// toResponse converts any error into the wire-level error envelope,
// defaulting to a generic internal error for anything that isn't a
// recognized business error, so raw driver/library text never reaches a
// client.
func toResponse(err error) errs.Response {
	if re := v1.GetRequestError(err); re != nil {
		msg := re.Error()
		if re.Status() >= http.StatusInternalServerError {
			msg = "an internal error occurred"
		}
		return errs.Response{
			Status:    "fail",
			Message:   msg,
			Code:      re.Code,
			Details:   re.Fields,
			Timestamp: time.Now().UTC(),
		}
	}

	if trusted := errs.GetTrusted(err); trusted != nil {
		return errs.Response{
			Status:    "fail",
			Message:   trusted.Error(),
			Code:      "internal",
			Timestamp: time.Now().UTC(),
		}
	}

	return errs.Response{
		Status:    "error",
		Message:   "an internal error occurred",
		Code:      "internal",
		Timestamp: time.Now().UTC(),
	}
}

// statusFor returns the HTTP status that should be sent for err.
func statusFor(err error) int {
	if re := v1.GetRequestError(err); re != nil {
		return re.Status()
	}

	if trusted := errs.GetTrusted(err); trusted != nil {
		return trusted.Status
	}

	return http.StatusInternalServerError
}
