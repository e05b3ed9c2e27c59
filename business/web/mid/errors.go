package mid

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/bowlofstew/credo-core-node/business/web/errs"
	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a
// uniform way, and if the error is unexpected and an internal issue, it
// shuts down the service.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if err := handler(ctx, w, r); err != nil {
				v, vErr := web.GetValues(ctx)
				traceID := "unknown"
				if vErr == nil {
					traceID = v.TraceID
				}
				log.Errorw("ERROR", "traceid", traceID, "ERROR", err)

				resp := errs.Response{Error: err.Error()}
				status := http.StatusInternalServerError
				if trusted := errs.GetTrusted(err); trusted != nil {
					resp.Error = trusted.Error()
					status = trusted.Status
				}

				if err := web.Respond(ctx, w, resp, status); err != nil {
					return err
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
