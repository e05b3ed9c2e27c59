package mid

import (
	"context"
	"expvar"
	"net/http"
	"runtime"

	"github.com/bowlofstew/credo-core-node/foundation/web"
)

var (
	requests    = expvar.NewInt("requests")
	goroutine   = expvar.NewInt("goroutines")
	errorsCount = expvar.NewInt("errors")
)

// Metrics updates program counters in expvar, exposed at /debug/vars, for
// every request that flows through the middleware chain.
func Metrics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)

			requests.Add(1)
			goroutine.Set(int64(runtime.NumGoroutine()))
			if err != nil {
				errorsCount.Add(1)
			}

			return err
		}
		return h
	}
	return m
}
