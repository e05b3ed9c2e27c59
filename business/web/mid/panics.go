package mid

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/foundation/web"
)

// Panics recovers from panics and converts the panic to an error so it is
// reported through the normal error handling middleware rather than
// crashing the service.
func Panics() web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = errors.Wrap(fmt.Errorf("PANIC: %v", rec), string(debug.Stack()))
				}
			}()
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
