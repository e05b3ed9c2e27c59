// Package web provides a thin layer on top of httptreemux that binds a
// context-aware handler signature, a shared value bag (trace id, start
// time, status code) and a middleware chain around every route this node
// exposes.
package web

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/google/uuid"
)

// Handler is the signature every application handler must implement.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// App is the entrypoint into the web framework and holds the route mux,
// the common middleware chain applied to every handler, and the channel
// used to signal the service to begin a graceful shutdown.
type App struct {
	mux      *httptreemux.ContextMux
	mw       []Middleware
	shutdown chan os.Signal
}

// NewApp creates an App value that can handle a set of routes.
func NewApp(shutdown chan os.Signal, mw ...Middleware) *App {
	return &App{
		mux:      httptreemux.NewContextMux(),
		shutdown: shutdown,
		mw:       mw,
	}
}

// SignalShutdown tells the framework to signal a graceful shutdown of the
// service, used by a handler that discovers the service can no longer
// continue to operate.
func (a *App) SignalShutdown() {
	a.shutdown <- os.Interrupt
}

// Handle associates a handler function, wrapped with the App's own
// middleware plus any route-specific middleware, with an HTTP method and
// path pair under the given version group.
func (a *App) Handle(method string, group string, path string, handler Handler, mw ...Middleware) {
	handler = wrapMiddleware(mw, handler)
	handler = wrapMiddleware(a.mw, handler)

	h := func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx := r.Context()

		v := Values{
			TraceID: uuid.NewString(),
			Now:     time.Now(),
		}
		ctx = context.WithValue(ctx, valuesKey, &v)

		if len(params) > 0 {
			ctx = context.WithValue(ctx, paramsKey, params)
		}
		r = r.WithContext(ctx)

		if err := handler(ctx, w, r); err != nil {
			if IsShutdown(err) {
				a.SignalShutdown()
			}
		}
	}

	if group != "" {
		path = "/" + group + path
	}
	a.mux.TreeMux.Handle(method, path, h)
}

// ServeHTTP implements the http.Handler interface.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func wrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}
	return handler
}
