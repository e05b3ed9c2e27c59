package web

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type ctxKey int

const (
	valuesKey ctxKey = iota + 1
	paramsKey
)

// Values carries information about each request that middleware and
// handlers along the chain need access to.
type Values struct {
	TraceID    string
	Now        time.Time
	StatusCode int
}

// GetValues returns the Values stashed in the context by the framework.
func GetValues(ctx context.Context) (*Values, error) {
	v, ok := ctx.Value(valuesKey).(*Values)
	if !ok {
		return nil, errors.New("web value missing from context")
	}
	return v, nil
}

// SetStatusCode records the status code a handler intends to write so
// logging middleware can report it after the handler has already written
// the response.
func SetStatusCode(ctx context.Context, statusCode int) error {
	v, err := GetValues(ctx)
	if err != nil {
		return err
	}
	v.StatusCode = statusCode
	return nil
}

// Param returns the named route parameter carried on the request context.
func Param(r *http.Request, key string) string {
	params, ok := r.Context().Value(paramsKey).(map[string]string)
	if !ok {
		return ""
	}
	return params[key]
}
