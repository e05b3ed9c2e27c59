package web

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bowlofstew/credo-core-node/business/sys/validate"
)

// Decode reads the body of an HTTP request looking for a JSON document and
// unmarshals it into the provided value, then runs any "validate" tags
// declared on val.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(val); err != nil {
		return errors.Wrap(err, "unable to decode payload")
	}

	if err := validate.Check(val); err != nil {
		return errors.Wrap(err, "unable to validate payload")
	}

	return nil
}
