package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

const maxBodyBytes = 1 << 16

// decodeRequest decodes and validates a JSON body into req. It writes the
// 400 response itself and returns false on failure. An empty body is accepted
// when allowEmpty is set.
func decodeRequest(w http.ResponseWriter, r *http.Request, req any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return false
		}
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
