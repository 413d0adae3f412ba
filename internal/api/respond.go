package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": reason, ...details}. Internal failures
// are logged with their stage and never leak past the reason code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		stage := e.Stage
		if stage == "" {
			stage = "http"
		}
		log.Printf("stage=%s %s %s error: %v", stage, r.Method, r.URL.Path, err)
	}

	body := map[string]string{"error": string(e.Reason)}
	for k, v := range e.Details {
		body[k] = v
	}
	writeJSON(w, apperr.HTTPStatus(e), body)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.BadRequest, "invalid JSON body")
	}
	return nil
}
