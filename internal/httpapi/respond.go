package httpapi

import (
	"errors"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/koustreak/ocisql/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  int    `json:"code,omitempty"`
}

// statusOf maps an error kind to the HTTP status returned for it.
func statusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindArgument:
		return http.StatusBadRequest
	case errs.ErrKindResourceBusy:
		return http.StatusConflict
	case errs.ErrKindUnsupportedType:
		return http.StatusUnprocessableEntity
	case errs.ErrKindDatabase:
		return http.StatusBadGateway
	case errs.ErrKindAllocation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorBody{
		Error: err.Error(),
		Kind:  errs.KindOf(err).String(),
		Code:  errs.CodeOf(err),
	})
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindArgument, "invalid request body", err)
	}
	return nil
}
