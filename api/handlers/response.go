package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/linesmerrill/benefits-access-api/api"
	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/models"
)

// maxBodyBytes caps request bodies the handlers decode
const maxBodyBytes = 1 << 20

var kindStatus = map[models.ErrorKind]int{
	models.KindNotFound:            http.StatusNotFound,
	models.KindExpired:             http.StatusGone,
	models.KindAlreadyConsumed:     http.StatusConflict,
	models.KindEmailMismatch:       http.StatusForbidden,
	models.KindQuotaExceeded:       http.StatusConflict,
	models.KindBelowUsage:          http.StatusConflict,
	models.KindGenerationExhausted: http.StatusServiceUnavailable,
	models.KindStoreUnavailable:    http.StatusServiceUnavailable,
	models.KindInvalid:             http.StatusBadRequest,
}

// StatusForKind maps an error kind onto the HTTP status it is served with
func StatusForKind(kind models.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeOK writes {"ok": true, key: v}
func writeOK(w http.ResponseWriter, status int, key string, v interface{}) {
	body := map[string]interface{}{"ok": true}
	if key != "" {
		body[key] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeOutcome records the operation's outcome and writes err as a kind envelope, or as a
// plain 500 when err carries no kind
func writeOutcome(w http.ResponseWriter, r *http.Request, operation string, err error) {
	api.RecordOutcome(r.Context(), operation, err)

	var ke *models.KindError
	if errors.As(err, &ke) {
		config.OutcomeStatus(ke.Kind, ke.Message, StatusForKind(ke.Kind), w)
		return
	}
	config.ErrorStatus("failed to "+operation, http.StatusInternalServerError, w, err)
}

func invalid(w http.ResponseWriter, r *http.Request, operation, message string) {
	writeOutcome(w, r, operation, models.NewKindError(models.KindInvalid, message))
}

func forbidden(w http.ResponseWriter, r *http.Request, operation string) {
	api.RecordOutcome(r.Context(), operation, errors.New("forbidden"))
	config.ErrorStatus("issuer may not act on this company", http.StatusForbidden, w, nil)
}

// decodeBody decodes a JSON body into v, rejecting unknown fields
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
