package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"threadhub/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps the typed errors returned by services onto HTTP
// status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		notFound    *model.NotFoundError
		validation  *model.ValidationError
		conflict    *model.ConflictError
		unavailable *model.UnavailableError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "E_NOT_FOUND", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, "E_VALIDATION", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "E_CONFLICT", err.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, "E_UNAVAILABLE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "E_INTERNAL", err.Error())
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// queryInt returns the integer query parameter key, or fallback when it is
// absent or malformed.
func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
