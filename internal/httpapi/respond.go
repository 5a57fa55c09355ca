package httpapi

import (
	"encoding/json"
	"net/http"
)

// Every response carries the same envelope. Code 0 means success; error
// codes mirror the HTTP status so script clients can switch on either.
type envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

// listPayload is the data shape for collection endpoints.
type listPayload struct {
	List  any   `json:"list"`
	Total int64 `json:"total"`
}

func respondOK(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, envelope{Code: 0, Data: data, Message: "ok"})
}

func respondList(w http.ResponseWriter, list any, total int64) {
	respondOK(w, listPayload{List: list, Total: total})
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, envelope{Code: status, Message: msg})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
