package http

import (
	"encoding/json"
	"net/http"
)

// writeJSON renders v with the given status. Encoding failures are
// swallowed; the status line has already been written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
