package middleware

import (
	"encoding/json"
	"net/http"
)

// writeJSONError writes an error body in the API's {code, message} shape.
func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": msg})
}
