package handler

import (
	"encoding/json"
	"net/http"

	"github.com/brunojppb/mailbolt/internal/logger"
	"github.com/brunojppb/mailbolt/internal/middleware"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		body["request_id"] = reqID
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

// requestLog returns the handler logger tagged with the request ID, if any
func (h *Handler) requestLog(r *http.Request) *logger.Logger {
	if reqID := middleware.GetRequestID(r.Context()); reqID != "" {
		return h.log.WithRequestID(reqID)
	}
	return h.log
}
