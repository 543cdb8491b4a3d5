package api

import (
	"encoding/json"
	"net/http"

	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

// ErrorResponse is the error body. Task carries the last-known state
// when the operation partially succeeded (confirmed but unpaid).
type ErrorResponse struct {
	Status string     `json:"status"`
	Error  string     `json:"error"`
	Task   *task.Task `json:"task,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err string) {
	writeJSON(w, status, ErrorResponse{
		Status: "error",
		Error:  err,
	})
}
