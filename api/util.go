package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MAGICGrants/campaign-site"
)

func returnData(w http.ResponseWriter, retData any) {
	statusData(w, retData, 200)
}

func errorData(w http.ResponseWriter, err error) {
	statusData(w, err, campaign.ErrorCode(err))
}

func statusData(w http.ResponseWriter, retData any, statusCode int) {
	if err, ok := retData.(error); ok {
		retData = struct {
			Error string `json:"error"`
		}{Error: err.Error()}
	}
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(retData); err != nil {
		slog.Warn("Could not send return data", slog.Any("err", err))
	}
}

// ackData writes the {success: bool} acknowledgment all three processors
// expect from their webhook endpoints.
func ackData(w http.ResponseWriter, success bool, statusCode int) {
	statusData(w, struct {
		Success bool `json:"success"`
	}{Success: success}, statusCode)
}
