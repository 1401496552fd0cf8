package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func getFunding(t *testing.T, query string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/funding-required?"+query, nil)
	w := httptest.NewRecorder()
	testHandler(t).ServeHTTP(w, req)

	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("%s: invalid JSON response: %v", query, err)
	}
	return w, out.Error
}

func TestFundingRequiredRejectsBadQuery(t *testing.T) {
	for _, query := range []string{
		"fund=nonexistent",
		"asset=DOGE",
		"project_status=MAYBE",
	} {
		w, errMsg := getFunding(t, query)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, w.Code)
		}
		if errMsg == "" {
			t.Errorf("%s: expected an error body", query)
		}
	}
}

func TestFundingRequiredIgnoresUnknownParameters(t *testing.T) {
	// Unknown keys must not fail the decode; the bad asset must still be
	// caught by validation afterwards.
	w, errMsg := getFunding(t, "utm_source=newsletter&asset=DOGE")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(errMsg, "Invalid funding query") {
		t.Errorf("error = %q, want a validation error, not a decode error", errMsg)
	}
}
