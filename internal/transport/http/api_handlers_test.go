package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestManifestAndState(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Get(ts.URL + "/api/manifest")
	if err != nil {
		t.Fatalf("manifest request: %v", err)
	}
	var manifest struct {
		Datasource bool `json:"datasource"`
		Actions    []struct {
			Code string `json:"code"`
		} `json:"actions"`
	}
	decodeBody(t, resp, &manifest)
	if !manifest.Datasource || len(manifest.Actions) != 1 || manifest.Actions[0].Code != "publishMessage" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	resp, err = ts.Client().Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("state request: %v", err)
	}
	var state map[string]any
	decodeBody(t, resp, &state)
	if state["isConnected"] != true || state["connectionState"] != "connected" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestActionStatusMapping(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	tests := []struct {
		code   string
		status int
		errKey string
	}{
		{"echo", http.StatusOK, ""},
		{"validation", http.StatusBadRequest, "validation_error"},
		{"notInSpace", http.StatusConflict, "not_in_space"},
		{"doesNotExist", http.StatusNotFound, "unknown_action"},
		{"configuration", http.StatusServiceUnavailable, "configuration_error"},
		{"connection", http.StatusBadGateway, "connection_error"},
		{"internal", http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			resp, err := ts.Client().Post(ts.URL+"/api/actions/"+tt.code, "application/json", strings.NewReader(`{}`))
			if err != nil {
				t.Fatalf("action request: %v", err)
			}
			if resp.StatusCode != tt.status {
				resp.Body.Close()
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.errKey == "" {
				resp.Body.Close()
				return
			}
			var body ErrorResponse
			decodeBody(t, resp, &body)
			if body.Code != tt.errKey || body.Error == "" {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}
}

func TestActionPassesParams(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Post(ts.URL+"/api/actions/echo", "application/json",
		strings.NewReader(`{"channelName":"news","data":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("action request: %v", err)
	}
	var body struct {
		Status string         `json:"status"`
		Params map[string]any `json:"params"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" || body.Params["channelName"] != "news" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestActionWithoutBody(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Post(ts.URL+"/api/actions/echo", "application/json", nil)
	if err != nil {
		t.Fatalf("action request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected empty body to be accepted, got %d", resp.StatusCode)
	}
}

func TestActionRejectsMalformedBody(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Post(ts.URL+"/api/actions/echo", "application/json", strings.NewReader(`{"channelName":`))
	if err != nil {
		t.Fatalf("action request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(ts.adapter.calls) != 0 {
		t.Fatalf("adapter should not run for malformed body")
	}
}

func TestCollectionEndpoint(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Post(ts.URL+"/api/collections/history", "application/json",
		strings.NewReader(`{"mode":"dynamic","config":{}}`))
	if err != nil {
		t.Fatalf("collection request: %v", err)
	}
	var body struct {
		Data  any `json:"data"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error == nil || body.Error.Message != "Channel name is required" {
		t.Fatalf("expected collection error in body, got %+v", body)
	}
}

func TestTokenEndpoint(t *testing.T) {
	ts := startTestServer(t, fakeIssuer{}, 0)

	resp, err := ts.Client().Post(ts.URL+"/token", "application/json", strings.NewReader(`{"clientId":"weweb-42"}`))
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	var tok struct {
		Token    string `json:"token"`
		ClientID string `json:"clientId"`
	}
	decodeBody(t, resp, &tok)
	if tok.Token != "signed-weweb-42" || tok.ClientID != "weweb-42" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	resp, err = ts.Client().Post(ts.URL+"/token", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without clientId, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointDisabledWithoutIssuer(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Post(ts.URL+"/token", "application/json", strings.NewReader(`{"clientId":"a"}`))
	if err != nil {
		t.Fatalf("token request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := startTestServer(t, nil, 0)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}
