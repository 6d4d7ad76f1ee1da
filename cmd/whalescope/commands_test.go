package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func withTestClient(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })
}

var ctx = context.Background()

func TestDataCommand_QueryParams(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/data/binance_market": `{"candles":[]}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"data", "binance_market",
		"--symbol", "BTCUSDT",
		"--start-date", "2026-01-01",
		"--end-date", "2026-02-01",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "GET" {
		t.Errorf("method = %q, want GET", r.Method)
	}
	if !strings.Contains(r.Path, "symbol=BTCUSDT") ||
		!strings.Contains(r.Path, "startDate=2026-01-01") ||
		!strings.Contains(r.Path, "endDate=2026-02-01") {
		t.Errorf("path = %q, missing query params", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
}

func TestExportCommand_Body(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/export": `{"path":"/tmp/out.csv"}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"export", "csv", "binance_market",
		"--symbol", "BTCUSDT",
		"--start-date", "2026-01-01",
		"--end-date", "2026-02-01",
		"--out", "/tmp/out.csv",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	var body struct {
		Kind        string            `json:"kind"`
		Section     string            `json:"section"`
		Destination string            `json:"destination"`
		Params      map[string]string `json:"params"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Kind != "csv" || body.Section != "binance_market" {
		t.Errorf("body = %+v", body)
	}
	if body.Destination != "/tmp/out.csv" {
		t.Errorf("destination = %q", body.Destination)
	}
	if body.Params["symbol"] != "BTCUSDT" || body.Params["startDate"] != "2026-01-01" {
		t.Errorf("params = %v", body.Params)
	}
}

func TestExportCommand_MissingOut(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	// Flag values persist across executions in the same process.
	exportCmd.Flags().Set("out", "")

	rootCmd.SetArgs([]string{"export", "csv", "binance_market"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --out")
	}
	if !strings.Contains(err.Error(), "--out") {
		t.Errorf("error = %q, want it to mention --out", err.Error())
	}
}

func TestInvokeCommand_PassesArgs(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/invoke": `{"stdout":"/tmp/artifact.csv"}`,
	})
	withTestClient(t, ts)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"invoke", "fetch_data.py", "BTCUSDT", "--", "--fast"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var body struct {
		Script string   `json:"script"`
		Args   []string `json:"args"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Script != "fetch_data.py" {
		t.Errorf("script = %q", body.Script)
	}
	if len(body.Args) == 0 || body.Args[0] != "BTCUSDT" {
		t.Errorf("args = %v", body.Args)
	}
}

func TestClient_ErrorBodySurfaced(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client().get(ctx, "/api/data/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not_found") {
		t.Errorf("error = %q, want it to carry the server body", err.Error())
	}
}
