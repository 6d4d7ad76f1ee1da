package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLoadBuildsSectionRoute(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"results":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Load(context.Background(), "binance_market", map[string]string{
		"symbol":    "BTC",
		"startDate": "2025-09-01",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotPath != "/api/binance_market" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "symbol=BTC") || !strings.Contains(gotQuery, "startDate=2025-09-01") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestLoadPolarIgnoresParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Load(context.Background(), "binance_polar", map[string]string{"symbol": "BTC"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotQuery != "" {
		t.Errorf("binance_polar sent query %q, want none", gotQuery)
	}
}

func TestLoadUnreachableIsErrUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	_, err := c.Load(context.Background(), "bitcoin", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestLoadNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Load(context.Background(), "eth", nil)
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("HTTP 500 must not be classified as unreachable")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Load(context.Background(), "eth", nil); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestLoadReturnsBodyVerbatim(t *testing.T) {
	const payload = `{"candles":{"dates":["2025-09-01"]},"netflow":{"values":[1.5]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Load(context.Background(), "binance_market", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != payload {
		t.Errorf("payload altered: %s", got)
	}
	if !json.Valid(got) {
		t.Error("payload not valid JSON")
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning = false for live server")
	}

	srv.Close()
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning = true for closed server")
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	c := New("http://127.0.0.1:1")
	start := time.Now()
	if c.WaitReady(context.Background(), 300*time.Millisecond, &strings.Builder{}) {
		t.Error("WaitReady = true for dead address")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("WaitReady did not respect its timeout")
	}
}
