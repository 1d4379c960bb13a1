package command

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendTakeoff(t *testing.T) {
	var gotAlt float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/command/takeoff" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("token") != "k&y" {
			t.Errorf("token not forwarded: %q", r.URL.RawQuery)
		}
		var body map[string]float64
		json.NewDecoder(r.Body).Decode(&body)
		gotAlt = body["altitude_m"]
		w.Write([]byte(`{"status":"ok","detail":"Taking off to 15m"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "k&y", nil, nil)
	res, err := c.Send(context.Background(), Takeoff, Params{AltitudeM: 15})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAlt != 15 || res.Message() != "Taking off to 15m" || res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %+v alt=%v", res, gotAlt)
	}
}

func TestSendRejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"error","detail":"Drone not connected"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "key", nil, nil).Send(context.Background(), Arm, Params{})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if res.Message() != "Drone not connected" || res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single request, got %d", calls.Load())
	}
}

func TestSendNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "key", nil, nil).Send(context.Background(), Land, Params{})
	if err == nil || res.Message() != "upstream down" {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestSendUnknownAction(t *testing.T) {
	_, err := NewClient("http://unused", "key", nil, nil).Send(context.Background(), "flip", Params{})
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res, err := NewClient(url, "key", nil, nil).Send(context.Background(), Disarm, Params{})
	if err == nil || res.Message() == "Command sent" {
		t.Fatalf("expected transport error surfaced, got %+v %v", res, err)
	}
}

func TestSendTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "200")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","det`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "key", nil, nil).Send(context.Background(), Land, Params{})
	if err == nil {
		t.Fatalf("expected truncated body to be reported")
	}
	if res.Message() == "Command sent" || !strings.Contains(res.Message(), "response incomplete") {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected status kept, got %d", res.StatusCode)
	}
}

func TestMessageFallback(t *testing.T) {
	if (Result{}).Message() != "Command sent" {
		t.Fatalf("unexpected fallback message")
	}
	if (Result{Error: "boom"}).Message() != "boom" {
		t.Fatalf("expected error message")
	}
}
