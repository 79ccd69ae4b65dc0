package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) (*CloudSender, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sender, err := NewCloudSender(CloudConfig{
		BaseURL:       srv.URL,
		AccessToken:   "token",
		PhoneNumberID: "12345",
		Backoff:       time.Millisecond,
		MaxRetries:    2,
	})
	if err != nil {
		t.Fatalf("NewCloudSender: %v", err)
	}
	return sender, srv
}

func TestCloudSenderSendText(t *testing.T) {
	var got outboundMessage
	sender, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	if err := sender.SendText(context.Background(), "5511999990000", "Olá!"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if got.To != "5511999990000" || got.Type != "text" || got.Text == nil || got.Text.Body != "Olá!" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestCloudSenderSendMediaPicksType(t *testing.T) {
	var payloads []outboundMessage
	sender, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		var msg outboundMessage
		json.NewDecoder(r.Body).Decode(&msg)
		payloads = append(payloads, msg)
		w.WriteHeader(http.StatusOK)
	})

	ctx := context.Background()
	if err := sender.SendMedia(ctx, "551199", "https://cdn.example.com/prova.mp4", "Olha isso"); err != nil {
		t.Fatalf("SendMedia video: %v", err)
	}
	if err := sender.SendMedia(ctx, "551199", "https://cdn.example.com/antes_depois.jpg", ""); err != nil {
		t.Fatalf("SendMedia image: %v", err)
	}

	if payloads[0].Type != "video" || payloads[0].Video == nil || payloads[0].Video.Caption != "Olha isso" {
		t.Fatalf("video payload = %+v", payloads[0])
	}
	if payloads[1].Type != "image" || payloads[1].Image == nil {
		t.Fatalf("image payload = %+v", payloads[1])
	}
}

func TestCloudSenderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	sender, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := sender.SendText(context.Background(), "551199", "oi"); err != nil {
		t.Fatalf("SendText after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestCloudSenderDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	sender, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	if err := sender.SendText(context.Background(), "551199", "oi"); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCloudSenderTypingState(t *testing.T) {
	var body map[string]string
	sender, _ := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/typing_indicators" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})

	if err := sender.SendTypingState(context.Background(), "551199", true); err != nil {
		t.Fatalf("SendTypingState: %v", err)
	}
	if body["typing"] != "on" {
		t.Fatalf("typing payload = %v", body)
	}
}
