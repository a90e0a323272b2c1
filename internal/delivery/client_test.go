package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/delivery"
	"vigil/internal/queue"
	"vigil/internal/services"
)

func testRemote(baseURL string) config.Remote {
	return config.Remote{
		BaseURL:          baseURL,
		AuthToken:        "token",
		NegotiateTimeout: 5,
		TransferTimeout:  5,
		ConfirmTimeout:   5,
	}
}

func testItem() *queue.Item {
	return &queue.Item{
		ID:        "seg:session-1:000001:100",
		OwnerID:   "candidate-1",
		SessionID: "session-1",
		Kind:      queue.KindSegment,
		Payload:   []byte("segment payload"),
	}
}

func TestDeliverRunsAllThreeLegs(t *testing.T) {
	var putBody []byte
	var confirmed bool

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/artifacts/negotiate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing auth header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode negotiate body: %v", err)
		}
		if req["item_id"] != "seg:session-1:000001:100" {
			t.Errorf("unexpected item_id %v", req["item_id"])
		}
		if req["owner_id"] != "candidate-1" {
			t.Errorf("unexpected owner_id %v", req["owner_id"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"upload_url": server.URL + "/blob/abc",
			"locator":    "remote://artifacts/abc",
		})
	})
	mux.HandleFunc("/blob/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		putBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/artifacts/confirm", func(w http.ResponseWriter, r *http.Request) {
		confirmed = true
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode confirm body: %v", err)
		}
		if req["owner_id"] != "candidate-1" {
			t.Errorf("unexpected owner_id %v", req["owner_id"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"locator":      "remote://artifacts/abc",
			"confirmed_at": time.Now().Format(time.RFC3339Nano),
		})
	})

	client := delivery.NewClient(testRemote(server.URL))
	receipt, err := client.Deliver(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if receipt.Locator != "remote://artifacts/abc" {
		t.Fatalf("unexpected locator %q", receipt.Locator)
	}
	if string(putBody) != "segment payload" {
		t.Fatalf("transfer body mismatch: %q", putBody)
	}
	if !confirmed {
		t.Fatal("confirm leg never ran")
	}
}

func TestDeliverServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := delivery.NewClient(testRemote(server.URL))
	_, err := client.Deliver(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDeliveryFailed) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if services.IsTerminal(err) {
		t.Fatalf("503 must stay retryable, got %v", err)
	}
}

func TestDeliverRejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown session", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := delivery.NewClient(testRemote(server.URL))
	_, err := client.Deliver(context.Background(), testItem())
	if !services.IsTerminal(err) {
		t.Fatalf("expected permanent marker, got %v", err)
	}
}

func TestDeliverThrottlingStaysRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := delivery.NewClient(testRemote(server.URL))
	_, err := client.Deliver(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTerminal(err) {
		t.Fatalf("429 must stay retryable, got %v", err)
	}
}

func TestDeliverFailedTransferSkipsConfirm(t *testing.T) {
	var confirmCalled bool

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/artifacts/negotiate", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"upload_url": server.URL + "/blob/abc",
			"locator":    "remote://artifacts/abc",
		})
	})
	mux.HandleFunc("/blob/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	})
	mux.HandleFunc("/v1/artifacts/confirm", func(w http.ResponseWriter, r *http.Request) {
		confirmCalled = true
	})

	client := delivery.NewClient(testRemote(server.URL))
	_, err := client.Deliver(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if confirmCalled {
		t.Fatal("confirm must not run after a failed transfer")
	}
}

func TestDeliverUnreachableRemoteIsTransient(t *testing.T) {
	client := delivery.NewClient(testRemote("http://127.0.0.1:1"))
	_, err := client.Deliver(context.Background(), testItem())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDeliveryFailed) || services.IsTerminal(err) {
		t.Fatalf("expected transient delivery error, got %v", err)
	}
}
