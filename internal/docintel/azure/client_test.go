package azure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docintel-backend/internal/docintel"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Endpoint:   endpoint,
		Key:        "test-key",
		APIVersion: "2024-02-29-preview",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "https://res.example"}); err == nil {
		t.Fatalf("expected error without key or AAD credentials")
	}
	if _, err := NewClient(Config{Key: "k"}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}

func TestSubmitURLSource(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Operation-Location", "https://res.example/operations/op-123?api-version=2024-02-29-preview")
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	ref, err := client.Submit(context.Background(), docintel.SubmitRequest{
		ModelID:     "prebuilt-invoice",
		DocumentURL: "https://example.com/invoice.pdf",
		Locale:      "en-US",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !strings.Contains(gotPath, "/documentintelligence/documentModels/prebuilt-invoice:analyze") {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("subscription key header = %q", gotKey)
	}
	if gotBody["urlSource"] != "https://example.com/invoice.pdf" {
		t.Fatalf("body = %v", gotBody)
	}
	if !strings.HasPrefix(ref, "https://res.example/operations/op-123") {
		t.Fatalf("remote ref = %q", ref)
	}
}

func TestSubmitInlineContentUsesBase64(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Operation-Location", "https://res.example/operations/op-9")
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.Submit(context.Background(), docintel.SubmitRequest{
		ModelID: "prebuilt-read",
		Content: []byte("hello"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if gotBody["base64Source"] != "aGVsbG8=" {
		t.Fatalf("base64Source = %q", gotBody["base64Source"])
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, docintel.ErrInvalidDocument},
		{http.StatusUnauthorized, docintel.ErrAuthFailed},
		{http.StatusForbidden, docintel.ErrAuthFailed},
		{http.StatusTooManyRequests, docintel.ErrRateLimited},
		{http.StatusInternalServerError, docintel.ErrUnreachable},
		{http.StatusBadGateway, docintel.ErrUnreachable},
	}

	for _, tc := range cases {
		status := tc.status
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"code":"SomeCode","message":"nope"}}`))
		}))

		client := newTestClient(t, server.URL)
		_, err := client.Submit(context.Background(), docintel.SubmitRequest{
			ModelID:     "prebuilt-read",
			DocumentURL: "https://example.com/doc.pdf",
		})
		server.Close()

		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestSubmitMissingOperationLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.Submit(context.Background(), docintel.SubmitRequest{
		ModelID:     "prebuilt-read",
		DocumentURL: "https://example.com/doc.pdf",
	})
	if !errors.Is(err, docintel.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestSubmitUnreachableHost(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")
	_, err := client.Submit(context.Background(), docintel.SubmitRequest{
		ModelID:     "prebuilt-read",
		DocumentURL: "https://example.com/doc.pdf",
	})
	if !errors.Is(err, docintel.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestPollRunningThenSucceeded(t *testing.T) {
	responses := []string{
		`{"status":"running"}`,
		`{"status":"succeeded","analyzeResult":{"modelId":"prebuilt-read","content":"hi","pages":[]}}`,
	}
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := responses[call]
		if call < len(responses)-1 {
			call++
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)

	first, err := client.Poll(context.Background(), server.URL+"/operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if first.Status != docintel.StatusRunning {
		t.Fatalf("first status = %s", first.Status)
	}

	second, err := client.Poll(context.Background(), server.URL+"/operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if second.Status != docintel.StatusSucceeded {
		t.Fatalf("second status = %s", second.Status)
	}
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(second.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Content != "hi" {
		t.Fatalf("payload content = %q", payload.Content)
	}
}

func TestPollFailedJobCarriesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"failed","error":{"code":"InvalidContent","message":"file is corrupt"}}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	res, err := client.Poll(context.Background(), server.URL+"/operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != docintel.StatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if res.ErrorDetail != "InvalidContent: file is corrupt" {
		t.Fatalf("detail = %q", res.ErrorDetail)
	}
}

func TestPollUnknownStatusKeepsRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"analyzing"}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	res, err := client.Poll(context.Background(), server.URL+"/operations/op-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if res.Status != docintel.StatusRunning {
		t.Fatalf("unknown status must map to running, got %s", res.Status)
	}
}
