package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxhire/voxhire/pkg/backend"
)

func TestIssueRealtimeCredential(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webrtc/session" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("voice"); got != "ash" {
			t.Errorf("voice = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-key" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{"value": "ek_abc123"},
		})
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL, backend.WithAPIKey("svc-key"))
	secret, err := client.IssueRealtimeCredential(context.Background(), "ash", map[string]string{"jobId": "42"})
	if err != nil {
		t.Fatalf("IssueRealtimeCredential: %v", err)
	}
	if secret != "ek_abc123" {
		t.Errorf("secret = %q", secret)
	}
}

func TestIssueRealtimeCredentialMissingSecret(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sess_1"})
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL)
	secret, err := client.IssueRealtimeCredential(context.Background(), "ash", nil)
	if err != nil {
		t.Fatalf("IssueRealtimeCredential: %v", err)
	}
	// The caller (SignalingClient) classifies an empty value as a malformed
	// credential; the client just reports what the backend sent.
	if secret != "" {
		t.Errorf("secret = %q, want empty", secret)
	}
}

func TestIssueRealtimeCredentialServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream quota exceeded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL)
	if _, err := client.IssueRealtimeCredential(context.Background(), "ash", nil); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestQuestions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "technical" {
			t.Errorf("type = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "text": "What is a race condition?"},
			{"id": 2, "text": "Explain database indexing."},
		})
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL)
	questions, err := client.Questions(context.Background(), "technical")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(questions) != 2 || questions[0].Text != "What is a race condition?" {
		t.Errorf("questions = %+v", questions)
	}
}

func TestSubmitFeedback(t *testing.T) {
	t.Parallel()

	var got backend.Feedback
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/feedback" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL)
	fb := backend.Feedback{SessionID: "sess_9", Rating: 4, Comments: "smooth audio"}
	if err := client.SubmitFeedback(context.Background(), fb); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if got != fb {
		t.Errorf("received = %+v, want %+v", got, fb)
	}
}

func TestSubmitFeedbackRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rating out of range", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client := backend.New(srv.URL)
	if err := client.SubmitFeedback(context.Background(), backend.Feedback{Rating: 11}); err == nil {
		t.Fatal("expected error for rejected feedback")
	}
}
