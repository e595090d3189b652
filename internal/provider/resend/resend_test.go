package resend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/provider"
)

func buildMessage(t *testing.T, configure func(d *email.Draft)) *email.Message {
	t.Helper()

	d := email.NewDraft()
	if err := d.SetFrom("sender@example.com"); err != nil {
		t.Fatalf("SetFrom: %v", err)
	}
	if err := d.AddTo("to@example.com"); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	d.SetSubject("Welcome")
	d.SetMsg("Hello")
	if configure != nil {
		configure(d)
	}
	msg, err := d.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return msg
}

// apiRequest mirrors the JSON body Resend receives.
type apiRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Cc          []string          `json:"cc"`
	Bcc         []string          `json:"bcc"`
	ReplyTo     string            `json:"reply_to"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Text        string            `json:"text"`
	Headers     map[string]string `json:"headers"`
	Attachments []struct {
		Filename string `json:"filename"`
		Content  []byte `json:"content"`
	} `json:"attachments"`
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{APIKey: "re_test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.SetRetryPolicy(provider.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond})
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	p, err := New(Config{APIKey: "re_test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "resend" {
		t.Errorf("Name: got %q, want %q", p.Name(), "resend")
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	var got apiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("request: got %s %s, want POST /emails", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer re_test" {
			t.Errorf("Authorization: got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	})

	msg := buildMessage(t, func(d *email.Draft) {
		_ = d.AddCc("cc@example.com")
		_ = d.AddBcc("bcc@example.com")
		_ = d.AddReplyTo("a@example.com")
		_ = d.AddReplyTo("b@example.com")
		_ = d.AddHeader("X-Entity-Ref-ID", "123")
		d.SetMultipart(email.NewAlternative().
			AddPart("text/plain", "Hello").
			AddPart("text/html", "<p>Hello</p>").
			Attach("invoice.txt", "text/plain", []byte("total: 10")))
	})

	if err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.From != "<sender@example.com>" {
		t.Errorf("from: got %q", got.From)
	}
	if len(got.To) != 1 || got.To[0] != "to@example.com" {
		t.Errorf("to: got %v", got.To)
	}
	if len(got.Cc) != 1 || len(got.Bcc) != 1 || got.Bcc[0] != "bcc@example.com" {
		t.Errorf("cc/bcc: got %v / %v", got.Cc, got.Bcc)
	}
	if got.ReplyTo != "a@example.com, b@example.com" {
		t.Errorf("reply_to: got %q", got.ReplyTo)
	}
	if got.Subject != "Welcome" || got.Text != "Hello" || got.HTML != "<p>Hello</p>" {
		t.Errorf("content: got subject=%q text=%q html=%q", got.Subject, got.Text, got.HTML)
	}
	if got.Headers["X-Entity-Ref-ID"] != "123" {
		t.Errorf("headers: got %v", got.Headers)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Filename != "invoice.txt" || string(got.Attachments[0].Content) != "total: 10" {
		t.Errorf("attachments: got %+v", got.Attachments)
	}
}

func TestSend_RetriesThenFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"statusCode":500,"name":"internal_server_error","message":"boom"}`))
	})

	if err := p.Send(context.Background(), buildMessage(t, nil)); err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls.Load() != 3 {
		t.Errorf("calls: got %d, want 3", calls.Load())
	}
}

func TestSend_StatusRetries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "validation error", status: http.StatusUnprocessableEntity, wantCalls: 1},
		{name: "unauthorized", status: http.StatusUnauthorized, wantCalls: 1},
		{name: "rate limited", status: http.StatusTooManyRequests, wantCalls: 3},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"statusCode":%d,"name":"error","message":"rejected"}`, tt.status)
			})

			if err := p.Send(context.Background(), buildMessage(t, nil)); err == nil {
				t.Fatal("expected error, got nil")
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls: got %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestBuildRequest_Minimal(t *testing.T) {
	t.Parallel()

	req := buildRequest(buildMessage(t, nil))
	if req.ReplyTo != "" {
		t.Errorf("ReplyTo: got %q, want empty", req.ReplyTo)
	}
	if req.Headers != nil {
		t.Errorf("Headers: got %v, want nil", req.Headers)
	}
	if len(req.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(req.Attachments))
	}
	if req.Cc != nil || req.Bcc != nil {
		t.Errorf("Cc/Bcc: got %v / %v, want nil", req.Cc, req.Bcc)
	}
}

func TestProviderInterface(t *testing.T) {
	t.Parallel()

	var _ provider.Provider = (*Provider)(nil)
}
