package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if !requestIDPattern.MatchString(id) {
			t.Fatalf("generated ID %q does not match its own validation pattern", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestRequestIDContext(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want \"\"", got)
	}
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-123")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantKept bool
	}{
		{name: "no header generates one", header: "", wantKept: false},
		{name: "valid upstream ID kept", header: "upstream-abc_123", wantKept: true},
		{name: "invalid characters replaced", header: "bad id\nwith newline", wantKept: false},
		{name: "overlong ID replaced", header: strings.Repeat("a", 129), wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			respID := rec.Header().Get(RequestIDHeader)
			if respID == "" {
				t.Fatal("response missing request ID header")
			}
			if respID != ctxID {
				t.Errorf("response ID %q != context ID %q", respID, ctxID)
			}
			if tt.wantKept && respID != tt.header {
				t.Errorf("expected upstream ID %q to be kept, got %q", tt.header, respID)
			}
			if !tt.wantKept && respID == tt.header {
				t.Errorf("expected upstream ID %q to be replaced", tt.header)
			}
			if !requestIDPattern.MatchString(respID) {
				t.Errorf("response ID %q invalid", respID)
			}
		})
	}
}
