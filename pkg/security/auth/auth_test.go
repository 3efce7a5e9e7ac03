package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKeySet_Validate(t *testing.T) {
	keys := NewKeySet([]string{"k-one", "", "k-two"})
	if keys.Len() != 2 {
		t.Errorf("Len() = %d, want 2", keys.Len())
	}

	tests := []struct {
		key  string
		want bool
	}{
		{"k-one", true},
		{"k-two", true},
		{"k-three", false},
		{"", false},
		{"K-ONE", false},
	}
	for _, tt := range tests {
		id, ok := keys.Validate(tt.key)
		if ok != tt.want {
			t.Errorf("Validate(%q) = %v, want %v", tt.key, ok, tt.want)
		}
		if ok && id != KeyIdentifier(tt.key) {
			t.Errorf("Validate(%q) id = %q, want %q", tt.key, id, KeyIdentifier(tt.key))
		}
	}
}

func TestKeySet_Replace(t *testing.T) {
	keys := NewKeySet([]string{"old"})
	keys.Replace([]string{"new"})

	if _, ok := keys.Validate("old"); ok {
		t.Error("replaced key still accepted")
	}
	if _, ok := keys.Validate("new"); !ok {
		t.Error("new key rejected")
	}
}

func TestKeyIdentifier(t *testing.T) {
	id := KeyIdentifier("secret")
	if len(id) != 8 {
		t.Errorf("identifier length = %d, want 8", len(id))
	}
	if id == KeyIdentifier("other") {
		t.Error("different keys share an identifier")
	}
}

func TestMiddleware(t *testing.T) {
	keys := NewKeySet([]string{"sk-valid"})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		header     string
		setup      func(*http.Request)
		wantStatus int
	}{
		{
			name:       "bearer token",
			header:     "Authorization",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sk-valid") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer scheme is case insensitive",
			header:     "Authorization",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "bearer sk-valid") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "authorization without scheme",
			header:     "Authorization",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "sk-valid") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "custom header",
			header:     "X-Governor-Key",
			setup:      func(r *http.Request) { r.Header.Set("X-Governor-Key", "sk-valid") },
			wantStatus: http.StatusOK,
		},
		{
			name:       "query parameter",
			header:     "Authorization",
			setup:      func(r *http.Request) { r.URL.RawQuery = "api_key=sk-valid" },
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong key",
			header:     "Authorization",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer sk-other") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no key",
			header:     "Authorization",
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := Middleware(keys, tt.header, nil, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = KeyID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/v1/decisions", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen != KeyIdentifier("sk-valid") {
				t.Errorf("KeyID = %q, want %q", seen, KeyIdentifier("sk-valid"))
			}
		})
	}
}

func TestMiddleware_CustomReject(t *testing.T) {
	var msg string
	reject := func(w http.ResponseWriter, r *http.Request, m string) {
		msg = m
		w.WriteHeader(http.StatusForbidden)
	}
	h := Middleware(NewKeySet(nil), "", reject, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached without a key")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusForbidden || msg != "missing API key" {
		t.Errorf("status = %d msg = %q", rec.Code, msg)
	}
}
