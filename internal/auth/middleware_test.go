package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sakif/journal/internal/apperror"
)

// recordingErrorWriter captures the error RequireAuth rejected with.
func recordingErrorWriter(got *error) ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		*got = err
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	valid, _ := ts.Generate("user-1")
	expired, _ := ts.GenerateWithDuration("user-1", -time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantErr    error
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, nil},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, nil},
		{"no header", "", http.StatusUnauthorized, apperror.ErrUnauthenticated},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, apperror.ErrUnauthenticated},
		{"bearer without token", "Bearer ", http.StatusUnauthorized, apperror.ErrUnauthenticated},
		{"token without scheme", valid, http.StatusUnauthorized, apperror.ErrUnauthenticated},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, apperror.ErrInvalidToken},
		{"malformed token", "Bearer abc.def.ghi", http.StatusUnauthorized, apperror.ErrUnauthenticated},
		{"forged signature", "Bearer " + valid[:len(valid)-4] + "AAAA", http.StatusUnauthorized, apperror.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotErr    error
				reached   bool
				gotUserID string
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				gotUserID, _ = UserIDFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/api/entries", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireAuth(ts, recordingErrorWriter(&gotErr))(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantErr == nil {
				if !reached || gotUserID != "user-1" {
					t.Errorf("handler reached = %v with userID %q, want user-1", reached, gotUserID)
				}
				return
			}
			if reached {
				t.Error("handler should not run for a rejected request")
			}
			if !errors.Is(gotErr, tt.wantErr) {
				t.Errorf("error = %v, want %v", gotErr, tt.wantErr)
			}
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id, ok := UserIDFromContext(req.Context()); ok || id != "" {
		t.Errorf("UserIDFromContext() = (%q, %v), want (\"\", false)", id, ok)
	}
	if _, ok := UserIDFromContext(WithUserID(req.Context(), "")); ok {
		t.Error("an empty user ID should not count as authenticated")
	}
}
