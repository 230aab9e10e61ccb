package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phyn2-2/medasset-sentinel/internal/models"
	"github.com/phyn2-2/medasset-sentinel/internal/service"
)

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandlers_SignUpAndSignIn(t *testing.T) {
	auth := &mockAuth{signUpID: 42, genTokenToken: "tok123", parseID: 1}
	s := &service.Service{Authorization: auth}
	r := newTestRouter(s)

	// sign-up success
	w := postJSON(r, "/auth/sign-up", `{"username":"u","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status=%d, body=%s", w.Code, w.Body.String())
	}
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if int(m["id"].(float64)) != 42 {
		t.Fatalf("expected id=42, got %v", m["id"])
	}
	if auth.lastSignUpUsername != "u" || auth.lastSignUpPassword != "p" {
		t.Fatalf("SignUp got %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}

	// sign-in success
	w = postJSON(r, "/auth/sign-in", `{"username":"u","password":"p"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status=%d, body=%s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m["token"] != "tok123" {
		t.Fatalf("expected token tok123, got %v", m["token"])
	}

	// sign-in invalid body → 400
	w = postJSON(r, "/auth/sign-in", `{"username":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestAuthHandlers_Failures(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		auth     *mockAuth
		wantCode int
		wantMsg  string
	}{
		{
			name:     "sign-in wrong password",
			path:     "/auth/sign-in",
			auth:     &mockAuth{genTokenErr: errors.New("bad password")},
			wantCode: http.StatusUnauthorized,
			wantMsg:  "invalid credentials",
		},
		{
			name:     "sign-in store down",
			path:     "/auth/sign-in",
			auth:     &mockAuth{genTokenErr: fmt.Errorf("get user: %w", models.ErrStoreUnavailable)},
			wantCode: http.StatusServiceUnavailable,
			wantMsg:  errUnavailable,
		},
		{
			name:     "sign-up duplicate",
			path:     "/auth/sign-up",
			auth:     &mockAuth{signUpErr: fmt.Errorf("user exists: %w", models.ErrConflict)},
			wantCode: http.StatusConflict,
		},
		{
			name:     "sign-up blank password",
			path:     "/auth/sign-up",
			auth:     &mockAuth{signUpErr: fmt.Errorf("%w: password is empty", models.ErrValidation)},
			wantCode: http.StatusBadRequest,
			wantMsg:  "validation failed: password is empty",
		},
		{
			name:     "sign-up unexpected error",
			path:     "/auth/sign-up",
			auth:     &mockAuth{signUpErr: errors.New("boom")},
			wantCode: http.StatusInternalServerError,
			wantMsg:  errInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&service.Service{Authorization: tc.auth})
			w := postJSON(r, tc.path, `{"username":"u","password":"p"}`)
			if w.Code != tc.wantCode {
				t.Fatalf("status=%d, want %d; body=%s", w.Code, tc.wantCode, w.Body.String())
			}
			if tc.wantMsg != "" {
				var out errorResponse
				_ = json.Unmarshal(w.Body.Bytes(), &out)
				if out.Error != tc.wantMsg {
					t.Fatalf("error=%q, want %q", out.Error, tc.wantMsg)
				}
			}
		})
	}
}
