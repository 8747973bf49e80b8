package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ecosweep.org/internal/auth"
)

func authFixture(t *testing.T) (*API, *auth.Tokens) {
	t.Helper()
	tokens, err := auth.NewTokens([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return &API{tokens: tokens}, tokens
}

func TestWithAuthRejectsMissingToken(t *testing.T) {
	api, _ := authFixture(t)
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/zones", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthAcceptsValidToken(t *testing.T) {
	api, tokens := authFixture(t)
	var got auth.Principal
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := tokens.Issue("u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/zones", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.UserID != "u1" || got.Name != "Alice" {
		t.Fatalf("unexpected principal: %#v", got)
	}
}

func TestWithAuthRejectsExpiredToken(t *testing.T) {
	api, _ := authFixture(t)
	past := time.Now().Add(-48 * time.Hour)
	expiredIssuer, err := auth.NewTokens([]byte("test-secret"),
		auth.WithTTL(time.Minute),
		auth.WithClock(func() time.Time { return past }),
	)
	if err != nil {
		t.Fatal(err)
	}
	token, err := expiredIssuer.Issue("u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}

	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/zones", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWithAuthSkipsPublicPaths(t *testing.T) {
	api, _ := authFixture(t)
	handler := api.withAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/v1/info", "/v1/users", "/v1/auth/token"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("header %q: got %q, err %v", tc.header, got, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("header %q: expected error", tc.header)
		}
	}
}
