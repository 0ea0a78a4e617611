package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesAndReusesCookie(t *testing.T) {
	var gotUser, gotSession string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName || !isValidAnonID(cookies[0].Value) {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	if gotUser != cookies[0].Value || gotSession != DefaultSessionIDValue {
		t.Fatalf("identity = %q/%q", gotUser, gotSession)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	req.Header.Set(SessionHeaderName, "tab-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != cookies[0].Value || gotSession != "tab-1" {
		t.Fatalf("identity not reused: %q/%q", gotUser, gotSession)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"":          DefaultSessionIDValue,
		"  tab.2  ": "tab.2",
		"bad id":    DefaultSessionIDValue,
		"../../etc": DefaultSessionIDValue,
		"a:b-c_d":   "a:b-c_d",
	}
	for in, want := range tests {
		if got := sanitizeSessionID(in); got != want {
			t.Errorf("sanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "anon_x", "bad id")
	if UserIDFromContext(ctx) != "anon_x" || SessionIDFromContext(ctx) != DefaultSessionIDValue {
		t.Fatalf("WithIdentity = %q/%q", UserIDFromContext(ctx), SessionIDFromContext(ctx))
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Fatal("empty context should have no user")
	}
}
