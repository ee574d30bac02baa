package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

type stubVerifier struct {
	claims *auth.Claims
	err    error
}

func (v stubVerifier) VerifyAccess(string) (*auth.Claims, error) {
	return v.claims, v.err
}

func newTestMiddleware(t *testing.T, rateLimited bool) (*Middleware, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	cfg := &config.Config{}
	cfg.Security.RateLimiting.Enabled = rateLimited
	cfg.Security.RateLimiting.TrustedProxies = []string{"10.0.0.0/8"}
	m, err := New(&database.Redis{Client: client}, logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, mr
}

func principalEcho(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(p.IdentityID + "/" + string(p.Role)))
}

func TestAuthMiddleware(t *testing.T) {
	m, _ := newTestMiddleware(t, false)
	valid := stubVerifier{claims: &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "U1"},
		Role:             model.RoleAdmin,
	}}

	cases := []struct {
		name     string
		header   string
		verifier AccessVerifier
		status   int
		body     string
	}{
		{"missing header", "", valid, http.StatusUnauthorized, `"unauthorized"`},
		{"wrong scheme", "Basic abc", valid, http.StatusUnauthorized, `"unauthorized"`},
		{"expired", "Bearer tok", stubVerifier{err: service.ErrTokenExpired}, http.StatusUnauthorized, `"token_expired"`},
		{"invalid", "Bearer tok", stubVerifier{err: service.ErrInvalidToken}, http.StatusUnauthorized, `"invalid_token"`},
		{"valid", "bearer tok", valid, http.StatusOK, "U1/admin"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/kyc/modification-request/1", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			m.Auth(c.verifier)(http.HandlerFunc(principalEcho)).ServeHTTP(rec, req)

			if rec.Code != c.status {
				t.Fatalf("status = %d, want %d", rec.Code, c.status)
			}
			if !strings.Contains(rec.Body.String(), c.body) {
				t.Fatalf("body %q does not contain %q", rec.Body.String(), c.body)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	m, _ := newTestMiddleware(t, false)
	h := m.RequireRole(model.RoleAdmin)(http.HandlerFunc(principalEcho))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/kyc-modifications/1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a principal", rec.Code)
	}

	for role, want := range map[model.Role]int{
		model.RoleClient: http.StatusForbidden,
		model.RoleAdmin:  http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodPut, "/admin/kyc-modifications/1", nil)
		req = req.WithContext(WithPrincipal(req.Context(), service.Principal{IdentityID: "U1", Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %s: status = %d, want %d", role, rec.Code, want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	m, mr := newTestMiddleware(t, true)
	h := m.RateLimit(RateLimitConfig{
		Name:   "login",
		Limit:  2,
		Window: time.Minute,
		KeyFn:  IPKey,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	h = m.RealIP(h)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("203.0.113.7"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := send("203.0.113.7")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}
	if rec := send("198.51.100.2"); rec.Code != http.StatusNoContent {
		t.Fatalf("other clients must not share the window, got %d", rec.Code)
	}

	spoofed := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	spoofed.RemoteAddr = "203.0.113.7:40000"
	spoofed.Header.Set("X-Forwarded-For", "198.51.100.99")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, spoofed)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("a forged X-Forwarded-For must not open a new window, got %d", rec.Code)
	}

	mr.FastForward(time.Minute + time.Second)
	if rec := send("203.0.113.7"); rec.Code != http.StatusNoContent {
		t.Fatalf("window should have reset, got %d", rec.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	m, mr := newTestMiddleware(t, true)
	mr.Close()

	called := false
	h := m.RateLimit(RateLimitConfig{Name: "login", Limit: 1, Window: time.Minute, KeyFn: IPKey})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }),
	)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	if !called {
		t.Fatalf("a Redis outage must not block requests")
	}
}

func TestRecoverAndRequestID(t *testing.T) {
	m, _ := newTestMiddleware(t, false)
	var seen string
	h := m.Recover(m.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		panic(errors.New("boom"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if seen != "req-123" || rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id not propagated: %q", seen)
	}
}

func TestClientIP(t *testing.T) {
	m, _ := newTestMiddleware(t, false)

	cases := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"direct peer", "192.0.2.1:5555", "", "", "192.0.2.1"},
		{"untrusted peer ignores headers", "192.0.2.1:5555", "203.0.113.7", "198.51.100.2", "192.0.2.1"},
		{"trusted proxy", "10.0.0.5:443", "203.0.113.7", "", "203.0.113.7"},
		{"right-most untrusted hop", "10.0.0.5:443", "198.51.100.99, 203.0.113.7, 10.1.2.3", "", "203.0.113.7"},
		{"all hops trusted", "10.0.0.5:443", "10.9.9.9, 10.1.2.3", "", "10.9.9.9"},
		{"malformed hop", "10.0.0.5:443", "203.0.113.7, not-an-ip", "", "10.0.0.5"},
		{"real ip from trusted proxy", "10.0.0.5:443", "", "192.0.2.9", "192.0.2.9"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = c.remote
			if c.xff != "" {
				req.Header.Set("X-Forwarded-For", c.xff)
			}
			if c.realIP != "" {
				req.Header.Set("X-Real-IP", c.realIP)
			}

			var got string
			m.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			})).ServeHTTP(httptest.NewRecorder(), req)
			if got != c.want {
				t.Fatalf("ClientIP = %q, want %q", got, c.want)
			}
		})
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	bare.RemoteAddr = "192.0.2.1:5555"
	bare.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := ClientIP(bare); got != "192.0.2.1" {
		t.Fatalf("ClientIP without RealIP = %q", got)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.4 ", ""})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	if len(got) != 2 || got[1].Bits() != 32 {
		t.Fatalf("unexpected prefixes %v", got)
	}
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Fatalf("expected an error for a bad CIDR")
	}
}
