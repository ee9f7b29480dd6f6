package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eventhub/authcore/internal/authtest"
	"github.com/eventhub/authcore/ratelimit"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
	bearer  string
}

func newClient(t *testing.T, handler http.Handler) *client {
	return &client{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)

	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			c.t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func (c *client) expect(method, path string, body any, status int) map[string]any {
	c.t.Helper()
	rec, out := c.do(method, path, body)
	if rec.Code != status {
		c.t.Fatalf("%s %s: expected %d, got %d (%s)", method, path, status, rec.Code, rec.Body.String())
	}
	return out
}

func newServer(t *testing.T, opts ...Option) (*authtest.Harness, http.Handler) {
	h := authtest.New(t, nil)
	return h, New(h.Engine, opts...).Handler()
}

func TestUserLoginFlow(t *testing.T) {
	h, handler := newServer(t)
	c := newClient(t, handler)

	c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "Ada@Example.com"}, http.StatusOK)
	if _, ok := c.cookies["otp_rl"]; !ok {
		t.Fatal("expected rate-limit cookie")
	}

	out := c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": h.Outbox.LastCode(t)}, http.StatusOK)
	token, _ := out["token"].(string)
	if token == "" {
		t.Fatalf("expected token in body: %v", out)
	}
	sess, ok := c.cookies["session_id"]
	if !ok || !sess.HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}
	if _, ok := c.cookies["user_token"]; !ok {
		t.Fatal("expected user token cookie")
	}

	out = c.expect(http.MethodGet, "/auth/verify", nil, http.StatusOK)
	principal, _ := out["principal"].(map[string]any)
	if out["valid"] != true || principal["kind"] != "user" || principal["email"] != "ada@example.com" {
		t.Fatalf("unexpected verify body %v", out)
	}

	out = c.expect(http.MethodGet, "/auth/session", nil, http.StatusOK)
	if out["email"] != "ada@example.com" {
		t.Fatalf("unexpected session body %v", out)
	}

	c.expect(http.MethodPost, "/auth/logout", nil, http.StatusOK)
	if _, ok := c.cookies["session_id"]; ok {
		t.Fatal("expected session cookie cleared")
	}

	c.cookies["session_id"] = sess
	c.expect(http.MethodGet, "/auth/session", nil, http.StatusUnauthorized)
}

func TestRequestRateLimitedByCookie(t *testing.T) {
	_, handler := newServer(t)
	c := newClient(t, handler)

	for i := 0; i < 3; i++ {
		c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusOK)
	}
	out := c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusTooManyRequests)
	minutes, _ := out["retry_after_minutes"].(float64)
	if minutes < 119 || minutes > 120 {
		t.Fatalf("expected about 120 minutes, got %v", out["retry_after_minutes"])
	}

	fresh := newClient(t, handler)
	fresh.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusOK)
}

func TestForgedRateCookieStartsFresh(t *testing.T) {
	_, handler := newServer(t)
	c := newClient(t, handler)
	c.cookies["otp_rl"] = &http.Cookie{Name: "otp_rl", Value: "forged"}
	c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusOK)
	if c.cookies["otp_rl"].Value == "forged" {
		t.Fatal("expected the cookie to be replaced")
	}
}

func TestVerifyErrors(t *testing.T) {
	h, handler := newServer(t)
	c := newClient(t, handler)

	c.expect(http.MethodPost, "/auth/otp/request", `{"email":`, http.StatusBadRequest)
	c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "not-an-email"}, http.StatusBadRequest)
	c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": "123456"}, http.StatusUnauthorized)

	c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusOK)
	code := h.Outbox.LastCode(t)
	wrong := "9" + code[1:]
	if strings.HasPrefix(code, "9") {
		wrong = "1" + code[1:]
	}
	out := c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": wrong}, http.StatusUnauthorized)
	if out["remaining_attempts"] != float64(2) {
		t.Fatalf("expected 2 remaining, got %v", out)
	}
	c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": wrong}, http.StatusUnauthorized)
	c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": wrong}, http.StatusUnauthorized)
	c.expect(http.MethodPost, "/auth/otp/verify", map[string]string{"email": "ada@example.com", "otp": code}, http.StatusForbidden)
}

func TestVerifyTokenRejects(t *testing.T) {
	_, handler := newServer(t)
	c := newClient(t, handler)

	out := c.expect(http.MethodGet, "/auth/verify", nil, http.StatusUnauthorized)
	if out["valid"] != false {
		t.Fatalf("unexpected body %v", out)
	}

	c.bearer = "not.a.token"
	out = c.expect(http.MethodGet, "/auth/verify", nil, http.StatusUnauthorized)
	if out["valid"] != false {
		t.Fatalf("unexpected body %v", out)
	}
}

func TestAdminLoginAndMailRoutes(t *testing.T) {
	h, handler := newServer(t)

	stranger := newClient(t, handler)
	stranger.expect(http.MethodPost, "/admin/login/request", map[string]string{"email": "nobody@example.com"}, http.StatusNotFound)

	chair := newClient(t, handler)
	chair.expect(http.MethodPost, "/admin/login/request", map[string]string{"email": authtest.ChairEmail}, http.StatusOK)
	out := chair.expect(http.MethodPost, "/admin/login", map[string]string{"email": authtest.ChairEmail, "otp": h.Outbox.LastCode(t)}, http.StatusOK)
	admin, _ := out["admin"].(map[string]any)
	if admin["access_level"] != float64(1) || admin["club_or_society"] != "Chess" {
		t.Fatalf("unexpected admin body %v", out)
	}
	if _, ok := chair.cookies["admin_token"]; !ok {
		t.Fatal("expected admin cookie")
	}

	out = chair.expect(http.MethodGet, "/auth/verify", nil, http.StatusOK)
	if p, _ := out["principal"].(map[string]any); p["kind"] != "admin" {
		t.Fatalf("expected admin principal, got %v", out)
	}
	chair.expect(http.MethodGet, "/admin/mail/status", nil, http.StatusForbidden)

	root := newClient(t, handler)
	root.expect(http.MethodPost, "/admin/login/request", map[string]string{"email": authtest.WebmasterEmail}, http.StatusOK)
	root.expect(http.MethodPost, "/admin/login", map[string]string{"email": authtest.WebmasterEmail, "otp": h.Outbox.LastCode(t)}, http.StatusOK)

	status := root.expect(http.MethodGet, "/admin/mail/status", nil, http.StatusOK)
	if status["pool_size"] != float64(3) {
		t.Fatalf("unexpected status %v", status)
	}
	skipped := root.expect(http.MethodPost, "/admin/mail/skip", nil, http.StatusOK)
	if skipped["slot"] != float64(1) {
		t.Fatalf("expected slot 1 after skip, got %v", skipped)
	}

	root.expect(http.MethodPost, "/admin/logout", nil, http.StatusOK)
	root.expect(http.MethodGet, "/admin/mail/status", nil, http.StatusUnauthorized)
}

func TestUserTokenCannotReachAdminRoutes(t *testing.T) {
	h, handler := newServer(t)
	c := newClient(t, handler)
	c.bearer = h.LoginUser(t, "ada@example.com").Token
	c.expect(http.MethodGet, "/admin/mail/status", nil, http.StatusUnauthorized)
}

func TestIPThrottle(t *testing.T) {
	_, handler := newServer(t, WithThrottle(ratelimit.NewIPThrottle(1, 1, 0)))
	c := newClient(t, handler)

	c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusOK)
	out := c.expect(http.MethodPost, "/auth/otp/request", map[string]string{"email": "ada@example.com"}, http.StatusTooManyRequests)
	if out["error"] != "too many requests" {
		t.Fatalf("unexpected body %v", out)
	}
}
