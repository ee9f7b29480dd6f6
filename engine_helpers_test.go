package authcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/mail"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUserSecret  = "user-secret-0123456789abcdef0123456789"
	testAdminSecret = "admin-secret-0123456789abcdef012345678"
	testRateSecret  = "rate-secret-0123456789"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryPrincipals struct {
	mu       sync.Mutex
	users    map[string]EndUser
	admins   map[string]Administrator
	failWith error
	seq      int
}

func newMemoryPrincipals() *memoryPrincipals {
	return &memoryPrincipals{
		users:  make(map[string]EndUser),
		admins: make(map[string]Administrator),
	}
}

func (p *memoryPrincipals) addAdmin(a Administrator) {
	p.mu.Lock()
	p.admins[a.Email] = a
	p.mu.Unlock()
}

func (p *memoryPrincipals) removeAdmin(email string) {
	p.mu.Lock()
	delete(p.admins, email)
	p.mu.Unlock()
}

func (p *memoryPrincipals) removeUser(email string) {
	p.mu.Lock()
	delete(p.users, email)
	p.mu.Unlock()
}

func (p *memoryPrincipals) FindPrincipal(_ context.Context, kind PrincipalKind, id string) (Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return nil, p.failWith
	}
	switch kind {
	case KindEndUser:
		for _, u := range p.users {
			if u.UserID == id {
				return u, nil
			}
		}
	case KindAdministrator:
		for _, a := range p.admins {
			if a.AdminID == id {
				return a, nil
			}
		}
	}
	return nil, ErrPrincipalNotFound
}

func (p *memoryPrincipals) FindAdminByEmail(_ context.Context, email string) (Administrator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return Administrator{}, p.failWith
	}
	a, ok := p.admins[email]
	if !ok {
		return Administrator{}, ErrPrincipalNotFound
	}
	return a, nil
}

func (p *memoryPrincipals) UpsertUserByEmail(_ context.Context, email string) (EndUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return EndUser{}, p.failWith
	}
	if u, ok := p.users[email]; ok {
		return u, nil
	}
	p.seq++
	u := EndUser{UserID: fmt.Sprintf("user-%d", p.seq), Email: email}
	p.users[email] = u
	return u, nil
}

type sentMessage struct {
	account mail.Account
	msg     mail.Message
}

type captureSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *captureSender) Send(_ context.Context, account mail.Account, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{account: account, msg: msg})
	return nil
}

func (s *captureSender) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *captureSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OTP.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.CookieSecret = testRateSecret
	cfg.Tokens.UserSecret = testUserSecret
	cfg.Tokens.AdminSecret = testAdminSecret
	cfg.Session.JanitorInterval = 0
	cfg.Mail.PoolSize = 3
	cfg.Mail.Quota = 2
	cfg.Mail.EnvPrefix = ""
	cfg.Mail.Accounts = []mail.Account{
		{Slot: 0, Username: "mailer0@example.com", Password: "p0"},
		{Slot: 1, Username: "mailer1@example.com", Password: "p1"},
		{Slot: 2, Username: "mailer2@example.com", Password: "p2"},
	}
	cfg.Metrics.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = true
	return cfg
}

func quietEntry() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

type testHarness struct {
	engine     *Engine
	principals *memoryPrincipals
	sender     *captureSender
	clock      *testClock
	sink       *captureSink
}

type harnessOption func(b *Builder)

func withRedis(client redis.UniversalClient) harnessOption {
	return func(b *Builder) { b.WithRedis(client) }
}

func newTestHarness(t *testing.T, mutate func(*Config), opts ...harnessOption) *testHarness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		principals: newMemoryPrincipals(),
		sender:     &captureSender{},
		clock:      newTestClock(),
		sink:       newCaptureSink(256),
	}
	h.principals.addAdmin(Administrator{AdminID: "adm-1", Email: "chair@example.com", AccessLevel: access.LevelSociety, ClubOrSociety: "Chess"})
	h.principals.addAdmin(Administrator{AdminID: "adm-2", Email: "root@example.com", AccessLevel: access.LevelWebmaster})

	b := New().
		WithConfig(cfg).
		WithPrincipalStore(h.principals).
		WithMailSender(h.sender).
		WithAuditSink(h.sink).
		WithLogger(quietEntry()).
		WithClock(h.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

var codePattern = regexp.MustCompile(`code is (\d+)\.`)

func (h *testHarness) requestCode(t *testing.T, purpose OTPPurpose, email string) *OTPRequestResult {
	t.Helper()
	res, err := h.engine.RequestOTP(context.Background(), OTPRequest{Email: email, Purpose: purpose})
	if err != nil {
		t.Fatalf("RequestOTP(%s): %v", email, err)
	}
	return res
}

func (h *testHarness) lastCode(t *testing.T) string {
	t.Helper()
	msgs := h.sender.messages()
	if len(msgs) == 0 {
		t.Fatal("no mail sent")
	}
	m := codePattern.FindStringSubmatch(msgs[len(msgs)-1].msg.Body)
	if m == nil {
		t.Fatalf("no code in body %q", msgs[len(msgs)-1].msg.Body)
	}
	return m[1]
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if strings.HasPrefix(code, "9") {
		return "1" + code[1:]
	}
	return "9" + code[1:]
}

func (h *testHarness) loginUser(t *testing.T, email string) *UserLoginResult {
	t.Helper()
	h.requestCode(t, PurposeUserLogin, email)
	res, err := h.engine.VerifyUserOTP(context.Background(), email, h.lastCode(t))
	if err != nil {
		t.Fatalf("VerifyUserOTP: %v", err)
	}
	return res
}

func (h *testHarness) loginAdmin(t *testing.T, email string) *AdminLoginResult {
	t.Helper()
	h.requestCode(t, PurposeAdminLogin, email)
	res, err := h.engine.AdminLogin(context.Background(), email, h.lastCode(t))
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	return res
}

func (h *testHarness) drainAudit(wait time.Duration) []AuditEvent {
	var events []AuditEvent
	timeout := time.After(wait)
	for {
		select {
		case ev := <-h.sink.events:
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
}

var errBackendDown = errors.New("backend down")
