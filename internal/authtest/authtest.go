// Package authtest provides in-memory collaborators and a login harness for
// tests of packages layered on top of authcore.
package authtest

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"
	"testing"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/mail"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	UserSecret  = "user-secret-0123456789abcdef0123456789"
	AdminSecret = "admin-secret-0123456789abcdef012345678"
	RateSecret  = "rate-secret-0123456789"
)

// Principals is a map-backed authcore.PrincipalStore.
type Principals struct {
	mu     sync.Mutex
	users  map[string]authcore.EndUser
	admins map[string]authcore.Administrator
	seq    int
}

func NewPrincipals() *Principals {
	return &Principals{
		users:  make(map[string]authcore.EndUser),
		admins: make(map[string]authcore.Administrator),
	}
}

func (p *Principals) AddAdmin(a authcore.Administrator) {
	p.mu.Lock()
	p.admins[a.Email] = a
	p.mu.Unlock()
}

func (p *Principals) FindPrincipal(_ context.Context, kind authcore.PrincipalKind, id string) (authcore.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case authcore.KindEndUser:
		for _, u := range p.users {
			if u.UserID == id {
				return u, nil
			}
		}
	case authcore.KindAdministrator:
		for _, a := range p.admins {
			if a.AdminID == id {
				return a, nil
			}
		}
	}
	return nil, authcore.ErrPrincipalNotFound
}

func (p *Principals) FindAdminByEmail(_ context.Context, email string) (authcore.Administrator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.admins[email]
	if !ok {
		return authcore.Administrator{}, authcore.ErrPrincipalNotFound
	}
	return a, nil
}

func (p *Principals) UpsertUserByEmail(_ context.Context, email string) (authcore.EndUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[email]; ok {
		return u, nil
	}
	p.seq++
	u := authcore.EndUser{UserID: fmt.Sprintf("user-%d", p.seq), Email: email}
	p.users[email] = u
	return u, nil
}

// Outbox records every message instead of sending it.
type Outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *Outbox) Send(_ context.Context, _ mail.Account, msg mail.Message) error {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
	return nil
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

var codePattern = regexp.MustCompile(`code is (\d+)\.`)

// LastCode extracts the code from the most recent message.
func (o *Outbox) LastCode(t testing.TB) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no mail sent")
	}
	m := codePattern.FindStringSubmatch(o.msgs[len(o.msgs)-1].Body)
	if m == nil {
		t.Fatalf("no code in %q", o.msgs[len(o.msgs)-1].Body)
	}
	return m[1]
}

// Config is a valid configuration with cheap hashing, three mail accounts
// and insecure cookies for httptest.
func Config() authcore.Config {
	cfg := authcore.DefaultConfig()
	cfg.OTP.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.CookieSecret = RateSecret
	cfg.Tokens.UserSecret = UserSecret
	cfg.Tokens.AdminSecret = AdminSecret
	cfg.Session.JanitorInterval = 0
	cfg.Mail.PoolSize = 3
	cfg.Mail.EnvPrefix = ""
	cfg.Mail.Accounts = []mail.Account{
		{Slot: 0, Username: "mailer0@example.com", Password: "p0"},
		{Slot: 1, Username: "mailer1@example.com", Password: "p1"},
		{Slot: 2, Username: "mailer2@example.com", Password: "p2"},
	}
	cfg.HTTP.SecureCookies = false
	return cfg
}

// Quiet returns a logger entry that discards output.
func Quiet() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

// Harness is a built engine plus its collaborators. The seeded admins are
// ChairEmail (level 1, society "Chess") and WebmasterEmail (level 3).
type Harness struct {
	Engine     *authcore.Engine
	Principals *Principals
	Outbox     *Outbox
}

const (
	ChairEmail     = "chair@example.com"
	WebmasterEmail = "root@example.com"
)

// New builds an engine closed at test cleanup. mutate may be nil.
func New(t testing.TB, mutate func(*authcore.Config)) *Harness {
	t.Helper()

	cfg := Config()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &Harness{Principals: NewPrincipals(), Outbox: &Outbox{}}
	h.Principals.AddAdmin(authcore.Administrator{AdminID: "adm-1", Email: ChairEmail, AccessLevel: access.LevelSociety, ClubOrSociety: "Chess"})
	h.Principals.AddAdmin(authcore.Administrator{AdminID: "adm-2", Email: WebmasterEmail, AccessLevel: access.LevelWebmaster})

	engine, err := authcore.New().
		WithConfig(cfg).
		WithPrincipalStore(h.Principals).
		WithMailSender(h.Outbox).
		WithLogger(Quiet()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	h.Engine = engine
	return h
}

// LoginUser runs the end-user code flow for email.
func (h *Harness) LoginUser(t testing.TB, email string) *authcore.UserLoginResult {
	t.Helper()
	ctx := context.Background()
	if _, err := h.Engine.RequestOTP(ctx, authcore.OTPRequest{Email: email, Purpose: authcore.PurposeUserLogin}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	res, err := h.Engine.VerifyUserOTP(ctx, email, h.Outbox.LastCode(t))
	if err != nil {
		t.Fatalf("VerifyUserOTP: %v", err)
	}
	return res
}

// LoginAdmin runs the administrator code flow for email.
func (h *Harness) LoginAdmin(t testing.TB, email string) *authcore.AdminLoginResult {
	t.Helper()
	ctx := context.Background()
	if _, err := h.Engine.RequestOTP(ctx, authcore.OTPRequest{Email: email, Purpose: authcore.PurposeAdminLogin}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	res, err := h.Engine.AdminLogin(ctx, email, h.Outbox.LastCode(t))
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	return res
}
