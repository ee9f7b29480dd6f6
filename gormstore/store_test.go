package gormstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/internal/authtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := Open(authcore.DatabaseConfig{
		Driver:      DialectSQLite,
		DSN:         "file:" + name + "?mode=memory&cache=shared",
		AutoMigrate: true,
		// One connection serializes writers on the shared in-memory database.
		MaxConnections: 1,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if DialectName(conn) != DialectSQLite {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	return New(conn)
}

func TestUpsertUserIsStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	again, err := s.UpsertUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.UserID == "" || first.UserID != again.UserID {
		t.Fatalf("expected a stable id, got %q and %q", first.UserID, again.UserID)
	}

	p, err := s.FindPrincipal(ctx, authcore.KindEndUser, first.UserID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.PrincipalEmail() != "ada@example.com" {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestUpsertUserConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.UpsertUserByEmail(ctx, "race@example.com")
			ids[i], errs[i] = u.UserID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("upsert %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected one user, got %q and %q", ids[0], ids[i])
		}
	}
}

func TestAdminLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindAdminByEmail(ctx, "chair@example.com"); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	saved, err := s.SaveAdmin(ctx, authcore.Administrator{Email: "chair@example.com", AccessLevel: access.LevelSociety, ClubOrSociety: "Chess"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.AdminID == "" || saved.ClubOrSociety != "Chess" {
		t.Fatalf("unexpected admin %+v", saved)
	}

	promoted, err := s.SaveAdmin(ctx, authcore.Administrator{Email: "chair@example.com", AccessLevel: access.LevelSuper})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.AdminID != saved.AdminID || promoted.AccessLevel != access.LevelSuper {
		t.Fatalf("expected same id at level 2, got %+v", promoted)
	}

	p, err := s.FindPrincipal(ctx, authcore.KindAdministrator, saved.AdminID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if admin := p.(authcore.Administrator); admin.AccessLevel != access.LevelSuper {
		t.Fatalf("expected level 2, got %v", admin.AccessLevel)
	}

	if err := s.DeactivateAdmin(ctx, "chair@example.com"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := s.FindPrincipal(ctx, authcore.KindAdministrator, saved.AdminID); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected deactivated admin to vanish, got %v", err)
	}
	if err := s.DeactivateAdmin(ctx, "nobody@example.com"); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestSaveAdminRejectsBadLevel(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SaveAdmin(context.Background(), authcore.Administrator{Email: "x@example.com", AccessLevel: 7}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestKindsDoNotCrossover(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, _ := s.UpsertUserByEmail(ctx, "ada@example.com")
	if _, err := s.FindPrincipal(ctx, authcore.KindAdministrator, user.UserID); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
	if err := s.DeleteUser(ctx, user.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindPrincipal(ctx, authcore.KindEndUser, user.UserID); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound after delete, got %v", err)
	}
}

func TestStoreBacksEngineLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.SaveAdmin(ctx, authcore.Administrator{Email: "root@example.com", AccessLevel: access.LevelWebmaster}); err != nil {
		t.Fatalf("save: %v", err)
	}

	outbox := &authtest.Outbox{}
	engine, err := authcore.New().
		WithConfig(authtest.Config()).
		WithPrincipalStore(s).
		WithMailSender(outbox).
		WithLogger(authtest.Quiet()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.RequestOTP(ctx, authcore.OTPRequest{Email: "root@example.com", Purpose: authcore.PurposeAdminLogin}); err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := engine.AdminLogin(ctx, "root@example.com", outbox.LastCode(t))
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := engine.VerifyToken(ctx, res.Token, authcore.PolicyAdmin)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := engine.Authorize(ctx, p, access.CapOperate); err != nil {
		t.Fatalf("webmaster should operate: %v", err)
	}

	if err := s.DeactivateAdmin(ctx, "root@example.com"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := engine.VerifyToken(ctx, res.Token, authcore.PolicyAdmin); !errors.Is(err, authcore.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound after deactivation, got %v", err)
	}
}
