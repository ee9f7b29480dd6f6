package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/gormstore"
	"github.com/eventhub/authcore/mail"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var codePattern = regexp.MustCompile(`code is (\d+)\.`)

type loginState struct {
	token     string
	sessionID string
}

// inbox keeps the last code mailed to each address.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *inbox) sender() mail.Sender {
	return mail.SenderFunc(func(_ context.Context, _ mail.Account, msg mail.Message) error {
		m := codePattern.FindStringSubmatch(msg.Body)
		if m == nil {
			return errors.New("no code in message")
		}
		b.mu.Lock()
		b.codes[msg.To] = m[1]
		b.mu.Unlock()
		return nil
	})
}

func (b *inbox) code(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[email]
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of signed-in users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per read phase (verify-token + resolve-session)")
		logins      = flag.Int("logins", 2000, "full request+verify logins in the login phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "store key prefix")
		cost        = flag.Int("bcrypt-cost", bcrypt.MinCost, "bcrypt cost for passcode hashes")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops, and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	db, err := gormstore.Open(authcore.DatabaseConfig{
		Driver:         gormstore.DialectSQLite,
		DSN:            "file:authcore-loadtest?mode=memory&cache=shared",
		MaxConnections: 1,
		AutoMigrate:    true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open principal db: %v\n", err)
		os.Exit(1)
	}

	cfg := authcore.DefaultConfig()
	cfg.Store.Backend = authcore.BackendRedis
	cfg.Store.RedisAddr = addr
	cfg.Store.Prefix = *prefix
	cfg.OTP.BcryptCost = *cost
	cfg.RateLimit.CookieSecret = "loadtest-rate-secret"
	cfg.Tokens.UserSecret = "loadtest-user-secret-0123456789abcdef"
	cfg.Tokens.AdminSecret = "loadtest-admin-secret-0123456789abcdef"
	cfg.Mail.EnvPrefix = ""
	cfg.Mail.Quota = *users + *logins + 1
	cfg.Mail.Accounts = []mail.Account{{Slot: 0, Username: "loadtest@example.com", Password: "x"}}
	cfg.Session.JanitorInterval = 0

	quiet := log.New()
	quiet.SetLevel(log.WarnLevel)
	box := &inbox{codes: make(map[string]string)}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalStore(gormstore.New(db)).
		WithMailSender(box.sender()).
		WithLogger(log.NewEntry(quiet)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]loginState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		res, err := login(ctx, engine, box, fmt.Sprintf("seed-%d@example.com", i))
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = loginState{token: res.Token, sessionID: res.SessionID}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := engine.VerifyToken(ctx, states[r.Intn(len(states))].token, authcore.PolicyUser)
		return err
	})
	sessionStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		_, err := engine.ResolveSession(ctx, states[r.Intn(len(states))].sessionID)
		return err
	})
	loginStats := runPhase(*logins, *concurrency, 4271, func(_ *rand.Rand, i int) error {
		_, err := login(ctx, engine, box, fmt.Sprintf("load-%d@example.com", i))
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify-token", verifyStats)
	printStats("resolve-session", sessionStats)
	printStats("otp-login", loginStats)
	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: user_logins=%d tokens_issued=%d\n",
		snap.Counters[authcore.MetricUserLogin], snap.Counters[authcore.MetricTokenIssued])
}

func login(ctx context.Context, engine *authcore.Engine, box *inbox, email string) (*authcore.UserLoginResult, error) {
	if _, err := engine.RequestOTP(ctx, authcore.OTPRequest{Email: email, Purpose: authcore.PurposeUserLogin}); err != nil {
		return nil, fmt.Errorf("request %s: %w", email, err)
	}
	res, err := engine.VerifyUserOTP(ctx, email, box.code(email))
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", email, err)
	}
	return res, nil
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
