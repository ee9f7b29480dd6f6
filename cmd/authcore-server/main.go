// Command authcore-server serves the login endpoints over HTTP.
//
// Configuration comes from authcore.yaml (or -config / AUTHCORE_CONFIG),
// overridden by AUTHCORE_* variables, which may be placed in a .env file.
//
//	go run ./cmd/authcore-server -config ./authcore.yaml
//
// With no mail host configured, codes are written to the log instead of
// being sent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/eventhub/authcore/gormstore"
	"github.com/eventhub/authcore/httpapi"
	"github.com/eventhub/authcore/mail"
	promexport "github.com/eventhub/authcore/metrics/export/prometheus"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// EnvBootstrapAdmin provisions one administrator at startup, formatted
// email:level[:society].
const EnvBootstrapAdmin = "AUTHCORE_BOOTSTRAP_ADMIN"

func main() {
	if errRun := run(context.Background(), os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("authcore-server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("authcore-server", flag.ContinueOnError)
	cfgPath := flags.String("config", "", "config file path (or env AUTHCORE_CONFIG)")
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	showCodes := flags.Bool("log-codes", false, "include message bodies when logging instead of sending mail")
	if errParse := flags.Parse(args); errParse != nil {
		return errParse
	}

	if errEnv := godotenv.Load(*envFile); errEnv != nil && !errors.Is(errEnv, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, errEnv)
	}

	cfg, errLoad := authcore.LoadConfig(authcore.ResolveConfigPath(*cfgPath))
	if errLoad != nil {
		return errLoad
	}

	logger := authcore.NewLogger(cfg.Logging, os.Stdout)
	log.SetOutput(logger.Out)
	log.SetFormatter(logger.Formatter)
	log.SetLevel(logger.GetLevel())
	entry := log.NewEntry(logger)

	db, errDB := gormstore.Open(cfg.Database)
	if errDB != nil {
		return errDB
	}
	sqlDB, errSQL := db.DB()
	if errSQL != nil {
		return errSQL
	}
	defer func() { _ = sqlDB.Close() }()
	principals := gormstore.New(db)

	if raw := strings.TrimSpace(os.Getenv(EnvBootstrapAdmin)); raw != "" {
		admin, errParse := parseBootstrapAdmin(raw)
		if errParse != nil {
			return errParse
		}
		saved, errSave := principals.SaveAdmin(ctx, admin)
		if errSave != nil {
			return errSave
		}
		entry.WithFields(log.Fields{"admin_id": saved.AdminID, "level": saved.AccessLevel.String()}).Info("bootstrap administrator ready")
	}

	var sender mail.Sender = mail.SMTPSender{}
	if strings.TrimSpace(cfg.Mail.Host) == "" {
		entry.Warn("no mail host configured, codes will be logged instead of sent")
		sender = mail.LogSender{Logger: entry.WithField("component", "mail"), ShowBody: *showCodes}
	}

	builder := authcore.New().
		WithConfig(cfg).
		WithPrincipalStore(principals).
		WithMailSender(sender).
		WithLogger(entry)
	if cfg.Audit.Enabled {
		builder.WithAuditSink(authcore.NewLogrusSink(entry))
	}
	engine, errBuild := builder.Build()
	if errBuild != nil {
		return errBuild
	}
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	api := httpapi.New(engine)
	router := api.Handler()
	router.GET("/healthz", func(c *gin.Context) {
		status := engine.Health(c.Request.Context())
		code := http.StatusOK
		if !status.RedisAvailable {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promexport.NewCollector(engine).Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if throttle := api.Throttle(); throttle != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					throttle.Sweep()
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		entry.WithFields(log.Fields{"addr": cfg.HTTP.Addr, "store": cfg.Store.Backend, "db": gormstore.DialectName(db)}).Info("listening")
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	entry.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("shutdown: %w", errShutdown)
	}
	return nil
}

func parseBootstrapAdmin(raw string) (authcore.Administrator, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return authcore.Administrator{}, fmt.Errorf("%s: want email:level[:society]", EnvBootstrapAdmin)
	}
	n, errAtoi := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errAtoi != nil {
		return authcore.Administrator{}, fmt.Errorf("%s: %w", EnvBootstrapAdmin, errAtoi)
	}
	level, errLevel := access.ParseLevel(n)
	if errLevel != nil {
		return authcore.Administrator{}, fmt.Errorf("%s: %w", EnvBootstrapAdmin, errLevel)
	}
	admin := authcore.Administrator{
		Email:       strings.ToLower(strings.TrimSpace(parts[0])),
		AccessLevel: level,
	}
	if len(parts) == 3 {
		admin.ClubOrSociety = strings.TrimSpace(parts[2])
	}
	return admin, nil
}
