// Package main starts the SchoolBus development backend: an in-memory fleet,
// JWT authentication and a WebSocket position feed fed by a bus simulator.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/config"
	"github.com/atinyakov/SchoolBus/internal/db"
	"github.com/atinyakov/SchoolBus/internal/logger"
	"github.com/atinyakov/SchoolBus/internal/repository"
	"github.com/atinyakov/SchoolBus/internal/server/handler/http"
	"github.com/atinyakov/SchoolBus/internal/service"
)

const (
	devJWTSecret = "schoolbus-dev-secret"
	demoEmail    = "parent@example.com"
	demoPassword = "password123"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Users live in Postgres when a DSN is configured, in memory otherwise.
	var users service.UserRepository = repository.NewMemoryUserRepository()
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()
		users = repository.NewPostgresUserRepository(postgresDB)
	}

	secret := options.JWTSecret
	if secret == "" {
		zapLogger.Warn("JWT_SECRET is not set, using the development secret")
		secret = devJWTSecret
	}
	authService := service.NewAuthService(users, secret, service.DefaultTokenTTL)

	parentID := seedDemoUser(ctx, authService, zapLogger)
	fleetService := service.NewFleetService(repository.NewFleetRepository())
	fleetService.Seed(parentID)

	hub := http.NewHub(zapLogger)
	if options.SimulateInterval > 0 {
		service.StartSimulator(ctx, fleetService, options.SimulateInterval, hub.Broadcast, zapLogger)
	}

	validator := http.NewValidator()
	router := http.NewRouter(
		&http.AuthHandler{AuthService: authService, Validator: validator, Log: zapLogger},
		&http.FleetHandler{Fleet: fleetService, Validator: validator, Log: zapLogger},
		hub,
		authService,
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := options.CertFile != "" && options.KeyFile != ""
	if useTLS {
		tlsConfig, err := serverTLS(options.CAFile)
		if err != nil {
			zapLogger.Fatal("failed to configure TLS", zap.Error(err))
		}
		server.TLSConfig = tlsConfig
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting server",
		zap.String("addr", options.ServerAddress),
		zap.Bool("tls", useTLS),
		zap.String("demo_user", demoEmail),
	)
	var err error
	if useTLS {
		err = server.ListenAndServeTLS(options.CertFile, options.KeyFile)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// seedDemoUser registers the demo parent, or logs in when it already exists,
// and returns its id.
func seedDemoUser(ctx context.Context, auth *service.AuthService, log *zap.Logger) string {
	_, user, err := auth.Register(ctx, service.RegisterParams{
		Name:     "Demo Parent",
		Email:    demoEmail,
		Password: demoPassword,
	})
	if errors.Is(err, repository.ErrUserExists) {
		_, user, err = auth.Login(ctx, demoEmail, demoPassword)
	}
	if err != nil {
		log.Warn("demo user unavailable", zap.Error(err))
		return ""
	}
	return user.ID
}

// serverTLS verifies client certificates against caFile when one is given.
func serverTLS(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to append CA cert to pool")
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.VerifyClientCertIfGiven
	return cfg, nil
}
