// Package main is the SchoolBus terminal client: an interactive shell over
// the backend API with a persisted session and live bus tracking.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/client/session"
	"github.com/atinyakov/SchoolBus/internal/client/storage"
	"github.com/atinyakov/SchoolBus/internal/client/tracking"
	"github.com/atinyakov/SchoolBus/internal/config"
	"github.com/atinyakov/SchoolBus/internal/logger"
	"github.com/atinyakov/SchoolBus/internal/metrics"
)

var (
	version   string
	buildDate string
)

func main() {
	options := config.Parse()

	figure.NewFigure("SchoolBus", "", true).Print()
	fmt.Printf("\nVersion: %s  Build date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, options)
	if err != nil {
		zapLogger.Fatal("cannot open token store", zap.Error(err))
	}
	defer closeStore()

	transport, err := newTransport(options)
	if err != nil {
		zapLogger.Fatal("cannot configure transport", zap.Error(err))
	}

	client := api.New(store, api.Options{
		BaseURL: options.APIURL,
		HTTPClient: &http.Client{
			Transport: metrics.InstrumentTransport(transport),
			Timeout:   options.RequestTimeout,
		},
		Logger: zapLogger,
	})

	sh := &shell{
		api:       client,
		board:     tracking.NewBoard(),
		socketURL: options.SocketURL,
		wsClient:  &http.Client{Transport: transport},
		in:        newPrompter(os.Stdin, os.Stdout),
		out:       os.Stdout,
		log:       zapLogger,
		now:       time.Now,
	}
	sh.sess = session.NewManager(client, store,
		session.WithRefreshInterval(options.RefreshInterval),
		session.WithNotifier(session.NotifierFunc(sh.notice)),
		session.WithLogger(zapLogger),
	)
	if options.ForceLogoutOnUnauthorized {
		client.SetUnauthorizedHandler(sh.sess.OnUnauthorized)
	}

	if options.MetricsAddr != "" {
		go serveMetrics(options.MetricsAddr, zapLogger)
	}

	unwatch := sh.watch(ctx)
	defer unwatch()

	sh.sess.Start(ctx)
	defer sh.sess.Stop()

	// Closing stdin unblocks the prompt on Ctrl-C so deferred cleanup runs.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	fmt.Println("Type 'help' for a list of commands.")
	sh.run(ctx)
}

// openStore builds the configured token store and a function releasing it.
func openStore(ctx context.Context, options *config.Options) (storage.TokenStore, func(), error) {
	noop := func() {}
	switch options.TokenStore {
	case config.StoreMemory:
		return storage.NewMemoryStore(), noop, nil
	case config.StorePostgres:
		db, err := storage.InitPostgres(options.DatabaseDSN)
		if err != nil {
			return nil, noop, err
		}
		return storage.NewSQLStore(db), func() { _ = db.Close() }, nil
	case config.StoreRedis:
		rdb, err := storage.ConnectRedis(ctx, storage.RedisConfig{Addr: options.RedisAddr, DB: options.RedisDB})
		if err != nil {
			return nil, noop, err
		}
		return storage.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		return storage.NewFileStore(options.TokenFile, options.TokenPassphrase), noop, nil
	}
}

// newTransport returns the TLS transport when certificates are configured.
func newTransport(options *config.Options) (http.RoundTripper, error) {
	if options.CAFile == "" && options.CertFile == "" {
		return http.DefaultTransport, nil
	}
	return api.NewTLSTransport(options.CAFile, options.CertFile, options.KeyFile)
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server failed", zap.Error(err))
	}
}

