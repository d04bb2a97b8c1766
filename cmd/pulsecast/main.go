package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"pulsecast/internal/api"
	"pulsecast/internal/config"
	"pulsecast/internal/control"
	"pulsecast/internal/journal"
	"pulsecast/internal/remote"
	"pulsecast/internal/remote/fake"
	"pulsecast/internal/remote/httpgw"
	"pulsecast/internal/scheduler"
)

func main() {
	var (
		cfgPath   = flag.String("config", "", "YAML config file")
		addr      = flag.String("addr", "", "HTTP bind address")
		dbPath    = flag.String("db", "", "SQLite journal path (\"-\" disables the journal)")
		workers   = flag.Int("workers", 0, "max concurrent session bootstraps")
		mode      = flag.String("remote", "", "remote mode: http or fake")
		remoteURL = flag.String("remote-url", "", "messaging gateway base URL")
		static    = flag.String("static", "", "directory served at /")
		logLevel  = flag.String("log-level", "", "log level")
		debug     = flag.Bool("debug", false, "expose pprof handlers")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	override(&cfg.Addr, *addr)
	override(&cfg.DBPath, *dbPath)
	override(&cfg.Remote.Mode, *mode)
	override(&cfg.Remote.BaseURL, *remoteURL)
	override(&cfg.StaticDir, *static)
	override(&cfg.Log.Level, *logLevel)
	if *workers > 0 {
		cfg.Workers = *workers
	}

	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	rec := journal.Recorder(journal.Nop{})
	if cfg.DBPath != "-" {
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		defer db.Close()
		db.SetMaxOpenConns(1) // SQLite single writer

		if err := journal.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		rec = journal.NewSQLite(db)
	}

	var client remote.Client
	switch cfg.Remote.Mode {
	case config.RemoteFake:
		log.Warn().Msg("using fake remote, nothing leaves this process")
		client = &fake.Client{LogSends: true}
	default:
		client = httpgw.New(cfg.Remote.BaseURL, cfg.Remote.Timeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc := scheduler.NewService(client, scheduler.Config{
		DefaultDelay: cfg.Tasks.DefaultDelay,
		MaxDelay:     cfg.Tasks.MaxDelay,
		Workers:      cfg.Workers,
	}, scheduler.WithJournal(rec))
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		svc.Run(ctx)
	}()

	ctl := control.NewHandler(svc, control.Config{
		PingInterval:     cfg.Control.PingInterval,
		PongTimeout:      cfg.Control.PongTimeout,
		RatePerSec:       cfg.Control.RatePerSec,
		Burst:            cfg.Control.Burst,
		MaxMessageBytes:  cfg.Control.MaxMessageBytes,
		AllowedOrigins:   cfg.Control.AllowedOrigins,
		KeepOnDisconnect: cfg.Control.KeepOnDisconnect,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServer(svc, api.Options{
		Control:     ctl,
		StaticDir:   cfg.StaticDir,
		EnableDebug: *debug,
	})}
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("remote", cfg.Remote.Mode).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
	cancel()
	<-schedDone
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
