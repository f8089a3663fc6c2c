// Command nyxos is the status bar bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres, runs idempotent migrations and restores bars.
//   - Connects to Discord through the rate governor and handles commands,
//     activity and reaction controls.
//   - Runs the console aggregator and the periodic reconciler.
//   - Exposes the HTTP control API with /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/SeraphimOfTines/NyxOS-sub000/bar"
	"github.com/SeraphimOfTines/NyxOS-sub000/config"
	"github.com/SeraphimOfTines/NyxOS-sub000/db"
	"github.com/SeraphimOfTines/NyxOS-sub000/gateway"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform"
	"github.com/SeraphimOfTines/NyxOS-sub000/platform/discord"
	"github.com/SeraphimOfTines/NyxOS-sub000/ratelimit"
	"github.com/SeraphimOfTines/NyxOS-sub000/server"
	"github.com/SeraphimOfTines/NyxOS-sub000/telemetry"
	"github.com/SeraphimOfTines/NyxOS-sub000/theme"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load(".env")

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Optional; requires OTEL_EXPORTER_OTLP_ENDPOINT.
	shutdown, err := telemetry.InitTracing("nyxos", Version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	slog.Info("telemetry initialized", slog.Bool("tracing", telemetry.IsTracingEnabled()))

	th := theme.Default()
	if cfg.ThemeFile != "" {
		if th, err = theme.Load(cfg.ThemeFile); err != nil {
			slog.Error("theme load failed", slog.String("path", cfg.ThemeFile), slog.Any("err", err))
			os.Exit(1)
		}
	}

	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the statement list covers databases that
	// predate schema_migrations.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded statements",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}
	store := db.NewStore(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With(slog.String("version", Version))
	gov := ratelimit.New(ratelimit.WithBuffer(cfg.GovernorBuffer))

	dc, err := discord.New(cfg.DiscordToken)
	if err != nil {
		slog.Error("discord session failed", slog.Any("err", err))
		os.Exit(1)
	}
	client := platform.Governed(dc, gov)

	mgr := bar.NewManager(store, client,
		bar.WithTheme(th),
		bar.WithDropDelay(cfg.DropDebounce),
		bar.WithAdmins(cfg.AdminUserIDs...),
		bar.WithLogger(logger),
	)
	defer mgr.Close()

	var restored int
	took := telemetry.TimeFunc(nil, func() { restored, err = mgr.Load(ctx) })
	if err != nil {
		slog.Error("failed to restore bars", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("bars restored", slog.Int("count", restored), slog.Duration("took", took))

	console := bar.NewConsole(cfg.ConsoleChannelID, mgr,
		bar.WithGroupSize(cfg.ConsoleGroupSize),
		bar.WithMessageLimit(cfg.ConsoleMessageLimit),
		bar.WithRefreshInterval(cfg.ConsoleRefreshInterval),
	)
	mgr.SetConsole(console)
	go console.Run(ctx)

	gw := gateway.New(mgr, client,
		gateway.WithPrefix(cfg.CommandPrefix),
		gateway.WithBotID(dc.BotUserID),
		gateway.WithGate(gov),
		gateway.WithPresence(dc),
		gateway.WithLogger(logger),
	)
	gw.Attach(ctx, dc.Session())
	if err := dc.Open(); err != nil {
		slog.Error("discord gateway connect failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()

	// One pass at startup, then on the interval.
	go func() {
		if _, err := mgr.Reconcile(ctx); err != nil {
			slog.Warn("startup reconcile failed", slog.Any("err", err))
		}
		gw.SyncPresence(ctx, mgr.Mode())
	}()
	mgr.StartReconciler(ctx, cfg.ReconcileInterval)

	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof()
	}

	handler := server.NewRouter(ctx, server.Deps{
		Service: mgr,
		Health:  store,
		Auth: server.AuthConfig{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
			Token:    cfg.AdminToken,
		},
		RatePerMinute: cfg.APIRatePerMinute,
	})
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, handler); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func startPprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
