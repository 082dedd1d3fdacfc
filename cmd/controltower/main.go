package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/controltower/internal/authz"
	"github.com/dropDatabas3/controltower/internal/cache"
	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/http/handlers"
	httpserver "github.com/dropDatabas3/controltower/internal/http/server"
	"github.com/dropDatabas3/controltower/internal/idempotency"
	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/notify"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/payments"
	"github.com/dropDatabas3/controltower/internal/rate"
	"github.com/dropDatabas3/controltower/internal/store/memory"
	"github.com/dropDatabas3/controltower/internal/store/pg"
	"github.com/dropDatabas3/controltower/internal/token"
	"github.com/dropDatabas3/controltower/internal/worker"
)

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// openStore elige el backend de persistencia según config. Postgres corre
// las migraciones al arrancar; memory es para dev y tests de integración.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		st, err := pg.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		n, err := st.Migrate(ctx)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		logger.L().Info("migraciones aplicadas", zap.Int("count", n))
		return st, func() { st.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func buildCache(cfg *config.Config) cache.Client {
	c, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheDefaultTTL(),
	})
	if err != nil {
		logger.L().Warn("cache no disponible, siguiendo sin capa de cache", zap.Error(err))
		return nil
	}
	return c
}

func buildLimiter(cfg *config.Config) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	if cfg.Cache.Kind == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "rl:", cfg.RateWindow())
	}
	return rate.NewMemoryLimiter(cfg.RateWindow())
}

func buildNotifier(cfg *config.Config) *notify.Notifier {
	if cfg.SMTP.Host == "" || cfg.SMTP.ApprovalsTo == "" {
		return notify.New(nil, "")
	}
	sender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	return notify.New(sender, cfg.SMTP.ApprovalsTo)
}

func main() {
	var (
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (fallback: $CONFIG_PATH o configs/config.yaml)")
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env (si existe, se carga)")
	)
	flag.Parse()

	if *flagEnvFile != "" && fileExists(*flagEnvFile) {
		if err := godotenv.Load(*flagEnvFile); err == nil {
			log.Printf("dotenv: cargado %s", *flagEnvFile)
		}
	}

	cfgPath := *flagConfigPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" && fileExists("configs/config.yaml") {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "controltower",
	})
	defer logger.Sync()
	lg := logger.Named("main")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		lg.Fatal("no se pudo abrir el storage", zap.Error(err))
	}
	defer closeStore()

	// Pool de background jobs: persistencias asíncronas del hot path,
	// touch de last-used, emails de aprobación.
	pool := worker.New(0, cfg.Worker.QueueSize, cfg.Worker.MaxRetries)
	defer pool.Close()

	// El directorio se precarga completo al boot; onUse registra el último
	// uso de cada credencial fuera del camino crítico.
	dirCtx, dirCancel := context.WithTimeout(context.Background(), 30*time.Second)
	dir, err := directory.New(dirCtx, store, func(agentID string, at time.Time) {
		pool.Enqueue(worker.Job{Name: "touch-agent-usage", Run: func(ctx context.Context) error {
			return store.TouchAgentUsage(ctx, agentID, at)
		}})
	})
	dirCancel()
	if err != nil {
		lg.Fatal("no se pudo precargar el directorio", zap.Error(err))
	}
	lg.Info("directorio precargado", zap.Int("entries", dir.Size()))

	keys := token.StaticKeyring{KID: "k1", Secret: []byte(cfg.Token.SigningSecret)}
	issuer := token.NewIssuer(cfg.Token.Issuer, keys, cfg.TokenTTL(), cfg.TokenClockSkew())
	validator := token.NewValidator(cfg.Token.Issuer, keys, cfg.TokenClockSkew(), store)

	guard := idempotency.NewGuard(store, cfg.IdempotencyWindow(), cfg.IdempotencyBucket())
	if c := buildCache(cfg); c != nil {
		guard.UseCache(c)
		defer c.Close()
	}
	webhookGuard := idempotency.NewWebhookGuard(store, cfg.WebhookWindow())

	svc := authz.New(cfg, store, dir, issuer, validator, payments.NewDemoExecutor(), pool, buildNotifier(cfg))

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		lg.Fatal("registro de métricas", zap.Error(err))
	}

	// Janitor horario: retención de idempotencia y tokens expirados.
	janitor := worker.NewJanitor(time.Hour)
	janitor.Register("idempotency-records", func(ctx context.Context) (int, error) {
		return guard.Sweep(ctx, cfg.IdempotencyRetention())
	})
	janitor.Register("expired-tokens", func(ctx context.Context) (int, error) {
		return store.DeleteTokensBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	})
	janitor.Start()
	defer janitor.Stop()

	srv := httpserver.New(httpserver.Deps{
		Config:   cfg,
		Handlers: handlers.New(cfg, svc, store, webhookGuard),
		Dir:      dir,
		Limiter:  buildLimiter(cfg),
		Guard:    guard,
		Registry: registry,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	lg.Info("servidor escuchando", zap.String("addr", cfg.Server.Addr), zap.String("storage", cfg.Storage.Driver))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			lg.Fatal("servidor HTTP", zap.Error(err))
		}
	case sig := <-sigCh:
		lg.Info("señal recibida, apagando", zap.String("signal", sig.String()))
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(shutCtx); err != nil {
			lg.Warn("shutdown con errores", zap.Error(err))
		}
		shutCancel()
	}
}
