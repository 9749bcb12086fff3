package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/spawnsvc/internal/api"
	"github.com/annel0/spawnsvc/internal/auth"
	"github.com/annel0/spawnsvc/internal/cache"
	"github.com/annel0/spawnsvc/internal/config"
	"github.com/annel0/spawnsvc/internal/eventbus"
	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/observability"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/service"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (или ENV SPAWN_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("main", cfg.Logging.Dir); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	logging.GetLoggerManager().SetDir(cfg.Logging.Dir)
	defer logging.GetLoggerManager().CloseAll()

	level, err := logging.ParseLevel(cfg.Logging.GetLevel())
	if err != nil {
		logging.Warn("⚠️ %v, используется INFO", err)
	}
	logging.SetDefaultLevel(level)
	for _, component := range []string{"spawn", "server", "storage"} {
		logging.GetComponentLogger(component).SetLevels(level, logging.DEBUG)
	}

	logging.Info("🎯 Запуск сервиса точек появления...")

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Сервер успешно остановлен")
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	// === ТРАССИРОВКА ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("инициализация OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(ctx); err != nil {
			logging.Error("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	// === ХРАНИЛИЩЕ СЦЕН ===
	repo, err := openSceneRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	// === ШИНА СОБЫТИЙ ===
	bus, err := openEventBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Не удалось подписать логгер событий: %v", err)
	}
	exporter := eventbus.NewMetricsExporter(bus, nil)
	exporter.Start()
	defer exporter.Stop()

	// === СЕРВИС ===
	svc, err := service.New(service.Options{
		Repo:   repo,
		Bus:    bus,
		Random: spawn.NewRand(cfg.Selection.Seed),
		Geometry: []physics.GeometryOption{
			physics.WithCellSize(cfg.Selection.CellSize),
			physics.WithTeleportSearch(cfg.Selection.TeleportRadius, cfg.Selection.TeleportStep),
		},
	})
	if err != nil {
		return err
	}

	if dir := cfg.Server.SceneDir; dir != "" {
		n, err := svc.LoadSceneDir(ctx, dir)
		if err != nil {
			return fmt.Errorf("загрузка сцен из %s: %w", dir, err)
		}
		logging.Info("🗺️ Загружено сцен из %s: %d", dir, n)
	}

	// === REST API ===
	authn, err := newAuthenticator(cfg.Auth)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest := api.NewRestServer(api.Config{Port: restPort, Service: svc, Auth: authn, Bus: bus})
	if err := rest.Start(); err != nil {
		return fmt.Errorf("запуск REST API: %w", err)
	}

	metricsAddr := fmt.Sprintf(":%d", cfg.Server.GetMetricsPort())

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("   📈 Метрики: http://localhost%s/metrics", metricsAddr)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return serveMetrics(gctx, metricsAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("📡 Получен сигнал остановки, завершение работы...")

		// === GRACEFUL SHUTDOWN ===
		if err := rest.Stop(ctx); err != nil {
			return fmt.Errorf("остановка REST API: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// serveMetrics отдаёт /metrics на отдельном порту до отмены ctx
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("сервер метрик %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func backendName(b storage.Backend) string {
	if b == "" {
		return string(storage.BackendMemory)
	}
	return string(b)
}

// openSceneRepo открывает хранилище и, для внешних бэкендов, оборачивает его кешем
func openSceneRepo(ctx context.Context, cfg *config.Config) (storage.SceneRepo, error) {
	repo, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("открытие хранилища %q: %w", cfg.Storage.Backend, err)
	}
	backend := backendName(cfg.Storage.Backend)
	logging.Info("💾 Хранилище сцен: %s", backend)

	if !cfg.Cache.Enabled || backend == string(storage.BackendMemory) {
		return repo, nil
	}

	var inv cache.Invalidator
	switch cfg.Cache.Invalidation {
	case "", "local":
	case "nats":
		inv, err = cache.NewNATSInvalidator(cfg.Cache.NATSURL, cfg.Cache.Subject, "")
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("инвалидация кеша через NATS: %w", err)
		}
	default:
		repo.Close()
		return nil, fmt.Errorf("неизвестный режим инвалидации кеша %q", cfg.Cache.Invalidation)
	}

	cached, err := cache.NewSceneCache(ctx, repo, inv, cfg.Cache.TTL)
	if err != nil {
		if inv != nil {
			inv.Close()
		}
		repo.Close()
		return nil, err
	}
	logging.Info("⚡ Кеш сцен: TTL %s, инвалидация %s", cfg.Cache.TTL, cfg.Cache.Invalidation)
	return cached, nil
}

func openEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	switch cfg.Backend {
	case "", "memory":
		logging.Info("📨 Шина событий: in-memory (буфер %d)", cfg.Buffer)
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	case "jetstream":
		bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
		if err != nil {
			return nil, fmt.Errorf("подключение к JetStream %s: %w", cfg.URL, err)
		}
		logging.Info("📨 Шина событий: JetStream %s, стрим %s", cfg.URL, cfg.Stream)
		return bus, nil
	}
	return nil, fmt.Errorf("неизвестная шина событий %q", cfg.Backend)
}

func newAuthenticator(cfg config.AuthConfig) (*auth.Authenticator, error) {
	var secret []byte
	if s := cfg.GetJWTSecret(); s != "" {
		decoded, err := auth.DecodeSecret(s)
		if err != nil {
			return nil, fmt.Errorf("JWT секрет: %w", err)
		}
		secret = decoded
	}
	if cfg.AdminPassHash == "" {
		logging.Warn("🔐 Хеш пароля администратора не задан, административные эндпоинты недоступны")
	}
	return auth.NewAuthenticator(auth.Options{
		Secret:        secret,
		TokenTTL:      cfg.TokenTTL,
		AdminUser:     cfg.AdminUser,
		AdminPassHash: cfg.AdminPassHash,
	}), nil
}
