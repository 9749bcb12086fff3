package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/annel0/spawnsvc/internal/cache"
	"github.com/annel0/spawnsvc/internal/storage"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   storage.Config  `yaml:"storage"`
	Cache     cache.Config    `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Selection SelectionConfig `yaml:"selection"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	SceneDir    string `yaml:"scene_dir"` // YAML сцены, загружаемые при старте
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir" env:"SPAWN_LOG_DIR"` // пусто - только консоль
}

type EventBusConfig struct {
	Backend   string `yaml:"backend" env:"SPAWN_EVENTBUS_BACKEND"` // memory | jetstream
	URL       string `yaml:"url" env:"SPAWN_EVENTBUS_URL"`
	Stream    string `yaml:"stream" env:"SPAWN_EVENTBUS_STREAM"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type SelectionConfig struct {
	Seed           int64   `yaml:"seed" env:"SPAWN_SEED"` // 0 - от текущего времени
	TeleportRadius float64 `yaml:"teleport_radius"`
	TeleportStep   float64 `yaml:"teleport_step"`
	CellSize       float64 `yaml:"cell_size"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassHash string        `yaml:"admin_password_hash" env:"SPAWN_ADMIN_PASSWORD_HASH"` // bcrypt
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"SPAWN_TELEMETRY_ENABLED"`
	ServiceName string `yaml:"service_name"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "INFO"},
		Storage:  storage.Config{Backend: storage.BackendMemory},
		Cache:    cache.DefaultConfig(),
		EventBus: EventBusConfig{Backend: "memory", Stream: "SPAWN", Retention: 24, Buffer: 1024},
		Selection: SelectionConfig{
			TeleportRadius: 4,
			TeleportStep:   0.5,
			CellSize:       16,
		},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
		Telemetry: TelemetryConfig{ServiceName: "spawnsvc"},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "SPAWN_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "SPAWN_METRICS_PORT", 2112)
}

// GetLevel возвращает уровень логирования: env SPAWN_LOG_LEVEL -> config -> INFO
func (l *LoggingConfig) GetLevel() string {
	if env := os.Getenv("SPAWN_LOG_LEVEL"); env != "" {
		return env
	}
	if l.Level != "" {
		return l.Level
	}
	return "INFO"
}

// GetJWTSecret возвращает секрет JWT: config -> env SPAWN_JWT_SECRET
func (a *AuthConfig) GetJWTSecret() string {
	if a.JWTSecret != "" {
		return a.JWTSecret
	}
	return os.Getenv("SPAWN_JWT_SECRET")
}

// RetentionDuration - срок хранения событий в стриме
func (e *EventBusConfig) RetentionDuration() time.Duration {
	return time.Duration(e.Retention) * time.Hour
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию,
// затем применяет переменные окружения из тегов env.
// Если path == "", берёт путь из ENV SPAWN_CONFIG; без пути - только дефолты и env.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("SPAWN_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv заполняет поля с тегом env из переменных окружения
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
