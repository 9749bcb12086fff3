package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
)

// ErrSceneNotFound возвращается, когда сцены с таким ID нет в хранилище
var ErrSceneNotFound = errors.New("scene not found")

// SceneRepo определяет интерфейс для сохранения и загрузки описаний сцен.
// Реализации хранят копии: изменение переданной или полученной сцены не
// влияет на хранилище.
type SceneRepo interface {
	// Save сохраняет сцену и возвращает её новую версию.
	// Версия увеличивается на 1 при каждом сохранении, первая версия - 1.
	Save(ctx context.Context, s *scene.Scene) (int64, error)

	// Load загружает сцену. Если сцены нет - ErrSceneNotFound.
	Load(ctx context.Context, id string) (*scene.Scene, error)

	// Delete удаляет сцену. Если сцены нет - ErrSceneNotFound.
	Delete(ctx context.Context, id string) error

	// List возвращает отсортированный список ID сцен.
	List(ctx context.Context) ([]string, error)

	// Close освобождает соединения хранилища.
	Close() error
}

// Backend - имя реализации хранилища
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBadger   Backend = "badger"
	BackendRedis    Backend = "redis"
	BackendMaria    Backend = "maria"
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

// Config выбирает и настраивает хранилище сцен.
// Переменные окружения SPAWN_STORAGE_* перекрывают значения из файла.
type Config struct {
	Backend Backend `yaml:"backend" env:"SPAWN_STORAGE_BACKEND"`

	// Badger
	DataPath string `yaml:"data_path" env:"SPAWN_STORAGE_DATA_PATH"`

	// Redis
	RedisAddr     string `yaml:"redis_addr" env:"SPAWN_STORAGE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"SPAWN_STORAGE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"SPAWN_STORAGE_REDIS_DB"`
	KeyPrefix     string `yaml:"key_prefix" env:"SPAWN_STORAGE_KEY_PREFIX"`

	// MariaDB
	MariaDSN string `yaml:"maria_dsn" env:"SPAWN_STORAGE_MARIA_DSN"`

	// PostgreSQL
	PostgresDSN string `yaml:"postgres_dsn" env:"SPAWN_STORAGE_POSTGRES_DSN"`

	// MongoDB
	MongoURI        string `yaml:"mongo_uri" env:"SPAWN_STORAGE_MONGO_URI"`
	MongoDatabase   string `yaml:"mongo_database" env:"SPAWN_STORAGE_MONGO_DATABASE"`
	MongoCollection string `yaml:"mongo_collection" env:"SPAWN_STORAGE_MONGO_COLLECTION"`

	Timeout time.Duration `yaml:"timeout" env:"SPAWN_STORAGE_TIMEOUT"`
}

// Open создаёт хранилище по конфигурации. Пустой Backend - память.
func Open(cfg Config) (SceneRepo, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemorySceneRepo(), nil
	case BackendBadger:
		return NewBadgerSceneRepo(cfg.DataPath)
	case BackendRedis:
		return NewRedisSceneRepo(&RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case BackendMaria:
		return NewMariaSceneRepo(cfg.MariaDSN)
	case BackendMongo:
		return NewMongoSceneRepo(MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
			Timeout:    cfg.Timeout,
		})
	case BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout(cfg.Timeout))
		defer cancel()
		return NewPostgresSceneRepo(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func openTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// checkSaveable проверяет сцену перед сохранением
func checkSaveable(s *scene.Scene) error {
	if s == nil {
		return fmt.Errorf("%w: nil scene", scene.ErrInvalidScene)
	}
	return s.Validate()
}

// ctxDone возвращает ошибку отменённого контекста
func ctxDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
